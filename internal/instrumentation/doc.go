// Package instrumentation provides OpenTelemetry metrics and tracing for the
// resource client.
//
// Instrumentation is off unless INSTRUMENTATION_ENABLED is set. A disabled
// Provider hands out no-op instruments, so callers record unconditionally.
//
// # Metrics
//
// API server traffic:
//   - k8src_api_requests_total: requests by method and status class
//   - k8src_api_request_duration_seconds: round-trip latency
//
// Resource operations:
//   - k8src_operations_total: operations by operation and status
//   - k8src_operation_duration_seconds: end-to-end operation latency
//   - k8src_capability_denied_total: operations refused before any I/O
//
// Streams:
//   - k8src_active_streams: open watch, log, exec and attach streams
//   - k8src_watch_events_total: watch events delivered to handlers
//   - k8src_stream_frames_total: exec and attach frames by channel
//
// Credentials:
//   - k8src_token_refresh_total: token acquisitions by provider and status
//   - k8src_token_refresh_duration_seconds: acquisition latency
//
// # Cardinality Considerations
//
// Namespace and resource_type labels are only added when
// METRICS_DETAILED_LABELS is true. Status codes are collapsed into classes
// with StatusClass and cluster names into coarse types with
// ClassifyClusterName.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: enable instrumentation (default: false)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces and metrics
//   - OTEL_EXPORTER_OTLP_INSECURE: use plain HTTP for OTLP
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate between 0.0 and 1.0 (default: 0.1)
//   - OTEL_SERVICE_NAME: service name (default: k8s-resource-client)
//   - METRICS_DETAILED_LABELS: add high-cardinality labels
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordOperation(ctx, "get", "Pod", "default", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
