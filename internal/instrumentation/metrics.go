package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	attrMethod       = "method"
	attrStatus       = "status"
	attrStatusClass  = "status_class"
	attrOperation    = "operation"
	attrResourceType = "resource_type"
	attrNamespace    = "namespace"
	attrProvider     = "provider"
	attrEventType    = "event_type"
	attrStream       = "stream"
	attrCapability   = "capability"
)

// Stream kinds for the active stream gauge.
const (
	StreamWatch     = "watch"
	StreamWatchLogs = "watch_logs"
	StreamExec      = "exec"
	StreamAttach    = "attach"
)

var durationBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0}

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// API server request metrics
	apiRequestsTotal   metric.Int64Counter
	apiRequestDuration metric.Float64Histogram

	// Resource operation metrics
	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
	capabilityDenied  metric.Int64Counter

	// Streaming metrics
	activeStreams     metric.Int64UpDownCounter
	watchEventsTotal  metric.Int64Counter
	streamFramesTotal metric.Int64Counter

	// Credential metrics
	tokenRefreshTotal    metric.Int64Counter
	tokenRefreshDuration metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels (namespace, resource_type)
	// are included in operation metrics
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.apiRequestsTotal, err = meter.Int64Counter(
		"k8src_api_requests_total",
		metric.WithDescription("Total number of HTTP requests sent to the API server"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_api_requests_total counter: %w", err)
	}

	m.apiRequestDuration, err = meter.Float64Histogram(
		"k8src_api_request_duration_seconds",
		metric.WithDescription("API server request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_api_request_duration_seconds histogram: %w", err)
	}

	m.operationsTotal, err = meter.Int64Counter(
		"k8src_operations_total",
		metric.WithDescription("Total number of resource operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_operations_total counter: %w", err)
	}

	m.operationDuration, err = meter.Float64Histogram(
		"k8src_operation_duration_seconds",
		metric.WithDescription("Resource operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_operation_duration_seconds histogram: %w", err)
	}

	m.capabilityDenied, err = meter.Int64Counter(
		"k8src_capability_denied_total",
		metric.WithDescription("Operations rejected because the kind lacks the capability"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_capability_denied_total counter: %w", err)
	}

	m.activeStreams, err = meter.Int64UpDownCounter(
		"k8src_active_streams",
		metric.WithDescription("Number of open watch, log, exec and attach streams"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_active_streams gauge: %w", err)
	}

	m.watchEventsTotal, err = meter.Int64Counter(
		"k8src_watch_events_total",
		metric.WithDescription("Total number of watch events delivered to handlers"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_watch_events_total counter: %w", err)
	}

	m.streamFramesTotal, err = meter.Int64Counter(
		"k8src_stream_frames_total",
		metric.WithDescription("Total number of exec and attach frames received"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_stream_frames_total counter: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"k8src_token_refresh_total",
		metric.WithDescription("Total number of credential acquisitions"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_token_refresh_total counter: %w", err)
	}

	m.tokenRefreshDuration, err = meter.Float64Histogram(
		"k8src_token_refresh_duration_seconds",
		metric.WithDescription("Credential acquisition duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8src_token_refresh_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordAPIRequest records one HTTP round trip to the API server. A status
// code of zero means the request never got a response.
func (m *Metrics) RecordAPIRequest(ctx context.Context, method string, statusCode int, duration time.Duration) {
	if m == nil || m.apiRequestsTotal == nil || m.apiRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrStatusClass, StatusClass(statusCode)),
	)
	m.apiRequestsTotal.Add(ctx, 1, attrs)
	m.apiRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOperation records a resource operation with operation type, resource type,
// namespace, status, and duration.
//
// CARDINALITY NOTE: When detailedLabels is false (default), only operation and status
// labels are recorded. When detailedLabels is true, namespace and resource_type are
// also included.
func (m *Metrics) RecordOperation(ctx context.Context, operation, resourceType, namespace, status string, duration time.Duration) {
	if m == nil || m.operationsTotal == nil || m.operationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		attrs = append(attrs,
			attribute.String(attrResourceType, resourceType),
			attribute.String(attrNamespace, namespace),
		)
	}

	m.operationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCapabilityDenied records an operation rejected before any I/O.
func (m *Metrics) RecordCapabilityDenied(ctx context.Context, capability string) {
	if m == nil || m.capabilityDenied == nil {
		return
	}
	m.capabilityDenied.Add(ctx, 1, metric.WithAttributes(attribute.String(attrCapability, capability)))
}

// IncrementActiveStreams marks a stream of the given kind as open.
func (m *Metrics) IncrementActiveStreams(ctx context.Context, stream string) {
	if m == nil || m.activeStreams == nil {
		return
	}
	m.activeStreams.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStream, stream)))
}

// DecrementActiveStreams marks a stream of the given kind as closed.
func (m *Metrics) DecrementActiveStreams(ctx context.Context, stream string) {
	if m == nil || m.activeStreams == nil {
		return
	}
	m.activeStreams.Add(ctx, -1, metric.WithAttributes(attribute.String(attrStream, stream)))
}

// RecordWatchEvent records a watch event delivered to a handler.
func (m *Metrics) RecordWatchEvent(ctx context.Context, resourceType, eventType string) {
	if m == nil || m.watchEventsTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrEventType, eventType)}
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrResourceType, resourceType))
	}
	m.watchEventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStreamFrame records an exec or attach frame received on channel.
func (m *Metrics) RecordStreamFrame(ctx context.Context, stream, channel string) {
	if m == nil || m.streamFramesTotal == nil {
		return
	}
	m.streamFramesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStream, stream),
		attribute.String("channel", channel),
	))
}

// RecordTokenRefresh records a credential acquisition attempt.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, provider, status string, duration time.Duration) {
	if m == nil || m.tokenRefreshTotal == nil || m.tokenRefreshDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrStatus, status),
	)
	m.tokenRefreshTotal.Add(ctx, 1, attrs)
	m.tokenRefreshDuration.Record(ctx, duration.Seconds(), attrs)
}
