package instrumentation

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	for _, key := range []string{"OTEL_SERVICE_NAME", "INSTRUMENTATION_ENABLED", "METRICS_EXPORTER", "TRACING_EXPORTER", "OTEL_TRACES_SAMPLER_ARG", "METRICS_DETAILED_LABELS"} {
		t.Setenv(key, "")
	}

	config := DefaultConfig()

	if config.ServiceName != "k8s-resource-client" {
		t.Errorf("expected ServiceName to be 'k8s-resource-client', got %s", config.ServiceName)
	}

	if config.Enabled {
		t.Error("expected Enabled to be false by default for zero overhead")
	}

	if config.MetricsExporter != ExporterPrometheus {
		t.Errorf("expected MetricsExporter to be 'prometheus', got %s", config.MetricsExporter)
	}

	if config.TracingExporter != ExporterNone {
		t.Errorf("expected TracingExporter to be 'none', got %s", config.TracingExporter)
	}

	if config.TraceSamplingRate != 0.1 {
		t.Errorf("expected TraceSamplingRate to be 0.1, got %f", config.TraceSamplingRate)
	}

	if config.DetailedLabels {
		t.Error("expected DetailedLabels to be false by default")
	}
}

func TestDefaultConfigWithEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "test-service")
	t.Setenv("INSTRUMENTATION_ENABLED", "true")
	t.Setenv("METRICS_EXPORTER", "stdout")
	t.Setenv("TRACING_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("METRICS_DETAILED_LABELS", "true")

	config := DefaultConfig()

	if config.ServiceName != "test-service" {
		t.Errorf("expected ServiceName to be 'test-service', got %s", config.ServiceName)
	}
	if !config.Enabled {
		t.Error("expected Enabled to be true")
	}
	if config.MetricsExporter != "stdout" {
		t.Errorf("expected MetricsExporter to be 'stdout', got %s", config.MetricsExporter)
	}
	if config.TracingExporter != "otlp" {
		t.Errorf("expected TracingExporter to be 'otlp', got %s", config.TracingExporter)
	}
	if config.OTLPEndpoint != "http://localhost:4318" {
		t.Errorf("expected OTLPEndpoint to be 'http://localhost:4318', got %s", config.OTLPEndpoint)
	}
	if !config.OTLPInsecure {
		t.Error("expected OTLPInsecure to be true")
	}
	if config.TraceSamplingRate != 0.5 {
		t.Errorf("expected TraceSamplingRate to be 0.5, got %f", config.TraceSamplingRate)
	}
	if !config.DetailedLabels {
		t.Error("expected DetailedLabels to be true")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "sampling rate too high", mutate: func(c *Config) { c.TraceSamplingRate = 1.5 }, wantErr: true},
		{name: "negative sampling rate", mutate: func(c *Config) { c.TraceSamplingRate = -0.1 }, wantErr: true},
		{name: "unknown metrics exporter", mutate: func(c *Config) { c.MetricsExporter = "statsd" }, wantErr: true},
		{name: "unknown tracing exporter", mutate: func(c *Config) { c.TracingExporter = "jaeger" }, wantErr: true},
		{name: "otlp everywhere", mutate: func(c *Config) {
			c.MetricsExporter = ExporterOTLP
			c.TracingExporter = ExporterOTLP
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone, TraceSamplingRate: 0.1}
			tt.mutate(&config)

			err := config.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_VAR", "")
	if result := getEnvOrDefault("TEST_VAR", "default"); result != "default" {
		t.Errorf("expected 'default', got %s", result)
	}

	t.Setenv("TEST_VAR", "custom")
	if result := getEnvOrDefault("TEST_VAR", "default"); result != "custom" {
		t.Errorf("expected 'custom', got %s", result)
	}
}

func TestGetEnvBoolOrDefault(t *testing.T) {
	t.Setenv("TEST_BOOL", "")
	if !getEnvBoolOrDefault("TEST_BOOL", true) {
		t.Error("expected true")
	}

	t.Setenv("TEST_BOOL", "false")
	if getEnvBoolOrDefault("TEST_BOOL", true) {
		t.Error("expected false")
	}

	t.Setenv("TEST_BOOL", "invalid")
	if !getEnvBoolOrDefault("TEST_BOOL", true) {
		t.Error("expected default true for invalid value")
	}
}

func TestGetEnvFloatOrDefault(t *testing.T) {
	t.Setenv("TEST_FLOAT", "")
	if result := getEnvFloatOrDefault("TEST_FLOAT", 0.5); result != 0.5 {
		t.Errorf("expected 0.5, got %f", result)
	}

	t.Setenv("TEST_FLOAT", "0.8")
	if result := getEnvFloatOrDefault("TEST_FLOAT", 0.5); result != 0.8 {
		t.Errorf("expected 0.8, got %f", result)
	}

	t.Setenv("TEST_FLOAT", "invalid")
	if result := getEnvFloatOrDefault("TEST_FLOAT", 0.5); result != 0.5 {
		t.Errorf("expected default 0.5 for invalid value, got %f", result)
	}
}
