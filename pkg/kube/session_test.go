package kube

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/giantswarm/k8s-resource-client/internal/instrumentation"
	"github.com/giantswarm/k8s-resource-client/internal/logging"
	"github.com/giantswarm/k8s-resource-client/pkg/auth"
)

func TestNewSession_Defaults(t *testing.T) {
	s, err := NewSession(Config{Server: "https://api.example.com:6443/"})
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com:6443", s.Config().Server)
	assert.Equal(t, DefaultNamespace, s.Namespace())
	assert.NotNil(t, s.Logger())
	assert.NotNil(t, s.Registry())
	assert.NotNil(t, s.Dispatcher())
	assert.Nil(t, s.TokenProvider())
	assert.Equal(t, DefaultTimeout, s.client.Timeout)
	assert.Zero(t, s.streamClient.Timeout)
}

func TestNewSession_InvalidConfig(t *testing.T) {
	_, err := NewSession(Config{Server: "api.example.com"})
	assert.ErrorContains(t, err, "invalid session config")
}

func TestNewSession_Options(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"nil logger", WithLogger(nil)},
		{"nil provider", WithTokenProvider(nil)},
		{"nil http client", WithHTTPClient(nil)},
		{"nil dialer", WithDialer(nil)},
		{"nil registry", WithRegistry(nil)},
		{"nil clock", WithClock(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(Config{Server: "https://a"}, tt.opt)
			assert.Error(t, err)
		})
	}

	registry := NewRegistry()
	provider := auth.NewStaticProvider("token")
	dialer := &websocket.Dialer{}
	s, err := NewSession(Config{Server: "https://a"},
		WithRegistry(registry),
		WithTokenProvider(provider),
		WithDialer(dialer),
		WithMetrics(nil),
	)
	require.NoError(t, err)
	assert.Same(t, registry, s.Registry())
	assert.Same(t, provider, s.TokenProvider())
	assert.Same(t, dialer, s.dialer)
}

func TestNewSession_CustomHTTPClientKeepsAuth(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api,
		WithHTTPClient(&http.Client{Transport: http.DefaultTransport}),
		WithTokenProvider(auth.NewStaticProvider("abc")),
	)

	_, err := s.Dispatcher().Do(context.Background(), Request{Operation: OpGet, Path: "/api/v1/namespaces"})
	require.Error(t, err)
	calls := api.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer abc", calls[0].Authorization)
}

func TestSession_New(t *testing.T) {
	s := newTestSession(t, newFakeAPI())

	obj, err := s.New("svc", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", obj.Base().GetString("apiVersion", ""))
	assert.Equal(t, "Service", obj.Base().GetString("kind", ""))
	assert.Equal(t, StateBuilt, obj.Base().State())
	assert.Same(t, s, obj.Base().Session())

	_, err = s.New("gizmo", nil)
	assert.ErrorContains(t, err, `unknown kind "gizmo"`)
}

func TestSession_GetAndList(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	for _, name := range []string{"web-2", "web-1"} {
		api.seed("/api/v1/namespaces/prod/pods/"+name, map[string]interface{}{
			"apiVersion": "v1",
			"kind":       "Pod",
			"metadata":   map[string]interface{}{"name": name, "namespace": "prod"},
			"status":     map[string]interface{}{"phase": "Running"},
		})
	}
	s := newTestSession(t, api)

	obj, err := s.Get(ctx, "pod", "prod", "web-1")
	require.NoError(t, err)
	pod, ok := obj.(*Pod)
	require.True(t, ok)
	assert.Equal(t, "Running", pod.Phase())
	assert.Equal(t, "prod", pod.Namespace())
	assert.Equal(t, StateSynced, pod.State())

	_, err = s.Get(ctx, "pod", "prod", "missing")
	assert.True(t, IsNotFound(err))

	list, err := s.List(ctx, "pods", "prod", ListOptions{LabelSelector: []string{"app=web", "tier=fe"}, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, list.Len())
	assert.Equal(t, "web-1", list.Items[0].Base().Name())
	assert.Equal(t, "web-2", list.Items[1].Base().Name())
	_, ok = list.Items[0].(*Pod)
	assert.True(t, ok)

	calls := api.calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "/api/v1/namespaces/prod/pods", last.Path)
	assert.Equal(t, []string{"app=web", "tier=fe"}, last.Query["labelSelector"])
	assert.Equal(t, "10", last.Query.Get("limit"))

	_, err = s.List(ctx, "gizmos", "prod", ListOptions{})
	assert.Error(t, err)
}

func TestSession_LogsOperations(t *testing.T) {
	api := newFakeAPI()
	api.seed("/api/v1/namespaces/prod/pods/web", map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Pod",
		"metadata":   map[string]interface{}{"name": "web", "namespace": "prod"},
	})
	var buf bytes.Buffer
	s := newTestSession(t, api, WithLogger(logging.NewLogger(&buf, true, true)))

	_, err := s.Get(context.Background(), "pod", "prod", "web")
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "pod", "prod", "missing")
	require.Error(t, err)

	var completed, failed map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		switch entry["msg"] {
		case "operation completed":
			completed = entry
		case "operation failed":
			failed = entry
		}
	}

	require.NotNil(t, completed)
	assert.Equal(t, "get", completed[logging.KeyOperation])
	assert.Equal(t, "Pod", completed[logging.KeyResourceType])
	assert.Equal(t, "prod", completed[logging.KeyNamespace])
	assert.Equal(t, "web", completed[logging.KeyResourceName])

	require.NotNil(t, failed)
	assert.Equal(t, "get", failed[logging.KeyOperation])
	assert.Contains(t, failed, logging.KeyError)
}

func TestSession_ListRejectsObjectResponse(t *testing.T) {
	s := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "Pod", "apiVersion": "v1"})
	}))

	_, err := s.List(context.Background(), "pods", "", ListOptions{})
	assert.ErrorContains(t, err, "not a list")
}

func TestSession_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := instrumentation.NewMetrics(provider.Meter("test"), false)
	require.NoError(t, err)

	api := newFakeAPI()
	seedDeployment(api, "web", 1)
	clock := time.Unix(0, 0)
	s := newTestSession(t, api, WithMetrics(metrics), WithClock(func() time.Time {
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}))

	obj, err := s.Get(context.Background(), "deploy", "default", "web")
	require.NoError(t, err)
	assert.Error(t, Scale(context.Background(), newObject(t, s, "ConfigMap", "cfg", nil), 2))
	require.NoError(t, Scale(context.Background(), obj, 2))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["k8src_api_requests_total"])
	assert.True(t, names["k8src_operations_total"])
	assert.True(t, names["k8src_capability_denied_total"])
}

func TestSession_FromObject(t *testing.T) {
	s := newTestSession(t, newFakeAPI())

	obj, err := s.FromObject(map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata":   map[string]interface{}{"name": "web"},
	})
	require.NoError(t, err)
	_, ok := obj.(*Deployment)
	assert.True(t, ok)
	assert.Equal(t, StateBuilt, obj.Base().State())

	custom, err := s.FromObject(map[string]interface{}{
		"apiVersion": "example.com/v1",
		"kind":       "Widget",
		"metadata":   map[string]interface{}{"name": "w", "namespace": "team-a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "widgets", custom.Base().Kind().Plural)
	assert.True(t, custom.Base().Kind().Namespaced)

	_, err = s.FromObject(map[string]interface{}{"kind": "Widget"})
	assert.Error(t, err)
}
