package kube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"github.com/giantswarm/k8s-resource-client/internal/instrumentation"
	"github.com/giantswarm/k8s-resource-client/internal/logging"
	"github.com/giantswarm/k8s-resource-client/pkg/auth"
	"github.com/giantswarm/k8s-resource-client/pkg/paths"
)

// Session is a connection to one API server. It holds the transport, the
// credential provider and the kind registry shared by every resource bound
// to it.
//
// A Session is safe for concurrent use once NewSession returns.
type Session struct {
	config  Config
	baseURL *url.URL

	logger   *slog.Logger
	provider auth.Provider
	metrics  *instrumentation.Metrics
	registry *Registry
	now      func() time.Time

	baseClient   *http.Client
	client       *http.Client
	streamClient *http.Client
	dialer       *websocket.Dialer

	dispatcher *Dispatcher
}

// NewSession builds a session for cfg. Zero fields of cfg are filled from
// DefaultConfig.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	baseURL, err := url.Parse(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	s := &Session{
		config:   cfg,
		baseURL:  baseURL,
		logger:   slog.Default(),
		registry: DefaultRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = logging.WithCluster(s.logger, cfg.Server)

	tlsConfig, err := cfg.TLSConfig()
	if err != nil {
		return nil, err
	}

	if s.baseClient == nil {
		dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
		s.baseClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSClientConfig:       tlsConfig,
				TLSHandshakeTimeout:   cfg.ConnectTimeout,
				ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}

	transport := s.baseClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if s.provider != nil {
		transport = &oauth2.Transport{
			Source: auth.NewTokenSource(context.Background(), s.provider),
			Base:   transport,
		}
	}

	// Streams outlive any fixed client timeout; they are bounded by the
	// caller's context and WatchTimeout instead.
	s.client = &http.Client{
		Transport:     transport,
		CheckRedirect: s.baseClient.CheckRedirect,
		Jar:           s.baseClient.Jar,
		Timeout:       cfg.Timeout,
	}
	s.streamClient = &http.Client{
		Transport:     transport,
		CheckRedirect: s.baseClient.CheckRedirect,
		Jar:           s.baseClient.Jar,
	}

	if s.dialer == nil {
		s.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			TLSClientConfig:  tlsConfig,
			HandshakeTimeout: cfg.ConnectTimeout,
		}
	}

	s.dispatcher = &Dispatcher{session: s}
	return s, nil
}

// Config returns the effective configuration.
func (s *Session) Config() Config {
	return s.config
}

// Namespace returns the default namespace.
func (s *Session) Namespace() string {
	return s.config.Namespace
}

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Registry returns the kind registry.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Dispatcher returns the low level operation dispatcher.
func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// TokenProvider returns the configured credential provider, if any.
func (s *Session) TokenProvider() auth.Provider {
	return s.provider
}

// New builds an unsynced resource of the named kind. attrs may be nil; the
// apiVersion and kind fields are filled in from the registry.
func (s *Session) New(kind string, attrs map[string]interface{}) (Object, error) {
	k, ok := s.registry.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return s.build(k, attrs, false), nil
}

// FromObject builds an unsynced resource for a complete document. The kind
// is resolved from its apiVersion and kind fields, so kinds missing from the
// registry are accepted; their scope is inferred from metadata.namespace.
func (s *Session) FromObject(attrs map[string]interface{}) (Object, error) {
	apiVersion, _ := attrs["apiVersion"].(string)
	kind, _ := attrs["kind"].(string)
	if apiVersion == "" || kind == "" {
		return nil, errors.New("object must set apiVersion and kind")
	}
	return s.build(s.registry.ForObject(apiVersion, kind, attrs), attrs, false), nil
}

// Get fetches the named resource.
func (s *Session) Get(ctx context.Context, kind, namespace, name string) (Object, error) {
	obj, err := s.New(kind, map[string]interface{}{
		"metadata": map[string]interface{}{"name": name, "namespace": namespace},
	})
	if err != nil {
		return nil, err
	}
	if err := obj.Base().Refresh(ctx); err != nil {
		return nil, err
	}
	return obj, nil
}

// List returns the resources of kind in namespace. An empty namespace lists
// across all namespaces.
func (s *Session) List(ctx context.Context, kind, namespace string, opts ListOptions) (*ResourceList, error) {
	k, ok := s.registry.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	ref := k.ref(namespace, "")

	ctx, finish := s.startOperation(ctx, "list", k.Kind, namespace, "")
	result, err := s.dispatcher.Do(ctx, Request{
		Operation:    OpGet,
		Path:         paths.CollectionPath(ref),
		Query:        opts.query(),
		ResourceType: k.Kind,
		Namespace:    namespace,
	})
	if err == nil && result.List == nil {
		err = fmt.Errorf("unexpected response listing %s: not a list", k.Plural)
	}
	finish(err)
	if err != nil {
		return nil, err
	}
	return result.List, nil
}

// build wraps attrs in the Object type registered for k.
func (s *Session) build(k Kind, attrs map[string]interface{}, synced bool) Object {
	r := &Resource{kind: k, session: s}
	if synced {
		r.Store = newSyncedStore(attrs)
	} else {
		r.Store = newStore(attrs)
	}
	if !r.Has("apiVersion") {
		r.Set("apiVersion", k.APIVersion)
	}
	if !r.Has("kind") {
		r.Set("kind", k.Kind)
	}
	if k.New != nil {
		return k.New(r)
	}
	return r
}

// wrap builds an Object for a payload returned by the server.
func (s *Session) wrap(attrs map[string]interface{}) Object {
	apiVersion, _ := attrs["apiVersion"].(string)
	kind, _ := attrs["kind"].(string)
	return s.build(s.registry.ForObject(apiVersion, kind, attrs), attrs, true)
}

// startOperation opens a span for a resource operation and returns a
// function that records its outcome in metrics and logs.
func (s *Session) startOperation(ctx context.Context, op string, resourceType, namespace, name string) (context.Context, func(error)) {
	start := s.now()
	ctx, span := instrumentation.StartK8sSpan(ctx, op, resourceType, namespace,
		instrumentation.NewSpanAttributeBuilder().
			WithCluster(s.config.ClusterName).
			WithResource("", name).
			Build()...,
	)

	return ctx, func(err error) {
		duration := s.now().Sub(start)
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()

		s.metrics.RecordOperation(ctx, op, resourceType, namespace, status, duration)

		logger := logging.WithOperation(s.logger, op)
		attrs := []any{
			logging.ResourceType(resourceType),
			logging.Namespace(namespace),
			logging.ResourceName(name),
			logging.Duration(duration),
			logging.Status(status),
		}
		if traceID := instrumentation.GetTraceID(ctx); traceID != "" {
			attrs = append(attrs, logging.TraceID(traceID))
		}
		if err != nil {
			logger.Debug("operation failed", append(attrs, logging.SanitizedErr(err))...)
			return
		}
		logger.Debug("operation completed", attrs...)
	}
}
