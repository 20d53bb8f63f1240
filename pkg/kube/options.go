package kube

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/giantswarm/k8s-resource-client/internal/instrumentation"
	"github.com/giantswarm/k8s-resource-client/pkg/auth"
)

// Option configures a Session. Options are applied once, by NewSession.
type Option func(*Session) error

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithTokenProvider authenticates every request with a bearer token from p.
func WithTokenProvider(p auth.Provider) Option {
	return func(s *Session) error {
		if p == nil {
			return errors.New("token provider cannot be nil")
		}
		s.provider = p
		return nil
	}
}

// WithHTTPClient replaces the HTTP client built from the Config. The token
// provider, when set, is layered on top of the client's transport.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Session) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		s.baseClient = client
		return nil
	}
}

// WithDialer replaces the WebSocket dialer used for exec and attach.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(s *Session) error {
		if dialer == nil {
			return errors.New("dialer cannot be nil")
		}
		s.dialer = dialer
		return nil
	}
}

// WithMetrics records request, operation and stream metrics into m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Session) error {
		s.metrics = m
		return nil
	}
}

// WithRegistry replaces the kind registry. The default is DefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(s *Session) error {
		if r == nil {
			return errors.New("registry cannot be nil")
		}
		s.registry = r
		return nil
	}
}

// WithClock overrides the time source used for durations.
func WithClock(now func() time.Time) Option {
	return func(s *Session) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}
