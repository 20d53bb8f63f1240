// Package auth provides bearer token sources for API server sessions.
//
// Every provider implements Provider. Tokens are fetched lazily on the first
// call to Token and again whenever the cached token is within the refresh
// buffer of its expiry. Nothing refreshes in the background.
//
// Concurrent callers share a single in-flight refresh, so a burst of requests
// against an expired provider results in one credential acquisition.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/k8s-resource-client/internal/logging"
)

// DefaultRefreshBuffer is how long before expiry a token is treated as
// expired.
const DefaultRefreshBuffer = 60 * time.Second

// DefaultRefreshTimeout bounds a single credential acquisition.
const DefaultRefreshTimeout = 2 * time.Minute

// ErrAuthentication is matched by every error returned from a Provider.
var ErrAuthentication = errors.New("authentication failed")

// Provider supplies bearer tokens.
type Provider interface {
	// Token returns a valid token, refreshing first when none is cached or
	// the cached one has expired.
	Token(ctx context.Context) (string, error)

	// Refresh acquires a new token unconditionally.
	Refresh(ctx context.Context) error

	// IsExpired reports whether the cached token is within the refresh
	// buffer of its expiry. Tokens without an expiry never expire.
	IsExpired() bool

	// ExpiresAt returns the expiry of the cached token. The zero time means
	// the token never expires.
	ExpiresAt() time.Time
}

// AuthenticationError describes a failed credential acquisition.
type AuthenticationError struct {
	Provider string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is matches ErrAuthentication.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

func authError(provider, message string, err error) *AuthenticationError {
	return &AuthenticationError{Provider: provider, Message: message, Err: err}
}

// RefreshObserver is notified after every credential acquisition attempt.
type RefreshObserver func(ctx context.Context, provider string, duration time.Duration, err error)

// Option configures the shared token caching behavior of a provider.
type Option func(*options)

type options struct {
	refreshBuffer  time.Duration
	refreshTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger
	observer      RefreshObserver
}

func defaultOptions() options {
	return options{
		refreshBuffer:  DefaultRefreshBuffer,
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
		logger:         slog.Default(),
	}
}

// WithRefreshBuffer sets how long before expiry a token is refreshed.
func WithRefreshBuffer(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.refreshBuffer = d
		}
	}
}

// WithRefreshTimeout bounds each credential acquisition. The acquisition is
// shared by concurrent callers and is not cancelled with any one of them.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.refreshTimeout = d
		}
	}
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used to report refreshes.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRefreshObserver registers a callback invoked after each refresh.
func WithRefreshObserver(fn RefreshObserver) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// fetchFunc acquires a token. A zero expiresAt means the token never expires.
type fetchFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// tokenCache implements the caching half of Provider. Variants embed it and
// supply a fetchFunc.
type tokenCache struct {
	name  string
	fetch fetchFunc
	opts  options

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	loaded    bool

	group singleflight.Group
}

func newTokenCache(name string, fetch fetchFunc, opts []Option) *tokenCache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &tokenCache{name: name, fetch: fetch, opts: o}
}

// Token implements Provider.
func (c *tokenCache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.loaded && !c.expiredLocked() {
		token := c.token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	if err := c.Refresh(ctx); err != nil {
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

// Refresh implements Provider. Concurrent callers share one acquisition,
// which runs detached from their cancellation and is bounded by the refresh
// timeout. A caller whose ctx ends stops waiting without failing the others.
func (c *tokenCache) Refresh(ctx context.Context) error {
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.refreshTimeout)
		defer cancel()
		return nil, c.refresh(refreshCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.opts.logger.Debug("joined in-flight token refresh", logging.Provider(c.name))
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *tokenCache) refresh(ctx context.Context) error {
	start := c.opts.now()
	token, expiresAt, err := c.fetch(ctx)
	if err == nil && token == "" {
		err = authError(c.name, "provider returned an empty token", nil)
	}
	if err != nil {
		var authErr *AuthenticationError
		if !errors.As(err, &authErr) {
			err = authError(c.name, "failed to acquire token", err)
		}
	}

	if c.opts.observer != nil {
		c.opts.observer(ctx, c.name, c.opts.now().Sub(start), err)
	}

	if err != nil {
		c.opts.logger.Warn("token refresh failed",
			logging.Provider(c.name),
			logging.Status(logging.StatusError),
			logging.SanitizedErr(err))
		return err
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = expiresAt
	c.loaded = true
	c.mu.Unlock()

	c.opts.logger.Debug("token refreshed",
		logging.Provider(c.name),
		logging.Status(logging.StatusSuccess),
		slog.String("token", logging.SanitizeToken(token)),
		slog.Time("expires_at", expiresAt))
	return nil
}

// IsExpired implements Provider.
func (c *tokenCache) IsExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiredLocked()
}

// ExpiresAt implements Provider.
func (c *tokenCache) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

// set seeds the cache. Used by providers that start with a known token.
func (c *tokenCache) set(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
	c.loaded = true
}

func (c *tokenCache) expiredLocked() bool {
	if c.expiresAt.IsZero() {
		return false
	}
	return !c.expiresAt.After(c.opts.now().Add(c.opts.refreshBuffer))
}
