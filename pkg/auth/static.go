package auth

import (
	"context"
	"time"
)

// StaticProvider serves a fixed token that never expires.
type StaticProvider struct {
	*tokenCache
}

// NewStaticProvider returns a provider for token. An empty token fails on
// first use.
func NewStaticProvider(token string, opts ...Option) *StaticProvider {
	p := &StaticProvider{}
	p.tokenCache = newTokenCache("static", func(context.Context) (string, time.Time, error) {
		if token == "" {
			return "", time.Time{}, authError("static", "no token configured", nil)
		}
		return token, time.Time{}, nil
	}, opts)
	if token != "" {
		p.set(token, time.Time{})
	}
	return p
}
