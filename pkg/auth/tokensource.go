package auth

import (
	"context"

	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx      context.Context
	provider Provider
}

// NewTokenSource adapts p to an oauth2.TokenSource so it can back an
// oauth2.Transport. ctx is used for every refresh triggered through the
// source.
func NewTokenSource(ctx context.Context, p Provider) oauth2.TokenSource {
	if ctx == nil {
		ctx = context.Background()
	}
	return &tokenSource{ctx: ctx, provider: p}
}

// Token implements oauth2.TokenSource.
func (s *tokenSource) Token() (*oauth2.Token, error) {
	token, err := s.provider.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      s.provider.ExpiresAt(),
	}, nil
}
