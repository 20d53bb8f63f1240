package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	authenticationv1 "k8s.io/api/authentication/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/giantswarm/k8s-resource-client/pkg/paths"
)

// DefaultTokenExpirationSeconds is the lifetime requested when none is set.
const DefaultTokenExpirationSeconds int64 = 3600

// TokenRequestConfig configures a TokenRequestProvider.
type TokenRequestConfig struct {
	// Server is the API server URL.
	Server         string
	Namespace      string
	ServiceAccount string
	Audiences      []string
	// ExpirationSeconds defaults to DefaultTokenExpirationSeconds.
	ExpirationSeconds int64
	// BootstrapToken authenticates the TokenRequest call itself. It is used
	// directly so the provider never calls back into its own Token method.
	BootstrapToken string
	// HTTPClient carries TLS settings.
	HTTPClient *http.Client
}

// TokenRequestProvider mints service account tokens through the
// serviceaccounts/token subresource.
type TokenRequestProvider struct {
	*tokenCache
	cfg    TokenRequestConfig
	client *http.Client
}

// NewTokenRequestProvider validates cfg and returns a provider for it.
func NewTokenRequestProvider(cfg TokenRequestConfig, opts ...Option) (*TokenRequestProvider, error) {
	switch {
	case cfg.Server == "":
		return nil, authError("token-request", "server is required", nil)
	case cfg.Namespace == "" || cfg.ServiceAccount == "":
		return nil, authError("token-request", "namespace and service account are required", nil)
	case cfg.BootstrapToken == "":
		return nil, authError("token-request", "missing bootstrap token", nil)
	}
	if cfg.ExpirationSeconds <= 0 {
		cfg.ExpirationSeconds = DefaultTokenExpirationSeconds
	}

	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.BootstrapToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = base.Timeout

	p := &TokenRequestProvider{cfg: cfg, client: client}
	p.tokenCache = newTokenCache("token-request", p.request, opts)
	return p, nil
}

// URL returns the endpoint the provider posts to.
func (p *TokenRequestProvider) URL() string {
	ref := paths.Ref{
		APIVersion: "v1",
		Plural:     "serviceaccounts",
		Namespaced: true,
		Namespace:  p.cfg.Namespace,
		Name:       p.cfg.ServiceAccount,
	}
	return strings.TrimSuffix(p.cfg.Server, "/") + paths.SubresourcePath(ref, "token")
}

func (p *TokenRequestProvider) request(ctx context.Context) (string, time.Time, error) {
	expiration := p.cfg.ExpirationSeconds
	body := authenticationv1.TokenRequest{
		TypeMeta: metav1.TypeMeta{APIVersion: "authentication.k8s.io/v1", Kind: "TokenRequest"},
		Spec: authenticationv1.TokenRequestSpec{
			Audiences:         p.cfg.Audiences,
			ExpirationSeconds: &expiration,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", time.Time{}, authError("token-request", "failed to encode TokenRequest", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL(), bytes.NewReader(data))
	if err != nil {
		return "", time.Time{}, authError("token-request", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", time.Time{}, authError("token-request", "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, authError("token-request", "failed to read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", time.Time{}, authError("token-request",
			fmt.Sprintf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}

	var result authenticationv1.TokenRequest
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", time.Time{}, authError("token-request", "invalid JSON response", err)
	}
	if result.Status.Token == "" {
		return "", time.Time{}, authError("token-request", "missing status.token", nil)
	}
	return result.Status.Token, result.Status.ExpirationTimestamp.Time, nil
}
