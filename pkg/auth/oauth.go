package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/giantswarm/k8s-resource-client/internal/logging"
)

// DefaultOAuthClientID is the OAuth client that answers challenges with a
// token in the redirect fragment.
const DefaultOAuthClientID = "openshift-challenging-client"

const wellKnownOAuthPath = "/.well-known/oauth-authorization-server"

// OAuthConfig configures the challenge-based OAuth flow.
type OAuthConfig struct {
	// Server is the API server URL used for issuer discovery.
	Server string
	// Issuer skips discovery when set.
	Issuer   string
	Username string
	Password string
	ClientID string
	// HTTPClient carries TLS settings. Redirects are never followed
	// regardless of its CheckRedirect.
	HTTPClient *http.Client
}

// OAuthProvider obtains tokens from an OAuth server that issues them via a
// 302 redirect carrying access_token in the Location fragment.
type OAuthProvider struct {
	*tokenCache
	cfg    OAuthConfig
	client *http.Client
}

// NewOAuthProvider validates cfg and returns a provider for it.
func NewOAuthProvider(cfg OAuthConfig, opts ...Option) (*OAuthProvider, error) {
	if cfg.Server == "" && cfg.Issuer == "" {
		return nil, authError("oauth", "server or issuer is required", nil)
	}
	if cfg.Username == "" {
		return nil, authError("oauth", "username is required", nil)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultOAuthClientID
	}

	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	client := *base
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	p := &OAuthProvider{cfg: cfg, client: &client}
	p.tokenCache = newTokenCache("oauth", p.authorize, opts)
	return p, nil
}

func (p *OAuthProvider) authorize(ctx context.Context) (string, time.Time, error) {
	issuer, err := p.issuer(ctx)
	if err != nil {
		return "", time.Time{}, err
	}

	query := url.Values{}
	query.Set("client_id", p.cfg.ClientID)
	query.Set("response_type", "token")
	authorizeURL := strings.TrimSuffix(issuer, "/") + "/oauth/authorize?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizeURL, nil)
	if err != nil {
		return "", time.Time{}, authError("oauth", "failed to build authorize request", err)
	}
	req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	req.Header.Set("X-CSRF-Token", "1")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", time.Time{}, authError("oauth", "authorize request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return "", time.Time{}, authError("oauth", fmt.Sprintf("unexpected status %d from authorize endpoint, expected 302", resp.StatusCode), nil)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", time.Time{}, authError("oauth", "authorize response has no Location header", nil)
	}

	return parseTokenFragment(location, p.opts.now())
}

// parseTokenFragment extracts access_token and expires_in from the fragment
// of a redirect URL.
func parseTokenFragment(location string, now time.Time) (string, time.Time, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", time.Time{}, authError("oauth", "invalid Location header", err)
	}
	values, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return "", time.Time{}, authError("oauth", "invalid Location fragment", err)
	}

	token := values.Get("access_token")
	if token == "" {
		return "", time.Time{}, authError("oauth", "no access_token in Location fragment", nil)
	}

	var expiresAt time.Time
	if raw := values.Get("expires_in"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", time.Time{}, authError("oauth", "invalid expires_in "+strconv.Quote(raw), err)
		}
		expiresAt = now.Add(time.Duration(seconds) * time.Second)
	}
	return token, expiresAt, nil
}

func (p *OAuthProvider) issuer(ctx context.Context) (string, error) {
	if p.cfg.Issuer != "" {
		return p.cfg.Issuer, nil
	}

	issuer, err := p.discoverIssuer(ctx)
	if err == nil {
		return issuer, nil
	}
	p.opts.logger.Debug("OAuth discovery failed, deriving issuer from server host",
		logging.Provider("oauth"),
		logging.SanitizedErr(err))

	issuer, err = issuerFromHost(p.cfg.Server)
	if err != nil {
		return "", authError("oauth", "cannot determine OAuth issuer", err)
	}
	return issuer, nil
}

func (p *OAuthProvider) discoverIssuer(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(p.cfg.Server, "/")+wellKnownOAuthPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}

	var doc struct {
		Issuer string `json:"issuer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if doc.Issuer == "" {
		return "", fmt.Errorf("discovery document has no issuer")
	}
	return doc.Issuer, nil
}

// issuerFromHost maps https://api.X[:port] to https://oauth-openshift.apps.X.
func issuerFromHost(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if !strings.HasPrefix(host, "api.") {
		return "", fmt.Errorf("server host %q does not start with \"api.\"", host)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://oauth-openshift.apps." + strings.TrimPrefix(host, "api."), nil
}
