package kube

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Default session settings.
const (
	DefaultNamespace             = "default"
	DefaultTimeout               = 30 * time.Second
	DefaultConnectTimeout        = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultUserAgent             = "k8s-resource-client"
)

// Config holds the connection parameters of a Session. It is typically
// produced by the kubeconfig package.
type Config struct {
	// Server is the API server URL, e.g. "https://api.example.com:6443".
	Server string

	// ClusterName is used for logging and span attributes only.
	ClusterName string

	// Namespace is used for namespaced resources that do not set one.
	Namespace string

	// TLS material. File fields are read when the matching data field is
	// empty.
	CAData   []byte
	CAFile   string
	CertData []byte
	CertFile string
	KeyData  []byte
	KeyFile  string
	Insecure bool

	// Timeout bounds non-streaming requests end to end.
	Timeout time.Duration
	// ConnectTimeout bounds TCP connect and the WebSocket handshake.
	ConnectTimeout time.Duration
	// ResponseHeaderTimeout bounds the wait for response headers.
	ResponseHeaderTimeout time.Duration
	// WatchTimeout bounds streaming calls. Zero means no limit.
	WatchTimeout time.Duration

	UserAgent string
}

// DefaultConfig returns a Config with default timeouts and namespace.
func DefaultConfig() Config {
	return Config{
		Namespace:             DefaultNamespace,
		Timeout:               DefaultTimeout,
		ConnectTimeout:        DefaultConnectTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		UserAgent:             DefaultUserAgent,
	}
}

// Validate checks that the configuration can be used to build a session.
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.New("server URL is required")
	}
	u, err := url.Parse(c.Server)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server URL scheme %q: must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("server URL has no host")
	}
	if c.Timeout < 0 || c.ConnectTimeout < 0 || c.ResponseHeaderTimeout < 0 || c.WatchTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Namespace == "" {
		c.Namespace = d.Namespace
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ResponseHeaderTimeout == 0 {
		c.ResponseHeaderTimeout = d.ResponseHeaderTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	c.Server = strings.TrimSuffix(c.Server, "/")
	return c
}

// TLSConfig builds the client TLS configuration.
func (c *Config) TLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		// #nosec G402 -- only when the kubeconfig explicitly asks for it
		InsecureSkipVerify: c.Insecure,
	}

	caData, err := dataOrFile(c.CAData, c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle: %w", err)
	}
	if len(caData) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caData) {
			return nil, errors.New("CA bundle contains no PEM certificates")
		}
		tlsConfig.RootCAs = pool
	}

	certData, err := dataOrFile(c.CertData, c.CertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client certificate: %w", err)
	}
	keyData, err := dataOrFile(c.KeyData, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client key: %w", err)
	}
	if len(certData) > 0 || len(keyData) > 0 {
		cert, err := tls.X509KeyPair(certData, keyData)
		if err != nil {
			return nil, fmt.Errorf("invalid client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func dataOrFile(data []byte, path string) ([]byte, error) {
	if len(data) > 0 || path == "" {
		return data, nil
	}
	return os.ReadFile(path) // #nosec G304 -- path comes from the kubeconfig
}
