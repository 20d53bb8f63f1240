package kube

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid https", cfg: Config{Server: "https://api.example.com:6443"}},
		{name: "valid http", cfg: Config{Server: "http://127.0.0.1:8080"}},
		{name: "missing server", cfg: Config{}, wantErr: "server URL is required"},
		{name: "bad scheme", cfg: Config{Server: "ftp://api.example.com"}, wantErr: "must be http or https"},
		{name: "no host", cfg: Config{Server: "https://"}, wantErr: "no host"},
		{name: "negative timeout", cfg: Config{Server: "https://a", Timeout: -time.Second}, wantErr: "must not be negative"},
		{name: "negative watch timeout", cfg: Config{Server: "https://a", WatchTimeout: -time.Second}, wantErr: "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Server: "https://api.example.com/", Timeout: 5 * time.Second}.withDefaults()

	assert.Equal(t, "https://api.example.com", cfg.Server)
	assert.Equal(t, DefaultNamespace, cfg.Namespace)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, DefaultResponseHeaderTimeout, cfg.ResponseHeaderTimeout)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Zero(t, cfg.WatchTimeout)
}

func TestConfig_TLSConfig(t *testing.T) {
	t.Run("insecure", func(t *testing.T) {
		cfg := Config{Insecure: true}
		tlsConfig, err := cfg.TLSConfig()
		require.NoError(t, err)
		assert.True(t, tlsConfig.InsecureSkipVerify)
		assert.Nil(t, tlsConfig.RootCAs)
	})

	t.Run("invalid CA data", func(t *testing.T) {
		cfg := Config{CAData: []byte("not a certificate")}
		_, err := cfg.TLSConfig()
		assert.ErrorContains(t, err, "no PEM certificates")
	})

	t.Run("missing CA file", func(t *testing.T) {
		cfg := Config{CAFile: filepath.Join(t.TempDir(), "missing.crt")}
		_, err := cfg.TLSConfig()
		assert.ErrorContains(t, err, "failed to read CA bundle")
	})

	t.Run("key without certificate", func(t *testing.T) {
		cfg := Config{KeyData: []byte("key")}
		_, err := cfg.TLSConfig()
		assert.ErrorContains(t, err, "invalid client certificate")
	})
}

func TestSession_TrustsConfiguredCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"apiVersion": "v1",
			"kind":       "Namespace",
			"metadata":   map[string]interface{}{"name": "kube-system"},
		})
	}))
	defer srv.Close()

	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	caFile := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(caFile, caPEM, 0o600))

	t.Run("from file", func(t *testing.T) {
		s, err := NewSession(Config{Server: srv.URL, CAFile: caFile}, WithLogger(discardLogger()))
		require.NoError(t, err)

		obj, err := s.Get(t.Context(), "ns", "", "kube-system")
		require.NoError(t, err)
		assert.Equal(t, "kube-system", obj.Base().Name())
	})

	t.Run("untrusted", func(t *testing.T) {
		s, err := NewSession(Config{Server: srv.URL}, WithLogger(discardLogger()))
		require.NoError(t, err)

		_, err = s.Get(t.Context(), "ns", "", "kube-system")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrClusterNotReachable)

		var cnr *ClusterNotReachableError
		require.ErrorAs(t, err, &cnr)
		assert.Equal(t, "TLS handshake failed", cnr.Reason)
	})
}
