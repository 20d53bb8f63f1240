package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientauthenticationv1 "k8s.io/client-go/pkg/apis/clientauthentication/v1"
)

// TestExecHelperProcess is not a real test. It is re-executed by the exec
// provider tests as a fake credential plugin.
func TestExecHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	mode := os.Args[len(os.Args)-1]
	switch mode {
	case "token":
		fmt.Print(`{"status":{"token":"t1"}}`)
	case "expiring":
		fmt.Print(`{"apiVersion":"client.authentication.k8s.io/v1","kind":"ExecCredential","status":{"token":"t2","expirationTimestamp":"2030-01-02T03:04:05Z"}}`)
	case "no-token":
		fmt.Print(`{"status":{}}`)
	case "garbage":
		fmt.Print(`not json`)
	case "fail":
		fmt.Fprint(os.Stderr, "plugin exploded")
		os.Exit(3)
	case "echo-info":
		var cred clientauthenticationv1.ExecCredential
		if err := json.Unmarshal([]byte(os.Getenv(ExecInfoEnv)), &cred); err != nil {
			os.Exit(4)
		}
		out := fmt.Sprintf(`{"status":{"token":%q}}`, cred.Kind+"|"+cred.Spec.Cluster.Server+"|"+os.Getenv("EXTRA"))
		fmt.Print(out)
	}
}

func helperExecConfig(mode string) ExecConfig {
	return ExecConfig{
		Command:     os.Args[0],
		Args:        []string{"-test.run=TestExecHelperProcess", "--", mode},
		Env:         map[string]string{"GO_WANT_HELPER_PROCESS": "1"},
		InstallHint: "install the fake plugin",
	}
}

func TestExecProvider_Token(t *testing.T) {
	p, err := NewExecProvider(helperExecConfig("token"))
	require.NoError(t, err)

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", token)
	assert.True(t, p.ExpiresAt().IsZero())
	assert.False(t, p.IsExpired())
}

func TestExecProvider_ExpirationTimestamp(t *testing.T) {
	p, err := NewExecProvider(helperExecConfig("expiring"))
	require.NoError(t, err)

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t2", token)
	assert.True(t, p.ExpiresAt().Equal(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestExecProvider_Errors(t *testing.T) {
	tests := []struct {
		mode     string
		contains string
	}{
		{mode: "no-token", contains: "missing status.token"},
		{mode: "garbage", contains: "Invalid JSON output"},
		{mode: "fail", contains: "exited with code 3"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			p, err := NewExecProvider(helperExecConfig(tt.mode))
			require.NoError(t, err)

			_, err = p.Token(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAuthentication)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Contains(t, err.Error(), "install the fake plugin")
		})
	}
}

func TestExecProvider_StderrIncludedOnFailure(t *testing.T) {
	p, err := NewExecProvider(helperExecConfig("fail"))
	require.NoError(t, err)

	_, err = p.Token(context.Background())
	assert.ErrorContains(t, err, "plugin exploded")
}

func TestExecProvider_ClusterInfo(t *testing.T) {
	cfg := helperExecConfig("echo-info")
	cfg.Env["EXTRA"] = "x"
	cfg.ProvideClusterInfo = true
	cfg.Cluster = &clientauthenticationv1.Cluster{Server: "https://api.example.com"}

	p, err := NewExecProvider(cfg)
	require.NoError(t, err)

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ExecCredential|https://api.example.com|x", token)
}

func TestExecProvider_MissingCommand(t *testing.T) {
	_, err := NewExecProvider(ExecConfig{})
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestExecProvider_MissingBinary(t *testing.T) {
	p, err := NewExecProvider(ExecConfig{Command: "/nonexistent/credential-plugin", InstallHint: "see docs"})
	require.NoError(t, err)

	_, err = p.Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorContains(t, err, "see docs")
}
