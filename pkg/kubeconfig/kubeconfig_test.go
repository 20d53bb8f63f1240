package kubeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/k8s-resource-client/pkg/auth"
)

const testKubeconfig = `apiVersion: v1
kind: Config
current-context: dev
clusters:
- name: dev-cluster
  cluster:
    server: https://dev.example.com:6443
    certificate-authority: ca.crt
- name: prod-cluster
  cluster:
    server: https://prod.example.com
    insecure-skip-tls-verify: true
- name: empty-cluster
  cluster:
    insecure-skip-tls-verify: true
contexts:
- name: dev
  context:
    cluster: dev-cluster
    user: dev-user
    namespace: team-a
- name: prod
  context:
    cluster: prod-cluster
    user: prod-user
- name: certs
  context:
    cluster: dev-cluster
    user: cert-user
- name: anonymous
  context:
    cluster: prod-cluster
- name: broken-cluster
  context:
    cluster: missing
    user: dev-user
- name: broken-user
  context:
    cluster: dev-cluster
    user: missing
- name: no-server
  context:
    cluster: empty-cluster
- name: legacy
  context:
    cluster: dev-cluster
    user: gcp-user
- name: basic
  context:
    cluster: dev-cluster
    user: basic-user
- name: file
  context:
    cluster: dev-cluster
    user: file-user
users:
- name: dev-user
  user:
    token: dev-token
- name: prod-user
  user:
    exec:
      apiVersion: client.authentication.k8s.io/v1
      command: aws
      args: ["eks", "get-token", "--cluster-name", "prod"]
      env:
      - name: AWS_PROFILE
        value: prod
      installHint: install the aws cli
      provideClusterInfo: true
      interactiveMode: Never
- name: cert-user
  user:
    client-certificate-data: Y2VydA==
    client-key-data: a2V5
- name: gcp-user
  user:
    auth-provider:
      name: gcp
- name: basic-user
  user:
    username: admin
    password: secret
- name: file-user
  user:
    tokenFile: /var/run/token
`

func writeKubeconfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0o600))
	return path
}

func TestLoad_CurrentContext(t *testing.T) {
	path := writeKubeconfig(t)

	loaded, err := Load(Options{Path: path})
	require.NoError(t, err)

	assert.Equal(t, "dev", loaded.Context)
	assert.Equal(t, "dev-cluster", loaded.Cluster)
	assert.Equal(t, "dev-user", loaded.User)
	assert.Equal(t, "https://dev.example.com:6443", loaded.Config.Server)
	assert.Equal(t, "dev-cluster", loaded.Config.ClusterName)
	assert.Equal(t, "team-a", loaded.Config.Namespace)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "ca.crt"), loaded.Config.CAFile)
	assert.False(t, loaded.Config.Insecure)

	require.NotNil(t, loaded.Credentials)
	assert.Equal(t, SourceToken, loaded.Credentials.Source)

	provider, err := loaded.Provider()
	require.NoError(t, err)
	token, err := provider.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "dev-token", token)
}

func TestLoad_ExplicitContextAndNamespace(t *testing.T) {
	loaded, err := Load(Options{Path: writeKubeconfig(t), Context: "prod", Namespace: "ops"})
	require.NoError(t, err)

	assert.Equal(t, "https://prod.example.com", loaded.Config.Server)
	assert.Equal(t, "ops", loaded.Config.Namespace)
	assert.True(t, loaded.Config.Insecure)

	require.NotNil(t, loaded.Credentials)
	require.Equal(t, SourceExec, loaded.Credentials.Source)
	exec := loaded.Credentials.Exec
	assert.Equal(t, "aws", exec.Command)
	assert.Equal(t, []string{"eks", "get-token", "--cluster-name", "prod"}, exec.Args)
	assert.Equal(t, map[string]string{"AWS_PROFILE": "prod"}, exec.Env)
	assert.Equal(t, "client.authentication.k8s.io/v1", exec.APIVersion)
	assert.Equal(t, "install the aws cli", exec.InstallHint)
	require.NotNil(t, exec.Cluster)
	assert.Equal(t, "https://prod.example.com", exec.Cluster.Server)
	assert.True(t, exec.Cluster.InsecureSkipTLSVerify)

	provider, err := loaded.Provider()
	require.NoError(t, err)
	assert.IsType(t, &auth.ExecProvider{}, provider)
}

func TestLoad_ClientCertificatesOnly(t *testing.T) {
	loaded, err := Load(Options{Path: writeKubeconfig(t), Context: "certs"})
	require.NoError(t, err)

	assert.Equal(t, []byte("cert"), loaded.Config.CertData)
	assert.Equal(t, []byte("key"), loaded.Config.KeyData)
	assert.Nil(t, loaded.Credentials)

	provider, err := loaded.Provider()
	require.NoError(t, err)
	assert.Nil(t, provider)
}

func TestLoad_TokenFile(t *testing.T) {
	loaded, err := Load(Options{Path: writeKubeconfig(t), Context: "file"})
	require.NoError(t, err)

	require.NotNil(t, loaded.Credentials)
	assert.Equal(t, SourceTokenFile, loaded.Credentials.Source)
	assert.Equal(t, "/var/run/token", loaded.Credentials.TokenFile)

	provider, err := loaded.Provider()
	require.NoError(t, err)
	fp, ok := provider.(*auth.FileProvider)
	require.True(t, ok)
	assert.Equal(t, "/var/run/token", fp.Path())
}

func TestLoad_AnonymousContext(t *testing.T) {
	loaded, err := Load(Options{Path: writeKubeconfig(t), Context: "anonymous"})
	require.NoError(t, err)
	assert.Empty(t, loaded.User)
	assert.Nil(t, loaded.Credentials)
}

func TestLoad_Errors(t *testing.T) {
	path := writeKubeconfig(t)

	tests := []struct {
		name    string
		context string
		target  error
		message string
	}{
		{"missing context", "staging", ErrContextNotFound, `context "staging" not found in kubeconfig`},
		{"missing cluster", "broken-cluster", ErrClusterNotFound, `cluster "missing" not found in kubeconfig`},
		{"missing user", "broken-user", ErrUserNotFound, `user "missing" not found in kubeconfig`},
		{"auth provider", "legacy", ErrUnsupportedAuth, `user "gcp-user" uses auth-provider gcp, which is not supported`},
		{"basic auth", "basic", ErrUnsupportedAuth, `user "basic-user" uses basic auth, which is not supported`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(Options{Path: path, Context: tt.context})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.EqualError(t, err, tt.message)
		})
	}

	_, err := Load(Options{Path: path, Context: "no-server"})
	assert.ErrorContains(t, err, `cluster "empty-cluster" has no server`)

	var nf *NotFoundError
	_, err = Load(Options{Path: path, Context: "staging"})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "context", nf.Kind)
}

func TestLoadBytes_NoCurrentContext(t *testing.T) {
	_, err := LoadBytes([]byte("apiVersion: v1\nkind: Config\n"), Options{})
	assert.ErrorIs(t, err, ErrContextNotFound)
	assert.EqualError(t, err, "no current context set in kubeconfig")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(Options{Path: filepath.Join(t.TempDir(), "absent")})
	assert.ErrorContains(t, err, "failed to load kubeconfig")
}

func TestContexts(t *testing.T) {
	names, current, err := Contexts(writeKubeconfig(t))
	require.NoError(t, err)
	assert.Equal(t, "dev", current)
	assert.Equal(t, []string{"anonymous", "basic", "broken-cluster", "broken-user", "certs", "dev", "file", "legacy", "no-server", "prod"}, names)
}

func TestCredentials_UnknownSource(t *testing.T) {
	_, err := (&Credentials{Source: "magic"}).Provider()
	assert.Error(t, err)
}
