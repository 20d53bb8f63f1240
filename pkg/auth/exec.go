package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientauthenticationv1 "k8s.io/client-go/pkg/apis/clientauthentication/v1"
)

// ExecInfoEnv is the environment variable carrying the ExecCredential
// request to the plugin.
const ExecInfoEnv = "KUBERNETES_EXEC_INFO"

// DefaultExecAPIVersion is the ExecCredential version requested from plugins.
const DefaultExecAPIVersion = "client.authentication.k8s.io/v1"

// ExecConfig describes a credential plugin invocation.
type ExecConfig struct {
	// Command is the executable to run.
	Command string
	Args    []string
	// Env is added to the current process environment.
	Env map[string]string
	// APIVersion of the ExecCredential exchanged with the plugin.
	APIVersion string
	// InstallHint is appended to every error message.
	InstallHint string
	// ProvideClusterInfo passes Cluster to the plugin through ExecInfoEnv.
	ProvideClusterInfo bool
	Cluster            *clientauthenticationv1.Cluster
}

// ExecProvider obtains tokens by running a credential plugin.
type ExecProvider struct {
	*tokenCache
	cfg ExecConfig
}

// NewExecProvider validates cfg and returns a provider for it.
func NewExecProvider(cfg ExecConfig, opts ...Option) (*ExecProvider, error) {
	if cfg.Command == "" {
		return nil, authError("exec", "command is required", nil)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultExecAPIVersion
	}

	p := &ExecProvider{cfg: cfg}
	p.tokenCache = newTokenCache("exec", p.run, opts)
	return p, nil
}

func (p *ExecProvider) run(ctx context.Context) (string, time.Time, error) {
	cmd := exec.CommandContext(ctx, p.cfg.Command, p.cfg.Args...)

	env, err := p.environ()
	if err != nil {
		return "", time.Time{}, p.fail("failed to encode cluster info", err)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := fmt.Sprintf("command %q exited with code %d", p.cfg.Command, exitErr.ExitCode())
			if s := strings.TrimSpace(stderr.String()); s != "" {
				msg += ": " + s
			}
			return "", time.Time{}, p.fail(msg, nil)
		}
		return "", time.Time{}, p.fail(fmt.Sprintf("failed to run command %q", p.cfg.Command), err)
	}

	var cred clientauthenticationv1.ExecCredential
	if err := json.Unmarshal(stdout.Bytes(), &cred); err != nil {
		return "", time.Time{}, p.fail("Invalid JSON output", err)
	}
	if cred.Status == nil || cred.Status.Token == "" {
		return "", time.Time{}, p.fail("missing status.token", nil)
	}

	var expiresAt time.Time
	if ts := cred.Status.ExpirationTimestamp; ts != nil {
		expiresAt = ts.Time
	}
	return cred.Status.Token, expiresAt, nil
}

func (p *ExecProvider) environ() ([]string, error) {
	env := os.Environ()

	keys := make([]string, 0, len(p.cfg.Env))
	for k := range p.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+p.cfg.Env[k])
	}

	if !p.cfg.ProvideClusterInfo {
		return env, nil
	}

	info := clientauthenticationv1.ExecCredential{
		TypeMeta: metav1.TypeMeta{APIVersion: p.cfg.APIVersion, Kind: "ExecCredential"},
		Spec: clientauthenticationv1.ExecCredentialSpec{
			Cluster:     p.cfg.Cluster,
			Interactive: false,
		},
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	return append(env, ExecInfoEnv+"="+string(data)), nil
}

func (p *ExecProvider) fail(message string, err error) error {
	if p.cfg.InstallHint != "" {
		message += ". " + p.cfg.InstallHint
	}
	return authError("exec", message, err)
}
