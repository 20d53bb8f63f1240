package kubeconfig

import (
	"fmt"

	clientauthenticationv1 "k8s.io/client-go/pkg/apis/clientauthentication/v1"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/giantswarm/k8s-resource-client/pkg/auth"
)

// CredentialSource identifies where a user entry gets its token from.
type CredentialSource string

const (
	SourceToken     CredentialSource = "token"
	SourceTokenFile CredentialSource = "token-file"
	SourceExec      CredentialSource = "exec"
)

// Credentials is the token configuration of a kubeconfig user entry.
type Credentials struct {
	Source    CredentialSource
	Token     string
	TokenFile string
	Exec      *auth.ExecConfig
}

// Provider builds the auth.Provider for the credentials.
func (c *Credentials) Provider(opts ...auth.Option) (auth.Provider, error) {
	switch c.Source {
	case SourceToken:
		return auth.NewStaticProvider(c.Token, opts...), nil
	case SourceTokenFile:
		return auth.NewFileProvider(c.TokenFile, 0, opts...), nil
	case SourceExec:
		return auth.NewExecProvider(*c.Exec, opts...)
	default:
		return nil, fmt.Errorf("unknown credential source %q", c.Source)
	}
}

// Provider returns the token provider of the resolved context, or nil when
// the context authenticates with client certificates only.
func (l *Loaded) Provider(opts ...auth.Option) (auth.Provider, error) {
	if l.Credentials == nil {
		return nil, nil
	}
	return l.Credentials.Provider(opts...)
}

// credentialsFor maps a user entry to its token source. A token takes
// precedence over a token file, and both over an exec plugin.
func credentialsFor(name string, user *clientcmdapi.AuthInfo, cluster *clientcmdapi.Cluster) (*Credentials, error) {
	switch {
	case user.Token != "":
		return &Credentials{Source: SourceToken, Token: user.Token}, nil
	case user.TokenFile != "":
		return &Credentials{Source: SourceTokenFile, TokenFile: user.TokenFile}, nil
	case user.Exec != nil:
		return &Credentials{Source: SourceExec, Exec: execConfig(user.Exec, cluster)}, nil
	case user.AuthProvider != nil:
		return nil, &UnsupportedAuthError{User: name, Method: "auth-provider " + user.AuthProvider.Name}
	case user.Username != "" || user.Password != "":
		return nil, &UnsupportedAuthError{User: name, Method: "basic auth"}
	default:
		return nil, nil
	}
}

func execConfig(in *clientcmdapi.ExecConfig, cluster *clientcmdapi.Cluster) *auth.ExecConfig {
	out := &auth.ExecConfig{
		Command:            in.Command,
		Args:               append([]string(nil), in.Args...),
		APIVersion:         in.APIVersion,
		InstallHint:        in.InstallHint,
		ProvideClusterInfo: in.ProvideClusterInfo,
	}
	if len(in.Env) > 0 {
		out.Env = make(map[string]string, len(in.Env))
		for _, e := range in.Env {
			out.Env[e.Name] = e.Value
		}
	}
	if in.ProvideClusterInfo {
		out.Cluster = &clientauthenticationv1.Cluster{
			Server:                   cluster.Server,
			TLSServerName:            cluster.TLSServerName,
			InsecureSkipTLSVerify:    cluster.InsecureSkipTLSVerify,
			CertificateAuthorityData: cluster.CertificateAuthorityData,
			ProxyURL:                 cluster.ProxyURL,
		}
	}
	return out
}
