package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientauthenticationv1 "k8s.io/client-go/pkg/apis/clientauthentication/v1"

	"github.com/giantswarm/k8s-resource-client/pkg/auth"
)

func newTokenCmd(config *CLIConfig) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token as an ExecCredential",
		Long: `Resolve a bearer token with the selected credentials and print it as a
client.authentication.k8s.io/v1 ExecCredential. The output can be consumed by
any kubeconfig exec plugin entry, which makes the EKS, OAuth and service
account providers usable from other clients.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				if rt.provider == nil {
					return fmt.Errorf("context %q has no token credentials", rt.loaded.Context)
				}
				return writeExecCredential(ctx, cmd.OutOrStdout(), rt.provider, refresh)
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Acquire a new token even if a cached one is still valid")
	return cmd
}

// writeExecCredential resolves a token from provider and writes it to w.
func writeExecCredential(ctx context.Context, w io.Writer, provider auth.Provider, refresh bool) error {
	if refresh {
		if err := provider.Refresh(ctx); err != nil {
			return err
		}
	}
	token, err := provider.Token(ctx)
	if err != nil {
		return err
	}

	cred := execCredential(token, provider.ExpiresAt())
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// execCredential wraps token in an ExecCredential. A zero expiresAt leaves
// the expiration unset.
func execCredential(token string, expiresAt time.Time) *clientauthenticationv1.ExecCredential {
	cred := &clientauthenticationv1.ExecCredential{
		TypeMeta: metav1.TypeMeta{
			APIVersion: clientauthenticationv1.SchemeGroupVersion.String(),
			Kind:       "ExecCredential",
		},
		Status: &clientauthenticationv1.ExecCredentialStatus{Token: token},
	}
	if !expiresAt.IsZero() {
		ts := metav1.NewTime(expiresAt)
		cred.Status.ExpirationTimestamp = &ts
	}
	return cred
}
