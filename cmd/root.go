package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/giantswarm/k8s-resource-client/pkg/kube"
)

// cliConfig receives the persistent flags of rootCmd.
var cliConfig = &CLIConfig{}

// rootCmd represents the base command for the k8s-resource-client application.
var rootCmd = &cobra.Command{
	Use:   "k8s-resource-client",
	Short: "Command-line client for Kubernetes resources",
	Long: `k8s-resource-client reads and changes Kubernetes resources through the
REST API. It resolves clusters and credentials from a kubeconfig and supports
static tokens, token files, exec plugins, EKS IAM tokens, OAuth challenge
login and service account token requests.

Resources can be fetched, listed, applied, patched, scaled, watched and
deleted. Pods additionally support logs and exec.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cliConfig.loadEnv(cmd)
		return nil
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
// It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "k8s-resource-client version %s\n" .Version}}`)

	// Watches, log follows and exec run until interrupted.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		var exitErr *ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags(), cliConfig)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newGetCmd(cliConfig))
	rootCmd.AddCommand(newListCmd(cliConfig))
	rootCmd.AddCommand(newApplyCmd(cliConfig))
	rootCmd.AddCommand(newDeleteCmd(cliConfig))
	rootCmd.AddCommand(newPatchCmd(cliConfig))
	rootCmd.AddCommand(newScaleCmd(cliConfig))
	rootCmd.AddCommand(newWatchCmd(cliConfig))
	rootCmd.AddCommand(newLogsCmd(cliConfig))
	rootCmd.AddCommand(newExecCmd(cliConfig))
	rootCmd.AddCommand(newTokenCmd(cliConfig))
	rootCmd.AddCommand(newContextsCmd(cliConfig))
	rootCmd.AddCommand(newKindsCmd())
}

// addGlobalFlags registers the flags shared by every subcommand.
func addGlobalFlags(flags *pflag.FlagSet, c *CLIConfig) {
	flags.StringVar(&c.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file (env: K8SRC_KUBECONFIG, default: KUBECONFIG or ~/.kube/config)")
	flags.StringVar(&c.Context, "context", "", "Kubeconfig context to use (env: K8SRC_CONTEXT)")
	flags.StringVarP(&c.Namespace, "namespace", "n", "", "Namespace for namespaced resources (env: K8SRC_NAMESPACE)")
	flags.DurationVar(&c.Timeout, "timeout", kube.DefaultTimeout, "Timeout for non-streaming requests (env: K8SRC_TIMEOUT)")
	flags.DurationVar(&c.WatchTimeout, "watch-timeout", 0, "Timeout for watches and log follows, 0 for none (env: K8SRC_WATCH_TIMEOUT)")
	flags.StringVar(&c.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs (env: K8SRC_METRICS_ADDR)")
	flags.BoolVar(&c.Debug, "debug", false, "Enable debug logging (env: K8SRC_DEBUG)")
	flags.StringVar(&c.LogFormat, "log-format", "text", "Log format: text or json (env: K8SRC_LOG_FORMAT)")
	flags.StringVarP(&c.Output, "output", "o", outputYAML, "Output format: yaml, json or name")
	flags.BoolVar(&c.ShowSecrets, "show-secrets", false, "Print Secret values instead of masking them")

	flags.StringVar(&c.Auth.Token, "token", "", "Bearer token overriding the kubeconfig user (env: K8SRC_TOKEN)")
	flags.StringVar(&c.Auth.TokenFile, "token-file", "", "File to read the bearer token from")
	flags.StringVar(&c.Auth.EKSCluster, "eks-cluster", "", "Authenticate with an EKS IAM token for this cluster name")
	flags.StringVar(&c.Auth.EKSRegion, "eks-region", "", "AWS region of the EKS cluster (env: AWS_REGION)")
	flags.StringVar(&c.Auth.EKSRoleARN, "eks-role-arn", "", "IAM role to assume before signing the EKS token")
	flags.StringVar(&c.Auth.OAuthUsername, "oauth-username", "", "Log in through the cluster OAuth server as this user")
	flags.StringVar(&c.Auth.OAuthPassword, "oauth-password", "", "Password for --oauth-username (env: K8SRC_OAUTH_PASSWORD)")
	flags.StringVar(&c.Auth.OAuthIssuer, "oauth-issuer", "", "OAuth issuer URL, skips discovery")
	flags.StringVar(&c.Auth.ServiceAccount, "as-service-account", "", "Act as a service account (namespace/name) using a requested token")
	flags.StringSliceVar(&c.Auth.Audiences, "token-audience", nil, "Audiences for --as-service-account tokens")
	flags.Int64Var(&c.Auth.ExpirationSeconds, "token-expiration", 0, "Lifetime in seconds for --as-service-account tokens (env: K8SRC_TOKEN_EXPIRATION_SECONDS)")
}
