package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Environment variables read when the matching flag is not set.
const (
	envKubeconfig    = "K8SRC_KUBECONFIG"
	envContext       = "K8SRC_CONTEXT"
	envNamespace     = "K8SRC_NAMESPACE"
	envTimeout       = "K8SRC_TIMEOUT"
	envWatchTimeout  = "K8SRC_WATCH_TIMEOUT"
	envMetricsAddr   = "K8SRC_METRICS_ADDR"
	envDebug         = "K8SRC_DEBUG"
	envLogFormat     = "K8SRC_LOG_FORMAT"
	envToken         = "K8SRC_TOKEN"
	envOAuthPassword = "K8SRC_OAUTH_PASSWORD"
	envAWSRegion     = "AWS_REGION"
	envTokenTTL      = "K8SRC_TOKEN_EXPIRATION_SECONDS"
)

// envValueTrue is the string value used to enable boolean environment variables.
const envValueTrue = "true"

// CLIConfig holds the global flags shared by every subcommand.
type CLIConfig struct {
	// Kubeconfig selection
	Kubeconfig string
	Context    string
	Namespace  string

	// Request limits
	Timeout      time.Duration
	WatchTimeout time.Duration

	// Observability
	MetricsAddr string
	Debug       bool
	LogFormat   string

	// Output
	Output      string
	ShowSecrets bool

	// Credentials overriding the kubeconfig user
	Auth AuthConfig
}

// AuthConfig selects a token provider other than the one named by the
// kubeconfig user entry. At most one source may be set.
type AuthConfig struct {
	Token     string
	TokenFile string

	EKSCluster string
	EKSRegion  string
	EKSRoleARN string

	OAuthUsername string
	OAuthPassword string
	OAuthIssuer   string

	// ServiceAccount is namespace/name. The kubeconfig credentials are used
	// to request a token for it.
	ServiceAccount    string
	Audiences         []string
	ExpirationSeconds int64
}

// source names the configured override, or "" when none is set.
func (a AuthConfig) source() (string, error) {
	var sources []string
	if a.Token != "" {
		sources = append(sources, "token")
	}
	if a.TokenFile != "" {
		sources = append(sources, "token-file")
	}
	if a.EKSCluster != "" {
		sources = append(sources, "eks")
	}
	if a.OAuthUsername != "" {
		sources = append(sources, "oauth")
	}
	if a.ServiceAccount != "" {
		sources = append(sources, "service-account")
	}
	switch len(sources) {
	case 0:
		return "", nil
	case 1:
		return sources[0], nil
	default:
		return "", fmt.Errorf("only one credential source may be set, got %s", strings.Join(sources, ", "))
	}
}

// serviceAccountRef splits ServiceAccount into namespace and name.
func (a AuthConfig) serviceAccountRef() (string, string, error) {
	namespace, name, ok := strings.Cut(a.ServiceAccount, "/")
	if !ok || namespace == "" || name == "" {
		return "", "", fmt.Errorf("service account must be namespace/name, got %q", a.ServiceAccount)
	}
	return namespace, name, nil
}

// Validate checks flag combinations that cannot be caught by cobra.
func (c *CLIConfig) Validate() error {
	if c.Timeout < 0 || c.WatchTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q: must be text or json", c.LogFormat)
	}
	switch c.Output {
	case "", outputJSON, outputYAML, outputName:
	default:
		return fmt.Errorf("unsupported output format %q: must be json, yaml or name", c.Output)
	}
	if _, err := c.Auth.source(); err != nil {
		return err
	}
	if c.Auth.ServiceAccount != "" {
		if _, _, err := c.Auth.serviceAccountRef(); err != nil {
			return err
		}
	}
	return nil
}

// loadEnv fills every flag the user did not set from its environment
// variable.
func (c *CLIConfig) loadEnv(cmd *cobra.Command) {
	flags := cmd.Flags()

	if !flags.Changed("kubeconfig") {
		loadEnvIfEmpty(&c.Kubeconfig, envKubeconfig)
	}
	if !flags.Changed("context") {
		loadEnvIfEmpty(&c.Context, envContext)
	}
	if !flags.Changed("namespace") {
		loadEnvIfEmpty(&c.Namespace, envNamespace)
	}
	if !flags.Changed("metrics-addr") {
		loadEnvIfEmpty(&c.MetricsAddr, envMetricsAddr)
	}
	if !flags.Changed("log-format") {
		if v := os.Getenv(envLogFormat); v != "" {
			c.LogFormat = v
		}
	}
	if !flags.Changed("timeout") {
		if d, ok := parseDurationEnv(os.Getenv(envTimeout), envTimeout); ok {
			c.Timeout = d
		}
	}
	if !flags.Changed("watch-timeout") {
		if d, ok := parseDurationEnv(os.Getenv(envWatchTimeout), envWatchTimeout); ok {
			c.WatchTimeout = d
		}
	}
	if !flags.Changed("debug") && os.Getenv(envDebug) == envValueTrue {
		c.Debug = true
	}

	if source, _ := c.Auth.source(); source == "" {
		loadEnvIfEmpty(&c.Auth.Token, envToken)
	}
	loadEnvIfEmpty(&c.Auth.OAuthPassword, envOAuthPassword)
	if c.Auth.EKSCluster != "" {
		loadEnvIfEmpty(&c.Auth.EKSRegion, envAWSRegion)
	}
	if !flags.Changed("token-expiration") {
		if n, ok := parseIntEnv(os.Getenv(envTokenTTL), envTokenTTL); ok {
			c.Auth.ExpirationSeconds = n
		}
	}
}

// loadEnvIfEmpty loads an environment variable into a string pointer if it's empty.
func loadEnvIfEmpty(target *string, envKey string) {
	if *target == "" {
		*target = os.Getenv(envKey)
	}
}

// parseDurationEnv parses a duration from an environment variable value.
// Returns the parsed duration and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseDurationEnv(value, envName string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment", "env", envName, "value", value, "error", err)
		return 0, false
	}
	return d, true
}

// parseIntEnv parses an integer from an environment variable value.
// Returns the parsed int and true if successful, or zero and false if parsing fails.
func parseIntEnv(value, envName string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		slog.Warn("invalid integer in environment", "env", envName, "value", value, "error", err)
		return 0, false
	}
	return n, true
}
