package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giantswarm/k8s-resource-client/internal/instrumentation"
	"github.com/giantswarm/k8s-resource-client/internal/logging"
	"github.com/giantswarm/k8s-resource-client/internal/output"
	"github.com/giantswarm/k8s-resource-client/pkg/auth"
	"github.com/giantswarm/k8s-resource-client/pkg/kube"
	"github.com/giantswarm/k8s-resource-client/pkg/kubeconfig"
)

// Output format names accepted by --output.
const (
	outputJSON = string(output.FormatJSON)
	outputYAML = string(output.FormatYAML)
	outputName = string(output.FormatName)
)

// metricsShutdownTimeout bounds the shutdown of the metrics listener.
const metricsShutdownTimeout = 5 * time.Second

// clientRuntime is everything a subcommand needs to talk to the cluster.
type clientRuntime struct {
	config   *CLIConfig
	logger   *slog.Logger
	loaded   *kubeconfig.Loaded
	provider auth.Provider
	session  *kube.Session
	printer  *output.Printer

	instrumentation *instrumentation.Provider
	metricsServer   *http.Server
}

// newLogger builds the process logger from the global flags.
func newLogger(w io.Writer, config *CLIConfig) *slog.Logger {
	return logging.NewLogger(w, config.Debug, config.LogFormat == "json")
}

// connect resolves the kubeconfig, starts instrumentation and builds a
// session. The caller must call close.
func connect(ctx context.Context, config *CLIConfig, stdout, stderr io.Writer) (*clientRuntime, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	rt := &clientRuntime{
		config: config,
		logger: newLogger(stderr, config),
		printer: output.NewPrinter(stdout, output.Options{
			Format:      output.Format(config.Output),
			ShowSecrets: config.ShowSecrets,
		}),
	}

	if err := rt.startInstrumentation(ctx); err != nil {
		return nil, err
	}

	loaded, err := kubeconfig.Load(kubeconfig.Options{
		Path:      config.Kubeconfig,
		Context:   config.Context,
		Namespace: config.Namespace,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.loaded = loaded

	sessionConfig := loaded.Config
	sessionConfig.Timeout = config.Timeout
	sessionConfig.WatchTimeout = config.WatchTimeout
	sessionConfig.UserAgent = "k8s-resource-client/" + rootCmd.Version

	provider, err := rt.tokenProvider(sessionConfig)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.provider = provider

	opts := []kube.Option{
		kube.WithLogger(rt.logger),
		kube.WithMetrics(rt.instrumentation.Metrics()),
	}
	if provider != nil {
		opts = append(opts, kube.WithTokenProvider(provider))
	}

	session, err := kube.NewSession(sessionConfig, opts...)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	rt.session = session

	rt.logger.Debug("connected",
		"context", loaded.Context,
		logging.Host(sessionConfig.Server),
		logging.Namespace(session.Namespace()),
		"instrumentation", rt.instrumentation.Enabled())
	return rt, nil
}

// startInstrumentation enables metrics when --metrics-addr is set and
// serves them from a dedicated Prometheus registry.
func (rt *clientRuntime) startInstrumentation(ctx context.Context) error {
	config := instrumentation.DefaultConfig()
	config.ServiceVersion = rootCmd.Version

	var opts []instrumentation.ProviderOption
	var registry *prometheus.Registry
	if rt.config.MetricsAddr != "" {
		config.Enabled = true
		config.MetricsExporter = instrumentation.ExporterPrometheus
		registry = prometheus.NewRegistry()
		opts = append(opts, instrumentation.WithPrometheusRegisterer(registry))
	}

	provider, err := instrumentation.NewProvider(ctx, config, opts...)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	rt.instrumentation = provider

	if registry == nil {
		return nil
	}

	listener, err := net.Listen("tcp", rt.config.MetricsAddr)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", rt.config.MetricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	rt.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := rt.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server stopped", logging.Err(err))
		}
	}()
	rt.logger.Info("serving metrics", "addr", listener.Addr().String())
	return nil
}

// tokenProvider returns the provider selected by the auth flags, falling
// back to the kubeconfig user.
func (rt *clientRuntime) tokenProvider(sessionConfig kube.Config) (auth.Provider, error) {
	opts := []auth.Option{
		auth.WithLogger(rt.logger),
		auth.WithRefreshObserver(rt.observeRefresh),
	}
	a := rt.config.Auth

	source, err := a.source()
	if err != nil {
		return nil, err
	}

	switch source {
	case "token":
		return auth.NewStaticProvider(a.Token, opts...), nil

	case "token-file":
		return auth.NewFileProvider(a.TokenFile, 0, opts...), nil

	case "eks":
		return auth.NewEKSProvider(auth.EKSConfig{
			ClusterName: a.EKSCluster,
			Region:      a.EKSRegion,
			RoleARN:     a.EKSRoleARN,
		}, opts...)

	case "oauth":
		client, err := tlsHTTPClient(sessionConfig)
		if err != nil {
			return nil, err
		}
		return auth.NewOAuthProvider(auth.OAuthConfig{
			Server:     sessionConfig.Server,
			Issuer:     a.OAuthIssuer,
			Username:   a.OAuthUsername,
			Password:   a.OAuthPassword,
			HTTPClient: client,
		}, opts...)

	case "service-account":
		return rt.serviceAccountProvider(sessionConfig, opts)
	}

	return rt.loaded.Provider(opts...)
}

// serviceAccountProvider mints tokens for a service account, authenticating
// the TokenRequest with the kubeconfig credentials.
func (rt *clientRuntime) serviceAccountProvider(sessionConfig kube.Config, opts []auth.Option) (auth.Provider, error) {
	namespace, name, err := rt.config.Auth.serviceAccountRef()
	if err != nil {
		return nil, err
	}

	bootstrap, err := rt.loaded.Provider(opts...)
	if err != nil {
		return nil, err
	}
	if bootstrap == nil {
		return nil, fmt.Errorf("context %q has no token credentials to request a service account token with", rt.loaded.Context)
	}
	token, err := bootstrap.Token(context.Background())
	if err != nil {
		return nil, err
	}

	client, err := tlsHTTPClient(sessionConfig)
	if err != nil {
		return nil, err
	}
	return auth.NewTokenRequestProvider(auth.TokenRequestConfig{
		Server:            sessionConfig.Server,
		Namespace:         namespace,
		ServiceAccount:    name,
		Audiences:         rt.config.Auth.Audiences,
		ExpirationSeconds: rt.config.Auth.ExpirationSeconds,
		BootstrapToken:    token,
		HTTPClient:        client,
	}, opts...)
}

func (rt *clientRuntime) observeRefresh(ctx context.Context, provider string, duration time.Duration, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	rt.instrumentation.Metrics().RecordTokenRefresh(ctx, provider, status, duration)
}

// tlsHTTPClient returns an HTTP client trusting the cluster CA, for the
// providers that call the API server themselves.
func tlsHTTPClient(config kube.Config) (*http.Client, error) {
	tlsConfig, err := config.TLSConfig()
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: kube.DefaultTimeout,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

// close stops the metrics server and flushes instrumentation.
func (rt *clientRuntime) close() {
	if rt.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := rt.metricsServer.Shutdown(ctx); err != nil {
			rt.logger.Warn("failed to stop metrics server", logging.Err(err))
		}
	}
	if rt.instrumentation != nil {
		if err := rt.instrumentation.Shutdown(context.Background()); err != nil {
			rt.logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}
}
