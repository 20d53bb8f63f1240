package kubeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/giantswarm/k8s-resource-client/pkg/kube"
)

// Options selects the kubeconfig and the context to resolve.
type Options struct {
	// Path is an explicit kubeconfig file. When empty, KUBECONFIG and
	// ~/.kube/config are used.
	Path string
	// Context overrides the current context.
	Context string
	// Namespace overrides the namespace of the context.
	Namespace string
}

// Loaded is a resolved kubeconfig context.
type Loaded struct {
	// Context is the name of the resolved context.
	Context string
	// Cluster is the name of the cluster the context points at.
	Cluster string
	// User is the name of the user entry the context points at.
	User string
	// Config holds the connection parameters for kube.NewSession.
	Config kube.Config
	// Credentials describes how to obtain a bearer token. It is nil when
	// the user entry only carries client certificates.
	Credentials *Credentials
}

// Load reads the kubeconfig selected by opts and resolves its context.
func Load(opts Options) (*Loaded, error) {
	raw, err := loadRaw(opts.Path)
	if err != nil {
		return nil, err
	}
	return Resolve(raw, opts)
}

// LoadBytes parses data as a kubeconfig document and resolves its context.
// Relative file references are resolved against the working directory.
func LoadBytes(data []byte, opts Options) (*Loaded, error) {
	raw, err := clientcmd.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kubeconfig: %w", err)
	}
	return Resolve(raw, opts)
}

// Contexts returns the context names of the kubeconfig at path, sorted,
// and the current context.
func Contexts(path string) ([]string, string, error) {
	raw, err := loadRaw(path)
	if err != nil {
		return nil, "", err
	}
	names := make([]string, 0, len(raw.Contexts))
	for name := range raw.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, raw.CurrentContext, nil
}

func loadRaw(path string) (*clientcmdapi.Config, error) {
	if path == "" {
		if env := os.Getenv(clientcmd.RecommendedConfigPathEnvVar); strings.HasPrefix(env, "~/") {
			home, _ := os.UserHomeDir()
			path = filepath.Join(home, env[2:])
		}
	}
	path = expandHome(path)

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if path != "" {
		loadingRules.ExplicitPath = path
	}

	config := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules,
		&clientcmd.ConfigOverrides{},
	)

	raw, err := config.RawConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	return &raw, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Resolve picks the context named by opts (or the current context) out of
// raw and builds the session configuration for it.
func Resolve(raw *clientcmdapi.Config, opts Options) (*Loaded, error) {
	contextName := opts.Context
	if contextName == "" {
		contextName = raw.CurrentContext
	}
	if contextName == "" {
		return nil, &NotFoundError{Kind: "context", err: ErrContextNotFound}
	}

	kctx, ok := raw.Contexts[contextName]
	if !ok || kctx == nil {
		return nil, &NotFoundError{Kind: "context", Name: contextName, err: ErrContextNotFound}
	}

	cluster, ok := raw.Clusters[kctx.Cluster]
	if !ok || cluster == nil {
		return nil, &NotFoundError{Kind: "cluster", Name: kctx.Cluster, err: ErrClusterNotFound}
	}

	var user *clientcmdapi.AuthInfo
	if kctx.AuthInfo != "" {
		user, ok = raw.AuthInfos[kctx.AuthInfo]
		if !ok || user == nil {
			return nil, &NotFoundError{Kind: "user", Name: kctx.AuthInfo, err: ErrUserNotFound}
		}
	}

	if cluster.Server == "" {
		return nil, fmt.Errorf("cluster %q has no server", kctx.Cluster)
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = kctx.Namespace
	}

	cfg := kube.Config{
		Server:      cluster.Server,
		ClusterName: kctx.Cluster,
		Namespace:   namespace,
		CAData:      cluster.CertificateAuthorityData,
		CAFile:      cluster.CertificateAuthority,
		Insecure:    cluster.InsecureSkipTLSVerify,
	}

	loaded := &Loaded{
		Context: contextName,
		Cluster: kctx.Cluster,
		User:    kctx.AuthInfo,
		Config:  cfg,
	}
	if user == nil {
		return loaded, nil
	}

	loaded.Config.CertData = user.ClientCertificateData
	loaded.Config.CertFile = user.ClientCertificate
	loaded.Config.KeyData = user.ClientKeyData
	loaded.Config.KeyFile = user.ClientKey

	creds, err := credentialsFor(kctx.AuthInfo, user, cluster)
	if err != nil {
		return nil, err
	}
	loaded.Credentials = creds
	return loaded, nil
}
