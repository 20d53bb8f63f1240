package auth

import (
	"context"
	"os"
	"strings"
	"time"
)

// DefaultTokenFile is the service account token mounted into pods.
const DefaultTokenFile = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// DefaultReloadInterval is how often a FileProvider re-reads its file.
const DefaultReloadInterval = time.Minute

// FileProvider reads a token from disk and re-reads it periodically, which
// picks up rotated projected service account tokens.
type FileProvider struct {
	*tokenCache
	path string
}

// NewFileProvider returns a provider reading path, or DefaultTokenFile when
// path is empty. A reloadInterval of zero uses DefaultReloadInterval.
func NewFileProvider(path string, reloadInterval time.Duration, opts ...Option) *FileProvider {
	if path == "" {
		path = DefaultTokenFile
	}
	if reloadInterval <= 0 {
		reloadInterval = DefaultReloadInterval
	}

	p := &FileProvider{path: path}
	p.tokenCache = newTokenCache("file", func(context.Context) (string, time.Time, error) {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return "", time.Time{}, authError("file", "failed to read token file "+p.path, err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", time.Time{}, authError("file", "token file "+p.path+" is empty", nil)
		}
		// The buffer is added so the token stays usable for a full interval.
		return token, p.opts.now().Add(reloadInterval + p.opts.refreshBuffer), nil
	}, opts)
	return p
}

// Path returns the file the provider reads.
func (p *FileProvider) Path() string {
	return p.path
}
