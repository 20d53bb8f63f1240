package instrumentation

import "strings"

// Cardinality management helpers for metrics and span attributes.
// These functions reduce high-cardinality label values to prevent metrics explosion.

// ClusterType represents a classification of kubeconfig context or cluster
// names for metrics.
type ClusterType string

// Cluster type classifications for metrics cardinality control.
const (
	ClusterTypeProduction  ClusterType = "production"
	ClusterTypeStaging     ClusterType = "staging"
	ClusterTypeDevelopment ClusterType = "development"
	ClusterTypeLocal       ClusterType = "local"
	ClusterTypeUnknown     ClusterType = "unknown"
	ClusterTypeOther       ClusterType = "other"
)

type clusterPattern struct {
	kind     ClusterType
	prefixes []string
	contains []string
	suffixes []string
}

// Patterns are checked in order. Local development clusters come first
// because names like "kind-dev" would otherwise match development.
var clusterPatterns = []clusterPattern{
	{
		kind:     ClusterTypeLocal,
		prefixes: []string{"kind-", "k3d-", "minikube", "docker-desktop", "rancher-desktop"},
	},
	{
		kind:     ClusterTypeProduction,
		prefixes: []string{"prod-", "prod_", "prd-"},
		contains: []string{"production", "-prod-"},
		suffixes: []string{"-prod", "-prd"},
	},
	{
		kind:     ClusterTypeStaging,
		prefixes: []string{"staging-", "staging_", "stg-"},
		contains: []string{"staging", "-stg-"},
		suffixes: []string{"-stg"},
	},
	{
		kind:     ClusterTypeDevelopment,
		prefixes: []string{"dev-", "dev_", "test-", "test_"},
		contains: []string{"development", "-dev-", "-test-"},
		suffixes: []string{"-dev", "-test"},
	},
}

// ClassifyClusterName classifies a context or cluster name into a coarse type
// so spans can carry it without one series per cluster.
//
// # Examples
//
//	ClassifyClusterName("")                 // "unknown"
//	ClassifyClusterName("kind-kind")        // "local"
//	ClassifyClusterName("prod-eu-west-1")   // "production"
//	ClassifyClusterName("stg-wc-01")        // "staging"
//	ClassifyClusterName("team-a-dev")       // "development"
//	ClassifyClusterName("my-cluster")       // "other"
func ClassifyClusterName(name string) string {
	if name == "" {
		return string(ClusterTypeUnknown)
	}

	lower := strings.ToLower(name)
	for _, p := range clusterPatterns {
		if matchesAny(lower, p.prefixes, strings.HasPrefix) ||
			matchesAny(lower, p.contains, strings.Contains) ||
			matchesAny(lower, p.suffixes, strings.HasSuffix) {
			return string(p.kind)
		}
	}
	return string(ClusterTypeOther)
}

func matchesAny(s string, patterns []string, match func(string, string) bool) bool {
	for _, p := range patterns {
		if match(s, p) {
			return true
		}
	}
	return false
}

// StatusClass collapses an HTTP status code into "2xx", "4xx" and so on.
// Zero, used when no response was received, maps to "none".
func StatusClass(code int) string {
	switch {
	case code <= 0:
		return "none"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
