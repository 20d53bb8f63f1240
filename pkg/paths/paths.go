// Package paths derives REST paths for resources served by a Kubernetes-style
// API server. All functions are pure.
package paths

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Subresource names.
const (
	SubresourceScale  = "scale"
	SubresourceLog    = "log"
	SubresourceExec   = "exec"
	SubresourceAttach = "attach"
	SubresourceStatus = "status"
)

const (
	legacyPrefix = "/api"
	groupPrefix  = "/apis"
	watchSegment = "watch"
)

// Ref identifies a resource or collection on the server.
type Ref struct {
	// APIVersion is either "v1" for the legacy core group or "group/version".
	APIVersion string
	// Plural is the lower-case plural resource name, e.g. "deployments".
	Plural string
	// Namespaced reports whether the kind lives inside namespaces.
	Namespaced bool
	// Namespace is ignored for cluster-scoped kinds. When empty on a
	// namespaced kind, collection paths span all namespaces.
	Namespace string
	// Name is the object name. Only used for single-resource paths.
	Name string
}

// APIRoot returns the API prefix for apiVersion: "/api/v1" for the core
// group and "/apis/{group}/{version}" for everything else.
func APIRoot(apiVersion string) string {
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil || gv.Group == "" {
		version := apiVersion
		if err == nil && gv.Version != "" {
			version = gv.Version
		}
		return legacyPrefix + "/" + version
	}
	return groupPrefix + "/" + gv.Group + "/" + gv.Version
}

// CollectionPath returns the path of the collection holding r.
func CollectionPath(r Ref) string {
	return collection(r, false)
}

// ResourcePath returns the path of the single resource r.
func ResourcePath(r Ref) string {
	return CollectionPath(r) + "/" + r.Name
}

// WatchCollectionPath returns the legacy watch path for the collection
// holding r.
func WatchCollectionPath(r Ref) string {
	return collection(r, true)
}

// WatchResourcePath returns the legacy watch path for the single resource r.
func WatchResourcePath(r Ref) string {
	return WatchCollectionPath(r) + "/" + r.Name
}

// SubresourcePath returns the path of a subresource of r, such as "scale" or
// "log".
func SubresourcePath(r Ref, subresource string) string {
	return ResourcePath(r) + "/" + subresource
}

// Validate reports whether r carries enough information to build a
// single-resource path.
func (r Ref) Validate() error {
	if r.APIVersion == "" {
		return fmt.Errorf("apiVersion is required")
	}
	if r.Plural == "" {
		return fmt.Errorf("resource plural is required")
	}
	if r.Name == "" {
		return fmt.Errorf("resource name is required")
	}
	return nil
}

func collection(r Ref, watch bool) string {
	segments := []string{APIRoot(r.APIVersion)}
	if watch {
		segments = append(segments, watchSegment)
	}
	if r.Namespaced && r.Namespace != "" {
		segments = append(segments, "namespaces", r.Namespace)
	}
	segments = append(segments, r.Plural)
	return strings.Join(segments, "/")
}
