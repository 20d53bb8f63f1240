package kube

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/giantswarm/k8s-resource-client/pkg/attributes"
	"github.com/giantswarm/k8s-resource-client/pkg/paths"
)

// State is the lifecycle state of a resource object.
type State int

// Lifecycle states. Unbound is the zero value of a Resource that was not
// built through a Session.
const (
	StateUnbound State = iota
	StateBuilt
	StateSynced
	StateModified
	StateDeleted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateBuilt:
		return "Built"
	case StateSynced:
		return "Synced"
	case StateModified:
		return "Modified"
	case StateDeleted:
		return "Deleted"
	default:
		return "Unbound"
	}
}

// Object is implemented by every resource kind. Typed kinds embed *Resource
// and add capability markers.
type Object interface {
	Base() *Resource
}

// Resource is a single API object backed by an attribute store.
//
// The session reference is not owned; the resource never closes it.
type Resource struct {
	*attributes.Store

	kind    Kind
	session *Session
	deleted bool
}

// Base returns r. It lets *Resource satisfy Object.
func (r *Resource) Base() *Resource {
	return r
}

// Session returns the session the resource is bound to, or nil.
func (r *Resource) Session() *Session {
	return r.session
}

// Kind returns the kind metadata the resource was built with.
func (r *Resource) Kind() Kind {
	return r.kind
}

// State reports the lifecycle state.
func (r *Resource) State() State {
	switch {
	case r.session == nil || r.Store == nil:
		return StateUnbound
	case r.deleted:
		return StateDeleted
	case !r.IsSynced():
		return StateBuilt
	case r.HasChanged():
		return StateModified
	default:
		return StateSynced
	}
}

// APIVersion returns the apiVersion field.
func (r *Resource) APIVersion() string {
	return r.GetString("apiVersion", r.kind.APIVersion)
}

// Name returns metadata.name.
func (r *Resource) Name() string {
	return r.GetString("metadata.name", "")
}

// SetName sets metadata.name.
func (r *Resource) SetName(name string) {
	r.Set("metadata.name", name)
}

// Namespace returns the effective namespace: metadata.namespace, else the
// session default. Cluster-scoped kinds always return "".
func (r *Resource) Namespace() string {
	if !r.kind.Namespaced {
		return ""
	}
	if ns := r.GetString("metadata.namespace", ""); ns != "" {
		return ns
	}
	if r.session != nil {
		return r.session.Namespace()
	}
	return ""
}

// SetNamespace sets metadata.namespace. It is ignored for cluster-scoped
// kinds.
func (r *Resource) SetNamespace(namespace string) {
	if !r.kind.Namespaced {
		return
	}
	r.Set("metadata.namespace", namespace)
}

// Labels returns metadata.labels.
func (r *Resource) Labels() map[string]string {
	return r.GetStringMap("metadata.labels")
}

// SetLabels replaces metadata.labels.
func (r *Resource) SetLabels(labels map[string]string) {
	r.Set("metadata.labels", labels)
}

// Annotations returns metadata.annotations.
func (r *Resource) Annotations() map[string]string {
	return r.GetStringMap("metadata.annotations")
}

// SetAnnotations replaces metadata.annotations.
func (r *Resource) SetAnnotations(annotations map[string]string) {
	r.Set("metadata.annotations", annotations)
}

// ResourceVersion returns the server assigned metadata.resourceVersion.
func (r *Resource) ResourceVersion() string {
	return r.GetString("metadata.resourceVersion", "")
}

// UID returns the server assigned metadata.uid.
func (r *Resource) UID() string {
	return r.GetString("metadata.uid", "")
}

// ToUnstructured returns a copy of the working attributes as an
// unstructured object.
func (r *Resource) ToUnstructured() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: r.payload()}
}

// ref returns the path reference for r.
func (r *Resource) ref() paths.Ref {
	return r.kind.ref(r.Namespace(), r.Name())
}

// payload returns the attributes to send to the server. The namespace is
// dropped for cluster-scoped kinds.
func (r *Resource) payload() map[string]interface{} {
	attrs := r.Attributes()
	if !r.kind.Namespaced {
		unstructured.RemoveNestedField(attrs, "metadata", "namespace")
	}
	return attrs
}

// ResourceList is a list response. Items keep server order and are synced.
type ResourceList struct {
	APIVersion      string
	Kind            string
	ResourceVersion string
	Continue        string
	Items           []Object
}

// Len returns the number of items.
func (l *ResourceList) Len() int {
	return len(l.Items)
}

func newStore(attrs map[string]interface{}) *attributes.Store {
	return attributes.New(attrs)
}

func newSyncedStore(attrs map[string]interface{}) *attributes.Store {
	s := attributes.New(nil)
	s.SyncWith(attrs)
	return s
}
