package kube

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/giantswarm/k8s-resource-client/pkg/paths"
)

// Kind describes how a resource type is addressed on the server.
type Kind struct {
	APIVersion string
	Kind       string
	Plural     string
	Namespaced bool
	ShortNames []string

	// New wraps a generic resource in the typed kind. Nil yields a plain
	// *Resource.
	New func(*Resource) Object
}

func (k Kind) ref(namespace, name string) paths.Ref {
	return paths.Ref{
		APIVersion: k.APIVersion,
		Plural:     k.Plural,
		Namespaced: k.Namespaced,
		Namespace:  namespace,
		Name:       name,
	}
}

func (k Kind) key() string {
	return gvkKey(k.APIVersion, k.Kind)
}

func gvkKey(apiVersion, kind string) string {
	return apiVersion + "/" + kind
}

// Registry maps kind names, plurals and short names to Kind metadata.
type Registry struct {
	mu     sync.RWMutex
	byGVK  map[string]Kind
	byName map[string]Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byGVK:  map[string]Kind{},
		byName: map[string]Kind{},
	}
}

// DefaultRegistry returns a registry holding the shipped kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, k := range builtinKinds() {
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds k. Kind names, plurals and short names are matched case
// insensitively; a later registration wins on conflicting names.
func (r *Registry) Register(k Kind) error {
	if k.APIVersion == "" || k.Kind == "" {
		return fmt.Errorf("kind registration requires apiVersion and kind")
	}
	if _, err := schema.ParseGroupVersion(k.APIVersion); err != nil {
		return fmt.Errorf("invalid apiVersion %q: %w", k.APIVersion, err)
	}
	if k.Plural == "" {
		k.Plural = guessPlural(k.APIVersion, k.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byGVK[k.key()] = k
	for _, name := range append([]string{k.Kind, k.Plural}, k.ShortNames...) {
		r.byName[strings.ToLower(name)] = k
	}
	return nil
}

// Lookup finds a kind by name, plural or short name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byName[strings.ToLower(name)]
	return k, ok
}

// ForObject returns the kind for apiVersion and kind. Unknown kinds get a
// guessed plural and are treated as namespaced when attrs carry a
// namespace.
func (r *Registry) ForObject(apiVersion, kind string, attrs map[string]interface{}) Kind {
	r.mu.RLock()
	k, ok := r.byGVK[gvkKey(apiVersion, kind)]
	r.mu.RUnlock()
	if ok {
		return k
	}

	namespaced := false
	if metadata, ok := attrs["metadata"].(map[string]interface{}); ok {
		ns, _ := metadata["namespace"].(string)
		namespaced = ns != ""
	}
	return Kind{
		APIVersion: apiVersion,
		Kind:       kind,
		Plural:     guessPlural(apiVersion, kind),
		Namespaced: namespaced,
	}
}

// Kinds returns the registered kinds sorted by name.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.byGVK))
	for _, k := range r.byGVK {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// guessPlural derives the resource name of kind. A vowel followed by "y"
// only takes an "s" (Gateway -> gateways).
func guessPlural(apiVersion, kind string) string {
	lower := strings.ToLower(kind)
	if n := len(lower); n >= 2 && lower[n-1] == 'y' && strings.ContainsRune("aeiou", rune(lower[n-2])) {
		return lower + "s"
	}

	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		gv = schema.GroupVersion{}
	}
	plural, _ := meta.UnsafeGuessKindToResource(gv.WithKind(kind))
	return plural.Resource
}

func builtinKinds() []Kind {
	return []Kind{
		{APIVersion: "v1", Kind: "Pod", Plural: "pods", Namespaced: true, ShortNames: []string{"po", "pod"},
			New: func(r *Resource) Object { return &Pod{Resource: r} }},
		{APIVersion: "v1", Kind: "Service", Plural: "services", Namespaced: true, ShortNames: []string{"svc", "service"}},
		{APIVersion: "v1", Kind: "ConfigMap", Plural: "configmaps", Namespaced: true, ShortNames: []string{"cm"}},
		{APIVersion: "v1", Kind: "Secret", Plural: "secrets", Namespaced: true},
		{APIVersion: "v1", Kind: "ServiceAccount", Plural: "serviceaccounts", Namespaced: true, ShortNames: []string{"sa"}},
		{APIVersion: "v1", Kind: "PersistentVolumeClaim", Plural: "persistentvolumeclaims", Namespaced: true, ShortNames: []string{"pvc"}},
		{APIVersion: "v1", Kind: "Namespace", Plural: "namespaces", ShortNames: []string{"ns"}},
		{APIVersion: "v1", Kind: "Node", Plural: "nodes", ShortNames: []string{"no"}},
		{APIVersion: "v1", Kind: "PersistentVolume", Plural: "persistentvolumes", ShortNames: []string{"pv"},
			New: func(r *Resource) Object { return &PersistentVolume{Resource: r} }},

		{APIVersion: "apps/v1", Kind: "Deployment", Plural: "deployments", Namespaced: true, ShortNames: []string{"deploy"},
			New: func(r *Resource) Object { return &Deployment{Resource: r} }},
		{APIVersion: "apps/v1", Kind: "StatefulSet", Plural: "statefulsets", Namespaced: true, ShortNames: []string{"sts"},
			New: func(r *Resource) Object { return &StatefulSet{Resource: r} }},
		{APIVersion: "apps/v1", Kind: "ReplicaSet", Plural: "replicasets", Namespaced: true, ShortNames: []string{"rs"},
			New: func(r *Resource) Object { return &ReplicaSet{Resource: r} }},
		{APIVersion: "apps/v1", Kind: "DaemonSet", Plural: "daemonsets", Namespaced: true, ShortNames: []string{"ds"}},

		{APIVersion: "batch/v1", Kind: "Job", Plural: "jobs", Namespaced: true,
			New: func(r *Resource) Object { return &Job{Resource: r} }},
		{APIVersion: "batch/v1", Kind: "CronJob", Plural: "cronjobs", Namespaced: true, ShortNames: []string{"cj"}},

		{APIVersion: "networking.k8s.io/v1", Kind: "Ingress", Plural: "ingresses", Namespaced: true, ShortNames: []string{"ing"},
			New: func(r *Resource) Object { return &Ingress{Resource: r} }},
	}
}

// Pod is a v1 Pod. It supports watch, logs, exec and attach.
type Pod struct {
	*Resource
	WatchCapability
	LogsCapability
	ExecCapability
	AttachCapability
}

// Phase returns status.phase.
func (p *Pod) Phase() string {
	return p.GetString("status.phase", "")
}

// Containers returns the names of the pod's containers.
func (p *Pod) Containers() []string {
	raw, _ := p.Get("spec.containers", nil).([]interface{})
	names := make([]string, 0, len(raw))
	for _, c := range raw {
		if m, ok := c.(map[string]interface{}); ok {
			if name, ok := m["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

// Deployment is an apps/v1 Deployment.
type Deployment struct {
	*Resource
	ScaleCapability
	WatchCapability
}

// Replicas returns spec.replicas, defaulting to 1 like the API server.
func (d *Deployment) Replicas() int64 {
	return d.GetInt64("spec.replicas", 1)
}

// SetReplicas sets spec.replicas locally. Use Scale to change it on the
// server without a full update.
func (d *Deployment) SetReplicas(n int64) {
	d.Set("spec.replicas", n)
}

// ReadyReplicas returns status.readyReplicas.
func (d *Deployment) ReadyReplicas() int64 {
	return d.GetInt64("status.readyReplicas", 0)
}

// StatefulSet is an apps/v1 StatefulSet.
type StatefulSet struct {
	*Resource
	ScaleCapability
	WatchCapability
}

// Replicas returns spec.replicas.
func (s *StatefulSet) Replicas() int64 {
	return s.GetInt64("spec.replicas", 1)
}

// ReplicaSet is an apps/v1 ReplicaSet.
type ReplicaSet struct {
	*Resource
	ScaleCapability
	WatchCapability
}

// Replicas returns spec.replicas.
func (s *ReplicaSet) Replicas() int64 {
	return s.GetInt64("spec.replicas", 1)
}

// Job is a batch/v1 Job.
type Job struct {
	*Resource
	WatchCapability
}

// Succeeded returns status.succeeded.
func (j *Job) Succeeded() int64 {
	return j.GetInt64("status.succeeded", 0)
}

// Ingress is a networking.k8s.io/v1 Ingress.
type Ingress struct {
	*Resource
	WatchCapability
}

// PersistentVolume is a cluster-scoped v1 PersistentVolume.
type PersistentVolume struct {
	*Resource
	WatchCapability
}
