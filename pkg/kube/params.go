package kube

import (
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes/scheme"
)

// DefaultFieldManager is used by Apply when no field manager is given.
const DefaultFieldManager = "k8s-resource-client"

// ListOptions filters a collection read.
type ListOptions struct {
	// LabelSelector fragments are sent as repeated labelSelector keys.
	LabelSelector   []string
	FieldSelector   string
	Limit           int64
	Continue        string
	ResourceVersion string
}

func (o ListOptions) query() Query {
	q := Query{}
	if len(o.LabelSelector) > 0 {
		q["labelSelector"] = o.LabelSelector
	}
	if o.FieldSelector != "" {
		q["fieldSelector"] = o.FieldSelector
	}
	if o.Limit > 0 {
		q["limit"] = o.Limit
	}
	if o.Continue != "" {
		q["continue"] = o.Continue
	}
	if o.ResourceVersion != "" {
		q["resourceVersion"] = o.ResourceVersion
	}
	return q
}

// WatchOptions filters a watch.
type WatchOptions struct {
	LabelSelector   []string
	FieldSelector   string
	ResourceVersion string
	// TimeoutSeconds asks the server to close the watch after the given
	// number of seconds.
	TimeoutSeconds int64
}

func (o WatchOptions) query() Query {
	q := ListOptions{
		LabelSelector:   o.LabelSelector,
		FieldSelector:   o.FieldSelector,
		ResourceVersion: o.ResourceVersion,
	}.query()
	if o.TimeoutSeconds > 0 {
		q["timeoutSeconds"] = o.TimeoutSeconds
	}
	return q
}

// DeleteOptions controls how a resource is deleted. The precondition on
// resourceVersion and uid is always sent.
type DeleteOptions struct {
	// PropagationPolicy defaults to Foreground.
	PropagationPolicy  metav1.DeletionPropagation
	GracePeriodSeconds *int64
}

func (o DeleteOptions) body(resourceVersion, uid string) *metav1.DeleteOptions {
	policy := o.PropagationPolicy
	if policy == "" {
		policy = metav1.DeletePropagationForeground
	}
	body := &metav1.DeleteOptions{
		TypeMeta:           metav1.TypeMeta{APIVersion: "v1", Kind: "DeleteOptions"},
		PropagationPolicy:  &policy,
		GracePeriodSeconds: o.GracePeriodSeconds,
		Preconditions:      &metav1.Preconditions{},
	}
	if resourceVersion != "" {
		body.Preconditions.ResourceVersion = &resourceVersion
	}
	if uid != "" {
		u := types.UID(uid)
		body.Preconditions.UID = &u
	}
	return body
}

// LogOptions selects the log output of a container.
type LogOptions struct {
	Container    string
	TailLines    *int64
	SinceSeconds *int64
	Timestamps   bool
	Previous     bool
}

func (o LogOptions) query(follow bool) (Query, error) {
	return encodeParameters(&corev1.PodLogOptions{
		Container:    o.Container,
		Follow:       follow,
		Previous:     o.Previous,
		Timestamps:   o.Timestamps,
		TailLines:    o.TailLines,
		SinceSeconds: o.SinceSeconds,
	})
}

// ExecOptions describes a command to run in a container.
type ExecOptions struct {
	Command   []string
	Container string
	TTY       bool
	// Stdin and Handler are passed to the channel stream. See
	// StreamOptions.Stdin for the lifetime of the stdin reader.
	Stdin   io.Reader
	Handler FrameHandler
}

func (o ExecOptions) query() (Query, error) {
	if len(o.Command) == 0 {
		return nil, fmt.Errorf("exec requires a command")
	}
	return encodeParameters(&corev1.PodExecOptions{
		Command:   o.Command,
		Container: o.Container,
		Stdin:     o.Stdin != nil,
		Stdout:    true,
		Stderr:    !o.TTY,
		TTY:       o.TTY,
	})
}

func (o ExecOptions) stream() StreamOptions {
	return StreamOptions{Stdin: o.Stdin, Handler: o.Handler}
}

// AttachOptions describes an attach to a running container.
type AttachOptions struct {
	Container string
	TTY       bool
	Stdin     io.Reader
	Handler   FrameHandler
}

func (o AttachOptions) query() (Query, error) {
	return encodeParameters(&corev1.PodAttachOptions{
		Container: o.Container,
		Stdin:     o.Stdin != nil,
		Stdout:    true,
		Stderr:    !o.TTY,
		TTY:       o.TTY,
	})
}

func (o AttachOptions) stream() StreamOptions {
	return StreamOptions{Stdin: o.Stdin, Handler: o.Handler}
}

// encodeParameters converts core/v1 option structs into query parameters
// the way the API server decodes them.
func encodeParameters(obj runtime.Object) (Query, error) {
	values, err := scheme.ParameterCodec.EncodeParameters(obj, corev1.SchemeGroupVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request parameters: %w", err)
	}
	return Query{}.Merge(values), nil
}
