package kube

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Capability names, as used in errors and metrics.
const (
	CapabilityScale  = "scale"
	CapabilityLogs   = "logs"
	CapabilityWatch  = "watch"
	CapabilityExec   = "exec"
	CapabilityAttach = "attach"
)

// Sentinel errors for operations a kind does not support. They are returned
// before any request is sent.
var (
	ErrScalingNotSupported = errors.New("scaling not supported")
	ErrLogsNotSupported    = errors.New("logs not supported")
	ErrWatchNotSupported   = errors.New("watch not supported")
	ErrExecNotSupported    = errors.New("exec not supported")
	ErrAttachNotSupported  = errors.New("attach not supported")
)

var capabilitySentinels = map[string]error{
	CapabilityScale:  ErrScalingNotSupported,
	CapabilityLogs:   ErrLogsNotSupported,
	CapabilityWatch:  ErrWatchNotSupported,
	CapabilityExec:   ErrExecNotSupported,
	CapabilityAttach: ErrAttachNotSupported,
}

// Capability markers. Kinds opt in by embedding the matching
// XxxCapability struct.
type (
	Scalable interface {
		Object
		SupportsScale()
	}
	Loggable interface {
		Object
		SupportsLogs()
	}
	Watchable interface {
		Object
		SupportsWatch()
	}
	Executable interface {
		Object
		SupportsExec()
	}
	Attachable interface {
		Object
		SupportsAttach()
	}
)

// ScaleCapability marks a kind as Scalable when embedded.
type ScaleCapability struct{}

// SupportsScale implements Scalable.
func (ScaleCapability) SupportsScale() {}

// LogsCapability marks a kind as Loggable when embedded.
type LogsCapability struct{}

// SupportsLogs implements Loggable.
func (LogsCapability) SupportsLogs() {}

// WatchCapability marks a kind as Watchable when embedded.
type WatchCapability struct{}

// SupportsWatch implements Watchable.
func (WatchCapability) SupportsWatch() {}

// ExecCapability marks a kind as Executable when embedded.
type ExecCapability struct{}

// SupportsExec implements Executable.
func (ExecCapability) SupportsExec() {}

// AttachCapability marks a kind as Attachable when embedded.
type AttachCapability struct{}

// SupportsAttach implements Attachable.
func (AttachCapability) SupportsAttach() {}

// CapabilityError reports an operation the resource kind does not support.
type CapabilityError struct {
	Capability string
	Kind       string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	title := cases.Title(language.English).String(e.Capability)
	return fmt.Sprintf("%s is not supported by kind %s", title, e.Kind)
}

// Is matches the capability's sentinel error.
func (e *CapabilityError) Is(target error) bool {
	return capabilitySentinels[e.Capability] == target
}

// requireCapability returns the object as T, or a CapabilityError when it
// does not implement it. Denials are counted.
func requireCapability[T Object](ctx context.Context, obj Object, capability string) (T, error) {
	typed, ok := obj.(T)
	if ok {
		return typed, nil
	}
	var zero T
	r := obj.Base()
	if r.session != nil {
		r.session.metrics.RecordCapabilityDenied(ctx, capability)
	}
	return zero, &CapabilityError{Capability: capability, Kind: r.kind.Kind}
}
