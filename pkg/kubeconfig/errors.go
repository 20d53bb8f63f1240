package kubeconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrContextNotFound is returned when the requested context does not
	// exist or no context is selected.
	ErrContextNotFound = errors.New("context not found")

	// ErrClusterNotFound is returned when a context points at a missing
	// cluster entry.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrUserNotFound is returned when a context points at a missing user
	// entry.
	ErrUserNotFound = errors.New("user not found")

	// ErrUnsupportedAuth is returned for user entries whose authentication
	// method has no token provider.
	ErrUnsupportedAuth = errors.New("unsupported authentication method")
)

// NotFoundError reports a missing kubeconfig entry.
type NotFoundError struct {
	Kind string
	Name string
	err  error
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("no current %s set in kubeconfig", e.Kind)
	}
	return fmt.Sprintf("%s %q not found in kubeconfig", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return e.err
}

// UnsupportedAuthError reports a user entry that cannot be turned into a
// token provider.
type UnsupportedAuthError struct {
	User   string
	Method string
}

func (e *UnsupportedAuthError) Error() string {
	return fmt.Sprintf("user %q uses %s, which is not supported", e.User, e.Method)
}

func (e *UnsupportedAuthError) Is(target error) bool {
	return target == ErrUnsupportedAuth
}
