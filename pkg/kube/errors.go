package kube

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/giantswarm/k8s-resource-client/internal/logging"
	"github.com/giantswarm/k8s-resource-client/pkg/auth"
)

// Sentinel errors. Use errors.Is to test for them.
var (
	// ErrAPI matches every error response returned by the API server.
	ErrAPI = errors.New("kubernetes API error")

	// ErrBadRequest is returned for HTTP 400.
	ErrBadRequest = errors.New("bad request")

	// ErrNotAuthorized is returned for HTTP 401.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotAuthenticated is returned for HTTP 403.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrMethodNotAllowed is returned for HTTP 405.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrTooManyRequests is returned for HTTP 429.
	ErrTooManyRequests = errors.New("too many requests")

	// ErrClusterNotReachable indicates a transport failure before any HTTP
	// response was received.
	ErrClusterNotReachable = errors.New("cluster not reachable")

	// ErrNoSession is returned when a resource that was never bound to a
	// session performs an operation.
	ErrNoSession = errors.New("resource is not bound to a session")
)

// APIError is an error response from the API server.
//
// Status holds the decoded metav1.Status when the body contained one; Body
// always holds the raw response.
type APIError struct {
	StatusCode int
	Status     *metav1.Status
	Body       []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != nil && e.Status.Message != "" {
		return fmt.Sprintf("kubernetes API error (%d %s): %s", e.StatusCode, e.Status.Reason, e.Status.Message)
	}
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	if body == "" {
		return fmt.Sprintf("kubernetes API error (%d %s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("kubernetes API error (%d): %s", e.StatusCode, body)
}

// Is matches ErrAPI and the status-specific sentinel.
func (e *APIError) Is(target error) bool {
	if target == ErrAPI {
		return true
	}
	switch e.StatusCode {
	case http.StatusBadRequest:
		return target == ErrBadRequest
	case http.StatusUnauthorized:
		return target == ErrNotAuthorized
	case http.StatusForbidden:
		return target == ErrNotAuthenticated
	case http.StatusMethodNotAllowed:
		return target == ErrMethodNotAllowed
	case http.StatusTooManyRequests:
		return target == ErrTooManyRequests
	}
	return false
}

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// newAPIError builds an APIError, decoding body as a metav1.Status when
// possible.
func newAPIError(statusCode int, body []byte) *APIError {
	e := &APIError{StatusCode: statusCode, Body: body}
	var status metav1.Status
	if err := json.Unmarshal(body, &status); err == nil && (status.Kind == "Status" || status.Message != "") {
		e.Status = &status
	}
	return e
}

// ClusterNotReachableError describes a transport level failure.
type ClusterNotReachableError struct {
	Host   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ClusterNotReachableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cluster %s not reachable: %s: %v", e.Host, e.Reason, e.Err)
	}
	return fmt.Sprintf("cluster %s not reachable: %s", e.Host, e.Reason)
}

// Unwrap returns the underlying transport error.
func (e *ClusterNotReachableError) Unwrap() error {
	return e.Err
}

// Is matches ErrClusterNotReachable.
func (e *ClusterNotReachableError) Is(target error) bool {
	return target == ErrClusterNotReachable
}

// wrapTransportError turns a client error into an AuthenticationError when
// the credential provider failed, or a ClusterNotReachableError otherwise.
func wrapTransportError(host string, err error) error {
	if err == nil {
		return nil
	}

	var authErr *auth.AuthenticationError
	if errors.As(err, &authErr) {
		return authErr
	}

	reason := "connection failed"
	switch {
	case errors.Is(err, context.Canceled):
		reason = "request cancelled"
	case errors.Is(err, context.DeadlineExceeded), isTimeoutError(err):
		reason = "timed out"
	case isTLSError(err):
		reason = "TLS handshake failed"
	}

	return &ClusterNotReachableError{
		Host:   logging.SanitizeHost(host),
		Reason: reason,
		Err:    err,
	}
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}

	errStr := err.Error()
	for _, pattern := range []string{
		"tls:",
		"x509:",
		"certificate signed by",
		"certificate has expired",
		"handshake failure",
		"unknown authority",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
