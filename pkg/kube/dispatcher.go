package kube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"k8s.io/apimachinery/pkg/types"
	utiljson "k8s.io/apimachinery/pkg/util/json"

	"github.com/giantswarm/k8s-resource-client/internal/instrumentation"
	"github.com/giantswarm/k8s-resource-client/internal/logging"
)

// Operation is a logical API operation.
type Operation int

// Operations understood by the dispatcher.
const (
	OpGet Operation = iota + 1
	OpCreate
	OpReplace
	OpDelete
	OpLog
	OpWatch
	OpWatchLogs
	OpExec
	OpAttach
	OpApply
	OpJSONPatch
	OpJSONMergePatch
)

// ContentTypeJSON is the default request content type.
const ContentTypeJSON = "application/json"

var operationNames = map[Operation]string{
	OpGet:            "get",
	OpCreate:         "create",
	OpReplace:        "replace",
	OpDelete:         "delete",
	OpLog:            "log",
	OpWatch:          "watch",
	OpWatchLogs:      "watch_logs",
	OpExec:           "exec",
	OpAttach:         "attach",
	OpApply:          "apply",
	OpJSONPatch:      "json_patch",
	OpJSONMergePatch: "merge_patch",
}

// String implements fmt.Stringer.
func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// Method returns the HTTP method the operation maps to.
func (o Operation) Method() string {
	switch o {
	case OpCreate, OpExec, OpAttach:
		return http.MethodPost
	case OpReplace:
		return http.MethodPut
	case OpDelete:
		return http.MethodDelete
	case OpApply, OpJSONPatch, OpJSONMergePatch:
		return http.MethodPatch
	default:
		return http.MethodGet
	}
}

// ContentType returns the request body media type.
func (o Operation) ContentType() string {
	switch o {
	case OpJSONPatch:
		return string(types.JSONPatchType)
	case OpJSONMergePatch:
		return string(types.MergePatchType)
	case OpApply:
		return string(types.ApplyPatchType)
	default:
		return ContentTypeJSON
	}
}

// Streaming reports whether the operation keeps the connection open.
func (o Operation) Streaming() bool {
	switch o {
	case OpWatch, OpWatchLogs, OpExec, OpAttach:
		return true
	}
	return false
}

// Request is a single dispatcher call.
type Request struct {
	Operation Operation
	// Path is the absolute API path, see package paths.
	Path  string
	Query Query
	// Body is sent as is when it is a []byte, JSON encoded otherwise.
	Body interface{}

	// ResourceType and Namespace label spans and logs.
	ResourceType string
	Namespace    string
}

// Result is the decoded response of a non-streaming call. Exactly one of
// Object, List and Raw is meaningful.
type Result struct {
	StatusCode int
	Object     Object
	List       *ResourceList
	// Raw holds bodies that are not JSON objects, such as log output.
	Raw string
}

// Dispatcher maps operations onto HTTP and WebSocket calls.
type Dispatcher struct {
	session *Session
}

// Do executes a non-streaming operation.
func (d *Dispatcher) Do(ctx context.Context, req Request) (*Result, error) {
	if req.Operation.Streaming() {
		return nil, fmt.Errorf("operation %s is streaming; use Watch, WatchLogs or Stream", req.Operation)
	}

	resp, err := d.send(ctx, d.session.client, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransportError(d.session.config.Server, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newAPIError(resp.StatusCode, body)
	}

	return d.decode(req.Operation, resp.StatusCode, body), nil
}

// send builds and executes an HTTP request, mapping transport failures and
// recording request metrics. Error responses are returned to the caller.
func (d *Dispatcher) send(ctx context.Context, client *http.Client, req Request) (*http.Response, error) {
	s := d.session
	httpReq, err := d.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := s.now()
	resp, err := client.Do(httpReq)
	duration := s.now().Sub(start)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	s.metrics.RecordAPIRequest(ctx, httpReq.Method, statusCode, duration)
	instrumentation.AddSpanEvent(ctx, "http.request",
		instrumentation.NewSpanAttributeBuilder().
			WithHTTPMethod(httpReq.Method).
			WithHTTPStatusCode(statusCode).
			Build()...,
	)

	if err != nil {
		s.logger.Debug("request failed",
			logging.Method(httpReq.Method),
			logging.Path(req.Path),
			logging.Duration(duration),
			logging.SanitizedErr(err))
		return nil, wrapTransportError(s.config.Server, err)
	}

	s.logger.Debug("request completed",
		logging.Method(httpReq.Method),
		logging.Path(req.Path),
		logging.StatusCode(statusCode),
		logging.Duration(duration))
	return resp, nil
}

func (d *Dispatcher) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := *d.session.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + req.Path
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := encodeBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request body: %w", req.Operation, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Operation.Method(), u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", req.Operation.ContentType())
	}
	switch req.Operation {
	case OpLog, OpWatchLogs:
		httpReq.Header.Set("Accept", "*/*")
	default:
		httpReq.Header.Set("Accept", ContentTypeJSON)
	}
	httpReq.Header.Set("User-Agent", d.session.config.UserAgent)
	return httpReq, nil
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}

// decode turns a successful response body into a resource, a list or raw
// text. Log output is always raw.
func (d *Dispatcher) decode(op Operation, statusCode int, body []byte) *Result {
	result := &Result{StatusCode: statusCode}
	if op == OpLog || !json.Valid(body) {
		result.Raw = string(body)
		return result
	}

	var doc map[string]interface{}
	if err := utiljson.Unmarshal(body, &doc); err != nil || doc == nil {
		result.Raw = string(body)
		return result
	}

	if items, ok := doc["items"].([]interface{}); ok {
		result.List = d.decodeList(doc, items)
		return result
	}
	result.Object = d.session.wrap(doc)
	return result
}

func (d *Dispatcher) decodeList(doc map[string]interface{}, items []interface{}) *ResourceList {
	list := &ResourceList{Items: make([]Object, 0, len(items))}
	list.APIVersion, _ = doc["apiVersion"].(string)
	list.Kind, _ = doc["kind"].(string)
	if metadata, ok := doc["metadata"].(map[string]interface{}); ok {
		list.ResourceVersion, _ = metadata["resourceVersion"].(string)
		list.Continue, _ = metadata["continue"].(string)
	}

	itemKind := strings.TrimSuffix(list.Kind, "List")
	for _, item := range items {
		attrs, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if _, ok := attrs["kind"].(string); !ok && itemKind != "" {
			attrs["kind"] = itemKind
		}
		if _, ok := attrs["apiVersion"].(string); !ok && list.APIVersion != "" {
			attrs["apiVersion"] = list.APIVersion
		}
		list.Items = append(list.Items, d.session.wrap(attrs))
	}
	return list
}
