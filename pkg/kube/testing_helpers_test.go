package kube

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	jsonpatch "gopkg.in/evanphx/json-patch.v4"
)

// recordedRequest is a request seen by a test server.
type recordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	ContentType   string
	Accept        string
	Authorization string
	Body          []byte
}

func (r recordedRequest) jsonBody(t *testing.T) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Body, &doc))
	return doc
}

// fakeAPI is an in-memory API server keyed by resource path. It understands
// enough of the REST conventions to drive the resource lifecycle.
type fakeAPI struct {
	mu          sync.Mutex
	objects     map[string]map[string]interface{}
	collections map[string]bool
	requests    []recordedRequest
	version     int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		objects:     map[string]map[string]interface{}{},
		collections: map[string]bool{},
	}
}

// seed stores obj at its resource path.
func (f *fakeAPI) seed(resourcePath string, obj map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store(resourcePath, obj)
}

func (f *fakeAPI) object(resourcePath string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[resourcePath]
}

func (f *fakeAPI) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeAPI) methods() []string {
	var out []string
	for _, r := range f.calls() {
		out = append(out, r.Method)
	}
	return out
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

func (f *fakeAPI) store(resourcePath string, obj map[string]interface{}) {
	f.version++
	metadata, _ := obj["metadata"].(map[string]interface{})
	if metadata == nil {
		metadata = map[string]interface{}{}
		obj["metadata"] = metadata
	}
	metadata["resourceVersion"] = strconv.Itoa(f.version)
	if _, ok := metadata["uid"]; !ok {
		metadata["uid"] = fmt.Sprintf("uid-%d", f.version)
	}
	f.objects[resourcePath] = obj
	f.collections[path.Dir(resourcePath)] = true
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		ContentType:   r.Header.Get("Content-Type"),
		Accept:        r.Header.Get("Accept"),
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})

	p := r.URL.Path
	switch r.Method {
	case http.MethodGet:
		if obj, ok := f.objects[p]; ok {
			writeJSON(w, http.StatusOK, obj)
			return
		}
		if f.collections[p] {
			writeJSON(w, http.StatusOK, f.list(p))
			return
		}
		writeStatus(w, http.StatusNotFound, "NotFound", path.Base(p)+" not found")

	case http.MethodPost:
		obj := decodeMap(body)
		name, _ := obj["metadata"].(map[string]interface{})["name"].(string)
		target := p + "/" + name
		if _, ok := f.objects[target]; ok {
			writeStatus(w, http.StatusConflict, "AlreadyExists", name+" already exists")
			return
		}
		f.store(target, obj)
		writeJSON(w, http.StatusCreated, obj)

	case http.MethodPut:
		existing, ok := f.objects[p]
		if !ok {
			writeStatus(w, http.StatusNotFound, "NotFound", path.Base(p)+" not found")
			return
		}
		obj := decodeMap(body)
		obj["metadata"].(map[string]interface{})["uid"] = existing["metadata"].(map[string]interface{})["uid"]
		f.store(p, obj)
		writeJSON(w, http.StatusOK, obj)

	case http.MethodPatch:
		f.patch(w, r, p, body)

	case http.MethodDelete:
		if _, ok := f.objects[p]; !ok {
			writeStatus(w, http.StatusNotFound, "NotFound", path.Base(p)+" not found")
			return
		}
		delete(f.objects, p)
		writeStatus(w, http.StatusOK, "", "deleted")

	default:
		writeStatus(w, http.StatusMethodNotAllowed, "MethodNotAllowed", r.Method)
	}
}

func (f *fakeAPI) patch(w http.ResponseWriter, r *http.Request, p string, body []byte) {
	target := p
	scale := strings.HasSuffix(p, "/scale")
	if scale {
		target = strings.TrimSuffix(p, "/scale")
	}

	existing, ok := f.objects[target]
	if !ok && r.Header.Get("Content-Type") != "application/apply-patch+yaml" {
		writeStatus(w, http.StatusNotFound, "NotFound", path.Base(target)+" not found")
		return
	}
	original, _ := json.Marshal(existing)
	if !ok {
		original = []byte(`{}`)
	}

	var (
		patched []byte
		err     error
	)
	switch r.Header.Get("Content-Type") {
	case "application/json-patch+json":
		var ops jsonpatch.Patch
		ops, err = jsonpatch.DecodePatch(body)
		if err == nil {
			patched, err = ops.Apply(original)
		}
	default:
		patched, err = jsonpatch.MergePatch(original, body)
	}
	if err != nil {
		writeStatus(w, http.StatusUnprocessableEntity, "Invalid", err.Error())
		return
	}

	obj := decodeMap(patched)
	f.store(target, obj)
	if scale {
		spec, _ := obj["spec"].(map[string]interface{})
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"apiVersion": "autoscaling/v1",
			"kind":       "Scale",
			"spec":       map[string]interface{}{"replicas": spec["replicas"]},
		})
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (f *fakeAPI) list(collection string) map[string]interface{} {
	var keys []string
	for k := range f.objects {
		if path.Dir(k) == collection {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	items := make([]interface{}, 0, len(keys))
	kind, apiVersion := "", ""
	for _, k := range keys {
		obj := f.objects[k]
		items = append(items, obj)
		kind, _ = obj["kind"].(string)
		apiVersion, _ = obj["apiVersion"].(string)
	}
	return map[string]interface{}{
		"apiVersion": apiVersion,
		"kind":       kind + "List",
		"metadata":   map[string]interface{}{"resourceVersion": strconv.Itoa(f.version)},
		"items":      items,
	}
}

func decodeMap(data []byte) map[string]interface{} {
	obj := map[string]interface{}{}
	_ = json.Unmarshal(data, &obj)
	if _, ok := obj["metadata"].(map[string]interface{}); !ok {
		obj["metadata"] = map[string]interface{}{}
	}
	return obj
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int, reason, message string) {
	status := "Success"
	if code >= http.StatusBadRequest {
		status = "Failure"
	}
	writeJSON(w, code, map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Status",
		"status":     status,
		"reason":     reason,
		"message":    message,
		"code":       code,
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession starts handler on an httptest server and returns a
// session pointing at it.
func newTestSession(t *testing.T, handler http.Handler, opts ...Option) *Session {
	t.Helper()
	return newTestSessionWithConfig(t, Config{}, handler, opts...)
}

func newTestSessionWithConfig(t *testing.T, cfg Config, handler http.Handler, opts ...Option) *Session {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.Server = srv.URL
	s, err := NewSession(cfg, append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	return s
}

func newObject(t *testing.T, s *Session, kind, name string, extra map[string]interface{}) Object {
	t.Helper()
	attrs := map[string]interface{}{
		"metadata": map[string]interface{}{"name": name},
	}
	for k, v := range extra {
		attrs[k] = v
	}
	obj, err := s.New(kind, attrs)
	require.NoError(t, err)
	return obj
}
