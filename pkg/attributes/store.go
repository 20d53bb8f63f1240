package attributes

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// PathSeparator separates the segments of an attribute path.
const PathSeparator = "."

// Store is a nested JSON document addressed by dot-delimited paths.
//
// It keeps two snapshots: the working attributes, which callers mutate, and the
// original attributes, which mirror the last state known to the server. The
// store is considered changed only after it has been synced at least once.
//
// A Store is not safe for concurrent mutation.
type Store struct {
	current  map[string]interface{}
	original map[string]interface{}
	synced   bool
}

// New returns a store seeded with a deep copy of attrs. A nil map yields an
// empty store.
func New(attrs map[string]interface{}) *Store {
	return &Store{
		current:  normalizeMap(attrs),
		original: map[string]interface{}{},
	}
}

// Set writes value at path, creating intermediate maps as needed. A segment
// that currently holds a non-map value is replaced by a map.
//
// The value is stored in its JSON form: int and int32 become int64, and
// structs and typed maps or slices become map[string]interface{} and
// []interface{}. value must be JSON encodable; Set panics on values such as
// channels or functions. Use TrySet when the value is not known to be
// encodable.
func (s *Store) Set(path string, value interface{}) {
	segments := split(path)
	if len(segments) == 0 {
		return
	}

	m := s.current
	for _, segment := range segments[:len(segments)-1] {
		next, ok := m[segment].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			m[segment] = next
		}
		m = next
	}
	m[segments[len(segments)-1]] = normalize(value)
}

// TrySet is Set for values that may not be JSON encodable. It returns an
// error and leaves the store unchanged instead of panicking.
func (s *Store) TrySet(path string, value interface{}) error {
	normalized, err := toJSON(value)
	if err != nil {
		return err
	}
	s.Set(path, normalized)
	return nil
}

// Get returns a copy of the value at path, or def if any segment is missing
// or is not a map. Values come back in the form Set stored them, so an int
// written with Set is read as int64.
func (s *Store) Get(path string, def interface{}) interface{} {
	segments := split(path)
	if len(segments) == 0 {
		return def
	}
	value, found, err := unstructured.NestedFieldCopy(s.current, segments...)
	if err != nil || !found {
		return def
	}
	return value
}

// Has reports whether a value exists at path.
func (s *Store) Has(path string) bool {
	segments := split(path)
	if len(segments) == 0 {
		return false
	}
	_, found, err := unstructured.NestedFieldNoCopy(s.current, segments...)
	return err == nil && found
}

// GetString returns the string at path, or def when absent or not a string.
func (s *Store) GetString(path, def string) string {
	if v, ok := s.Get(path, nil).(string); ok {
		return v
	}
	return def
}

// GetInt64 returns the integer at path, or def when absent or not numeric.
func (s *Store) GetInt64(path string, def int64) int64 {
	switch v := s.Get(path, nil).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return def
	}
}

// GetStringMap returns the string map at path. Non-string values are skipped.
func (s *Store) GetStringMap(path string) map[string]string {
	raw, ok := s.Get(path, nil).(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out
}

// Add appends value to the sequence stored at path. A missing value is
// treated as an empty sequence. If the existing value is not a sequence the
// call does nothing.
func (s *Store) Add(path string, value interface{}) {
	existing := s.Get(path, nil)
	if existing == nil {
		s.Set(path, []interface{}{value})
		return
	}
	list, ok := existing.([]interface{})
	if !ok {
		return
	}
	s.Set(path, append(list, value))
}

// Remove deletes the key at path. Missing keys are ignored.
func (s *Store) Remove(path string) {
	segments := split(path)
	if len(segments) == 0 {
		return
	}
	unstructured.RemoveNestedField(s.current, segments...)
}

// SyncWith replaces both the working and the original attributes with attrs
// and marks the store as synced.
func (s *Store) SyncWith(attrs map[string]interface{}) {
	s.current = normalizeMap(attrs)
	s.original = runtime.DeepCopyJSON(s.current)
	s.synced = true
}

// SyncOriginalWith replaces only the original attributes, keeping in-flight
// edits, and marks the store as synced.
func (s *Store) SyncOriginalWith(attrs map[string]interface{}) {
	s.original = normalizeMap(attrs)
	s.synced = true
}

// Unsync clears the synced flag. The original snapshot is dropped.
func (s *Store) Unsync() {
	s.original = map[string]interface{}{}
	s.synced = false
}

// IsSynced reports whether the store was hydrated from or persisted to the
// server.
func (s *Store) IsSynced() bool {
	return s.synced
}

// HasChanged reports whether the working attributes differ from the original
// ones. It is always false before the first sync.
func (s *Store) HasChanged() bool {
	if !s.synced {
		return false
	}
	return !equality.Semantic.DeepEqual(s.current, s.original)
}

// Attributes returns a deep copy of the working attributes.
func (s *Store) Attributes() map[string]interface{} {
	return runtime.DeepCopyJSON(s.current)
}

// Original returns a deep copy of the original attributes.
func (s *Store) Original() map[string]interface{} {
	return runtime.DeepCopyJSON(s.original)
}

// Raw returns the working attributes without copying. Callers must not
// retain or mutate the result.
func (s *Store) Raw() map[string]interface{} {
	return s.current
}

// MarshalJSON encodes the working attributes.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.current)
}

func split(path string) []string {
	path = strings.Trim(path, PathSeparator)
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}

// normalize converts value into the JSON representation used by the store:
// maps, slices, strings, bools, int64, float64 and nil. It panics on values
// that cannot be JSON encoded.
func normalize(value interface{}) interface{} {
	out, err := toJSON(value)
	if err != nil {
		panic(fmt.Sprintf("attributes: %v", err))
	}
	return out
}

func toJSON(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil, string, bool, int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %v is not JSON compatible", v)
		}
		return v, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value of type %T is not JSON compatible: %w", value, err)
	}
	var out interface{}
	if err := utiljson.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot normalize value of type %T: %w", value, err)
	}
	return out, nil
}

func normalizeMap(attrs map[string]interface{}) map[string]interface{} {
	if attrs == nil {
		return map[string]interface{}{}
	}
	m, ok := normalize(attrs).(map[string]interface{})
	if !ok || m == nil {
		return map[string]interface{}{}
	}
	return m
}
