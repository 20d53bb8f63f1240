package patch

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	jsonpatch "gopkg.in/evanphx/json-patch.v4"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// MergePatch accumulates a single RFC 7396 document. A nil leaf value asks
// the server to delete the key.
type MergePatch struct {
	doc map[string]interface{}
}

// NewMergePatch returns an empty merge patch.
func NewMergePatch() *MergePatch {
	return &MergePatch{doc: map[string]interface{}{}}
}

// ParseMergePatch decodes an RFC 7396 document.
func ParseMergePatch(data []byte) (*MergePatch, error) {
	doc := map[string]interface{}{}
	if err := utiljson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse merge patch: %w", err)
	}
	return &MergePatch{doc: doc}, nil
}

// Set stores value at the dot-delimited path, creating intermediate objects.
// value must be JSON encodable; Set panics on channels, functions and
// non-finite floats.
func (p *MergePatch) Set(path string, value interface{}) *MergePatch {
	segments := strings.Split(strings.Trim(path, "."), ".")
	if len(segments) == 1 && segments[0] == "" {
		return p
	}

	m := p.doc
	for _, segment := range segments[:len(segments)-1] {
		next, ok := m[segment].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			m[segment] = next
		}
		m = next
	}
	m[segments[len(segments)-1]] = toJSONValue(value)
	return p
}

// Remove marks the key at path for deletion. It is equivalent to
// Set(path, nil).
func (p *MergePatch) Remove(path string) *MergePatch {
	return p.Set(path, nil)
}

// Merge combines other into p recursively. Nested objects are merged key by
// key. When both sides hold a list under the same key the lists are
// concatenated, which differs from applying one merge patch on top of another
// where lists replace each other wholesale. Any other collision is won by
// other.
func (p *MergePatch) Merge(other *MergePatch) *MergePatch {
	if other == nil {
		return p
	}
	p.doc = mergeMaps(p.doc, runtime.DeepCopyJSON(other.doc))
	return p
}

// Document returns a deep copy of the accumulated document.
func (p *MergePatch) Document() map[string]interface{} {
	return runtime.DeepCopyJSON(p.doc)
}

// IsEmpty reports whether the document has no keys.
func (p *MergePatch) IsEmpty() bool {
	return len(p.doc) == 0
}

// Clear empties the document.
func (p *MergePatch) Clear() {
	p.doc = map[string]interface{}{}
}

// ContentType returns the media type used to send the patch.
func (p *MergePatch) ContentType() string {
	return string(types.MergePatchType)
}

// MarshalJSON encodes the document.
func (p *MergePatch) MarshalJSON() ([]byte, error) {
	if p.doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.doc)
}

// ApplyTo applies the patch to doc locally following RFC 7396.
func (p *MergePatch) ApplyTo(doc []byte) ([]byte, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out, err := jsonpatch.MergePatch(doc, data)
	if err != nil {
		return nil, fmt.Errorf("failed to apply merge patch: %w", err)
	}
	return out, nil
}

func mergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}
	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = srcVal
			continue
		}
		switch s := srcVal.(type) {
		case map[string]interface{}:
			if d, ok := dstVal.(map[string]interface{}); ok {
				dst[key] = mergeMaps(d, s)
				continue
			}
		case []interface{}:
			if d, ok := dstVal.([]interface{}); ok {
				dst[key] = append(d, s...)
				continue
			}
		}
		dst[key] = srcVal
	}
	return dst
}

func toJSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, string, bool, int64:
		return v
	case int:
		return int64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			panic(fmt.Sprintf("patch: value %v is not JSON compatible", v))
		}
		return v
	}
	data, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("patch: value of type %T is not JSON compatible: %v", value, err))
	}
	var out interface{}
	if err := utiljson.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("patch: cannot normalize value of type %T: %v", value, err))
	}
	return out
}
