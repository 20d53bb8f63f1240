// Package patch builds JSON Patch (RFC 6902) and JSON Merge Patch (RFC 7396)
// documents for partial updates.
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonpatch "gopkg.in/evanphx/json-patch.v4"
	"k8s.io/apimachinery/pkg/types"
)

// Op is an RFC 6902 operation name.
type Op string

// RFC 6902 operations.
const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
	OpMove    Op = "move"
	OpCopy    Op = "copy"
	OpTest    Op = "test"
)

// Operation is a single JSON Patch operation.
//
// Value is only serialized for add, replace and test, where it is always
// present on the wire even when nil. From is only serialized for move and
// copy.
type Operation struct {
	Op    Op
	Path  string
	Value interface{}
	From  string
}

type wireOperation struct {
	Op    Op               `json:"op"`
	Path  string           `json:"path"`
	Value *json.RawMessage `json:"value,omitempty"`
	From  string           `json:"from,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (o Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{Op: o.Op, Path: o.Path}
	switch o.Op {
	case OpAdd, OpReplace, OpTest:
		raw, err := json.Marshal(o.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value for %s %s: %w", o.Op, o.Path, err)
		}
		msg := json.RawMessage(raw)
		w.Value = &msg
	case OpMove, OpCopy:
		w.From = o.From
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	o.Op = w.Op
	o.Path = w.Path
	o.From = w.From
	o.Value = nil
	if w.Value != nil {
		if err := json.Unmarshal(*w.Value, &o.Value); err != nil {
			return err
		}
	}
	return nil
}

// JSONPatch accumulates an ordered list of RFC 6902 operations.
//
// The builder does not validate operations; the server rejects malformed
// patches.
type JSONPatch struct {
	ops []Operation
}

// NewJSONPatch returns an empty patch.
func NewJSONPatch() *JSONPatch {
	return &JSONPatch{}
}

// ParseJSONPatch decodes an RFC 6902 document.
func ParseJSONPatch(data []byte) (*JSONPatch, error) {
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to parse JSON patch: %w", err)
	}
	return &JSONPatch{ops: ops}, nil
}

// Add appends an "add" operation.
func (p *JSONPatch) Add(path string, value interface{}) *JSONPatch {
	return p.append(Operation{Op: OpAdd, Path: path, Value: value})
}

// Remove appends a "remove" operation.
func (p *JSONPatch) Remove(path string) *JSONPatch {
	return p.append(Operation{Op: OpRemove, Path: path})
}

// Replace appends a "replace" operation.
func (p *JSONPatch) Replace(path string, value interface{}) *JSONPatch {
	return p.append(Operation{Op: OpReplace, Path: path, Value: value})
}

// Move appends a "move" operation.
func (p *JSONPatch) Move(from, path string) *JSONPatch {
	return p.append(Operation{Op: OpMove, Path: path, From: from})
}

// Copy appends a "copy" operation.
func (p *JSONPatch) Copy(from, path string) *JSONPatch {
	return p.append(Operation{Op: OpCopy, Path: path, From: from})
}

// Test appends a "test" operation. A failing test aborts the whole patch on
// the server.
func (p *JSONPatch) Test(path string, value interface{}) *JSONPatch {
	return p.append(Operation{Op: OpTest, Path: path, Value: value})
}

// Operations returns a copy of the accumulated operations in insertion order.
func (p *JSONPatch) Operations() []Operation {
	out := make([]Operation, len(p.ops))
	copy(out, p.ops)
	return out
}

// Len returns the number of operations.
func (p *JSONPatch) Len() int {
	return len(p.ops)
}

// IsEmpty reports whether the patch has no operations.
func (p *JSONPatch) IsEmpty() bool {
	return len(p.ops) == 0
}

// Clear drops all operations.
func (p *JSONPatch) Clear() {
	p.ops = nil
}

// ContentType returns the media type used to send the patch.
func (p *JSONPatch) ContentType() string {
	return string(types.JSONPatchType)
}

// MarshalJSON encodes the operations as a JSON array, preserving order.
func (p *JSONPatch) MarshalJSON() ([]byte, error) {
	if p.ops == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.ops)
}

// ApplyTo applies the patch to doc locally and returns the patched document.
func (p *JSONPatch) ApplyTo(doc []byte) ([]byte, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	decoded, err := jsonpatch.DecodePatch(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON patch: %w", err)
	}
	out, err := decoded.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to apply JSON patch: %w", err)
	}
	return bytes.TrimSpace(out), nil
}

func (p *JSONPatch) append(op Operation) *JSONPatch {
	p.ops = append(p.ops, op)
	return p
}
