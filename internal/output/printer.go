package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"sigs.k8s.io/yaml"
)

// Format selects how objects are printed.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	// FormatName prints kind/name, one object per line.
	FormatName Format = "name"
)

// Options controls what a Printer writes.
type Options struct {
	Format Format
	// ShowSecrets disables masking of Secret values.
	ShowSecrets bool
	// ExcludedFields defaults to DefaultExcludedFields when nil. An empty
	// non-nil slice prints full objects.
	ExcludedFields []string
}

// Printer writes objects in the configured format.
type Printer struct {
	w    io.Writer
	opts Options
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, opts Options) *Printer {
	if opts.Format == "" {
		opts.Format = FormatYAML
	}
	if opts.ExcludedFields == nil {
		opts.ExcludedFields = DefaultExcludedFields()
	}
	return &Printer{w: w, opts: opts}
}

// Prepare applies secret masking and field exclusion to obj.
func (p *Printer) Prepare(obj map[string]interface{}) map[string]interface{} {
	if !p.opts.ShowSecrets {
		obj = MaskSecrets(obj)
	}
	return Slim(obj, p.opts.ExcludedFields)
}

// PrintObject writes a single object.
func (p *Printer) PrintObject(obj map[string]interface{}) error {
	if p.opts.Format == FormatName {
		_, err := fmt.Fprintln(p.w, Name(obj))
		return err
	}
	return p.encode(p.Prepare(obj))
}

// PrintList writes items wrapped in a v1 List.
func (p *Printer) PrintList(items []map[string]interface{}) error {
	if p.opts.Format == FormatName {
		for _, item := range items {
			if _, err := fmt.Fprintln(p.w, Name(item)); err != nil {
				return err
			}
		}
		return nil
	}

	prepared := make([]interface{}, 0, len(items))
	for _, item := range items {
		prepared = append(prepared, p.Prepare(item))
	}
	return p.encode(map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "List",
		"items":      prepared,
	})
}

// PrintEvent writes one watch event.
func (p *Printer) PrintEvent(eventType string, obj map[string]interface{}) error {
	if p.opts.Format == FormatName {
		_, err := fmt.Fprintf(p.w, "%s\t%s\n", eventType, Name(obj))
		return err
	}
	event := map[string]interface{}{"type": eventType, "object": p.Prepare(obj)}
	if p.opts.Format == FormatJSON {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.w, string(data))
		return err
	}
	return p.encode(event)
}

func (p *Printer) encode(v interface{}) error {
	var (
		data []byte
		err  error
	)
	switch p.opts.Format {
	case FormatJSON:
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	case FormatYAML:
		data, err = yaml.Marshal(v)
		data = append([]byte("---\n"), data...)
	default:
		return fmt.Errorf("unsupported output format %q", p.opts.Format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = p.w.Write(data)
	return err
}

// Name returns kind/name for obj, with the kind lower-cased.
func Name(obj map[string]interface{}) string {
	kind, _ := obj["kind"].(string)
	metadata, _ := obj["metadata"].(map[string]interface{})
	name, _ := metadata["name"].(string)
	return strings.ToLower(kind) + "/" + name
}
