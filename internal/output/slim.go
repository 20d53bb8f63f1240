package output

import (
	"strings"

	"k8s.io/apimachinery/pkg/runtime"
)

// DefaultExcludedFields returns the fields removed from printed objects
// unless the caller asks for the full document.
func DefaultExcludedFields() []string {
	return []string{
		// Managed fields are verbose bookkeeping of server-side apply.
		"metadata.managedFields",
		// Duplicates the whole manifest.
		"metadata.annotations.kubectl.kubernetes.io/last-applied-configuration",
	}
}

// Slim returns a copy of obj without the excluded fields. Paths are dot
// delimited; a segment ending in [*] applies the rest of the path to every
// element of a list. Map keys that contain dots, such as annotation names,
// are matched against the remainder of the path.
func Slim(obj map[string]interface{}, excludedFields []string) map[string]interface{} {
	if obj == nil {
		return nil
	}
	result := runtime.DeepCopyJSON(obj)
	for _, field := range excludedFields {
		if field == "" {
			continue
		}
		removeField(result, strings.Split(field, "."))
	}
	return result
}

func removeField(obj map[string]interface{}, parts []string) {
	if len(parts) == 0 || obj == nil {
		return
	}

	if joined := strings.Join(parts, "."); len(parts) > 1 {
		if _, ok := obj[joined]; ok {
			delete(obj, joined)
			return
		}
	}

	current, remaining := parts[0], parts[1:]

	if name, ok := strings.CutSuffix(current, "[*]"); ok {
		items, _ := obj[name].([]interface{})
		if len(remaining) == 0 {
			return
		}
		for _, item := range items {
			if m, ok := item.(map[string]interface{}); ok {
				removeField(m, remaining)
			}
		}
		return
	}

	if len(remaining) == 0 {
		delete(obj, current)
		return
	}

	next, _ := obj[current].(map[string]interface{})
	removeField(next, remaining)
}
