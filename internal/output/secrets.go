package output

import (
	"strings"

	"k8s.io/apimachinery/pkg/runtime"
)

// RedactedValue is the placeholder used for masked secret data.
const RedactedValue = "***REDACTED***"

// sensitiveAnnotations lists annotations that contain sensitive data.
var sensitiveAnnotations = map[string]bool{
	"kubernetes.io/service-account.uid":   true,
	"kubernetes.io/service-account-token": true,
}

// MaskSecrets returns a copy of obj with the values of a Secret replaced by
// RedactedValue. Keys stay visible. Objects of other kinds are returned
// unchanged.
func MaskSecrets(obj map[string]interface{}) map[string]interface{} {
	if !IsSecret(obj) {
		return obj
	}

	result := runtime.DeepCopyJSON(obj)
	for _, field := range []string{"data", "stringData"} {
		data, ok := result[field].(map[string]interface{})
		if !ok {
			continue
		}
		for key := range data {
			data[key] = RedactedValue
		}
	}

	metadata, _ := result["metadata"].(map[string]interface{})
	annotations, _ := metadata["annotations"].(map[string]interface{})
	for key := range annotations {
		if sensitiveAnnotations[key] {
			annotations[key] = RedactedValue
		}
	}
	return result
}

// IsSecret reports whether obj is a core Secret.
func IsSecret(obj map[string]interface{}) bool {
	if obj == nil {
		return false
	}
	kind, _ := obj["kind"].(string)
	return strings.EqualFold(kind, "Secret")
}
