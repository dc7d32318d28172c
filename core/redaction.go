package core

import (
	"slices"
	"strings"
)

var sensitiveKeyFragments = []string{
	"password", "secret", "token", "authorization", "api_key", "apikey",
	"ssn", "date_of_birth", "credential", "cookie",
}

// traceabilityKeys are never redacted, even when they contain a fragment.
var traceabilityKeys = []string{
	"user_id", "item_id", "account_id", "bank_id", "funding_source_ref",
	"shareable_id", "step", "failure_kind", "idempotency_key", "trace_id", "request_id",
}

// RedactSensitiveMap copies metadata, replacing credential-like keys and any
// Secret values with RedactedValue.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	case Secret:
		return typed.String()
	case PublicToken:
		return typed.String()
	case AccessToken:
		return typed.String()
	case ProcessorToken:
		return typed.String()
	case SessionSecret:
		return typed.String()
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	return slices.Contains(traceabilityKeys, key)
}
