package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultEnvPrefix = "BANKLINK"

// EnvRawConfigLoader reads PREFIX_SECTION__KEY variables into the nested map
// shape cfgx expects. Values are coerced to the type of the matching default,
// and variables that match no known key are ignored.
type EnvRawConfigLoader struct {
	Prefix   string
	Environ  func() []string
	Defaults Config
}

func NewEnvRawConfigLoader(prefix string) *EnvRawConfigLoader {
	return &EnvRawConfigLoader{
		Prefix:   prefix,
		Environ:  os.Environ,
		Defaults: DefaultConfig(),
	}
}

func (l *EnvRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := map[string]any{}
	if l == nil {
		return out, nil
	}
	prefix := strings.ToUpper(strings.TrimSpace(l.Prefix))
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}
	template := ConfigLayer(l.Defaults, true)

	for _, entry := range environ() {
		name, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(name, prefix+"_") {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, prefix+"_")), "__")
		sample, known := lookupLayer(template, path)
		if !known {
			continue
		}
		coerced, err := coerceLike(sample, value)
		if err != nil {
			return nil, fmt.Errorf("core: env %s: %w", name, err)
		}
		assignLayer(out, path, coerced)
	}
	return out, nil
}

func lookupLayer(layer map[string]any, path []string) (any, bool) {
	var current any = layer
	for _, segment := range path {
		section, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = section[segment]
		if !ok {
			return nil, false
		}
	}
	if _, isSection := current.(map[string]any); isSection {
		return nil, false
	}
	return current, true
}

func assignLayer(target map[string]any, path []string, value any) {
	for _, segment := range path[:len(path)-1] {
		next, ok := target[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			target[segment] = next
		}
		target = next
	}
	target[path[len(path)-1]] = value
}

func coerceLike(sample any, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch sample.(type) {
	case bool:
		return strconv.ParseBool(raw)
	case int:
		return strconv.Atoi(raw)
	case time.Duration:
		return time.ParseDuration(raw)
	case []string:
		parts := strings.Split(raw, ",")
		values := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		return values, nil
	default:
		return raw, nil
	}
}
