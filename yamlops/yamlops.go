// Package yamlops implements parsing, dumping, deep-merge, flatten, and
// unflatten of YAML document trees, matching gopkg.in/yaml.v3's map[string]any
// representation.
package yamlops

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vatsan127/config-server/cerrors"
)

// Parse decodes text as a YAML document into a nested map. Empty input
// yields an empty map. A parse error is logged and an empty map is
// returned, matching the read path's best-effort policy; callers on the
// write path should use ParseStrict instead.
func Parse(text string) map[string]any {
	m, err := ParseStrict(text)
	if err != nil {
		logrus.WithError(err).Warn("yamlops: failed to parse YAML on read path, treating as empty")
		return map[string]any{}
	}
	return m
}

// ParseStrict decodes text as a YAML document into a nested map, returning
// an error on malformed input. Empty or null input yields an empty map.
func ParseStrict(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return map[string]any{}, nil
	}
	var doc any
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, cerrors.Wrap(cerrors.CodeInvalidYAML, "failed to parse YAML", err)
	}
	m := normalize(doc)
	if m == nil {
		return map[string]any{}, nil
	}
	asMap, ok := m.(map[string]any)
	if !ok {
		return nil, cerrors.New(cerrors.CodeInvalidYAML, "top-level YAML document must be a map")
	}
	return asMap, nil
}

// normalize recursively converts map[any]any (yaml.v3 decodes maps with
// interface{} keys when the target is `any`) into map[string]any so the
// rest of this package can assume string keys throughout.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[toString(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Dump renders m as block-style YAML with a 2-space indent.
func Dump(m map[string]any) (string, error) {
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return "", cerrors.Wrap(cerrors.CodeInvalidYAML, "failed to dump YAML", err)
	}
	if err := enc.Close(); err != nil {
		return "", cerrors.Wrap(cerrors.CodeInvalidYAML, "failed to close YAML encoder", err)
	}
	return sb.String(), nil
}

// DeepMerge merges source into target recursively: when both sides at a key
// are maps, they are merged recursively; otherwise source overwrites
// target. The target map is mutated and returned.
func DeepMerge(target, source map[string]any) map[string]any {
	for k, sv := range source {
		tv, exists := target[k]
		if !exists {
			target[k] = sv
			continue
		}
		tvMap, tvIsMap := tv.(map[string]any)
		svMap, svIsMap := sv.(map[string]any)
		if tvIsMap && svIsMap {
			target[k] = DeepMerge(tvMap, svMap)
		} else {
			target[k] = sv
		}
	}
	return target
}

// Flatten produces a single-level map whose keys are dot-joined path
// strings and whose values are leaves. Lists are treated as leaves, not
// expanded.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(m, "", out)
	return out
}

func flattenInto(m map[string]any, prefix string, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(nested, key, out)
			continue
		}
		out[key] = v
	}
}

// Unflatten reverses Flatten: dot-joined keys are expanded back into nested
// maps.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts := strings.Split(key, ".")
		cur := out
		for i, part := range parts {
			if i == len(parts)-1 {
				cur[part] = flat[key]
				break
			}
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[part] = next
			}
			cur = next
		}
	}
	return out
}
