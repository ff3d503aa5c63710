package yamlops_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vatsan127/config-server/yamlops"
)

func TestParseEmptyYieldsEmptyMap(t *testing.T) {
	m := yamlops.Parse("")
	assert.Empty(t, m)
}

func TestParseStrictRejectsNonMapDocument(t *testing.T) {
	_, err := yamlops.ParseStrict("- a\n- b\n")
	require.Error(t, err)
}

func TestDeepMergeRecursesIntoMaps(t *testing.T) {
	target := map[string]any{
		"server": map[string]any{"port": 8080, "host": "localhost"},
	}
	source := map[string]any{
		"server": map[string]any{"port": 9090},
	}
	merged := yamlops.DeepMerge(target, source)

	server := merged["server"].(map[string]any)
	assert.Equal(t, 9090, server["port"])
	assert.Equal(t, "localhost", server["host"])
}

func TestDeepMergeOverwritesNonMapWithMap(t *testing.T) {
	target := map[string]any{"x": "scalar"}
	source := map[string]any{"x": map[string]any{"y": 1}}
	merged := yamlops.DeepMerge(target, source)
	assert.Equal(t, map[string]any{"y": 1}, merged["x"])
}

func TestFlattenProducesDotPaths(t *testing.T) {
	m := map[string]any{
		"server": map[string]any{"port": 8080},
		"name":   "app",
	}
	flat := yamlops.Flatten(m)
	assert.Equal(t, 8080, flat["server.port"])
	assert.Equal(t, "app", flat["name"])
}

func TestFlattenTreatsListsAsLeaves(t *testing.T) {
	m := map[string]any{"items": []any{1, 2, 3}}
	flat := yamlops.Flatten(m)
	assert.Equal(t, []any{1, 2, 3}, flat["items"])
}

func TestRoundTripFlattenParseDump(t *testing.T) {
	original := map[string]any{
		"server": map[string]any{"port": 8080, "host": "localhost"},
		"name":   "app",
	}

	text, err := yamlops.Dump(original)
	require.NoError(t, err)

	parsed := yamlops.Parse(text)
	assert.Equal(t, yamlops.Flatten(original), yamlops.Flatten(parsed))
}

func TestUnflattenReversesFlatten(t *testing.T) {
	flat := map[string]any{"server.port": 8080, "name": "app"}
	nested := yamlops.Unflatten(flat)
	assert.Equal(t, yamlops.Flatten(nested), flat)
}
