package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cyclicRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(
		Descriptor{
			Name:    "Node",
			IDField: "id",
			Fields: []Field{
				{Name: "label", Type: String, Required: true},
				{Name: "weight", Type: Number, Default: 1.0},
				{Name: "seen", Type: Date},
				{Name: "peer", Type: Entity, Ref: "Edge"},
			},
			Settings: Settings{Strict: true},
		},
		Descriptor{
			Name:    "Edge",
			IDField: "id",
			Fields: []Field{
				{Name: "to", Type: Entity, Ref: "Node"},
				{Name: "hops", Type: Array, ItemType: Entity, ItemRef: "Node"},
			},
			Settings: Settings{Strict: true},
		},
	)
	require.NoError(t, err)
	return reg
}

func TestNewRegistryRejectsUnknownReference(t *testing.T) {
	_, err := NewRegistry(Descriptor{
		Name:    "A",
		IDField: "id",
		Fields:  []Field{{Name: "b", Type: Entity, Ref: "B"}},
	})
	require.Error(t, err)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	d := Descriptor{Name: "A", IDField: "id"}
	_, err := NewRegistry(d, d)
	require.Error(t, err)
}

func TestValidateStrictUnknownAndTypes(t *testing.T) {
	reg := cyclicRegistry(t)
	node, _ := reg.Get("Node")

	issues := reg.Validate(node, map[string]any{"id": "n1", "label": "a", "weight": 2.5}, false)
	assert.Empty(t, issues)

	issues = reg.Validate(node, map[string]any{"label": 3, "bogus": true}, false)
	assert.Equal(t, []string{"bogus: unknown property", "label: must be a string"}, issues)

	issues = reg.Validate(node, map[string]any{"weight": 1.0}, false)
	assert.Equal(t, []string{"label: is required"}, issues)

	issues = reg.Validate(node, map[string]any{"weight": 1.0}, true)
	assert.Empty(t, issues)
}

func TestValidateNestedEntities(t *testing.T) {
	reg := cyclicRegistry(t)
	node, _ := reg.Get("Node")

	doc := map[string]any{
		"label": "root",
		"peer": map[string]any{
			"to":   map[string]any{"label": "leaf"},
			"hops": []any{map[string]any{"label": 7}},
		},
	}
	issues := reg.Validate(node, doc, false)
	assert.Equal(t, []string{"peer.hops[0].label: must be a string"}, issues)
}

func TestApplyDefaults(t *testing.T) {
	reg := cyclicRegistry(t)
	node, _ := reg.Get("Node")
	doc := map[string]any{"label": "a"}
	node.ApplyDefaults(doc)
	assert.Equal(t, 1.0, doc["weight"])

	doc = map[string]any{"label": "a", "weight": 4.0}
	node.ApplyDefaults(doc)
	assert.Equal(t, 4.0, doc["weight"])
}

func TestCoerceDates(t *testing.T) {
	reg := cyclicRegistry(t)
	edge, _ := reg.Get("Edge")
	doc := map[string]any{
		"to": map[string]any{"seen": "2024-01-05T00:00:00.000Z"},
		"hops": []any{
			map[string]any{"seen": "2024-01-02"},
		},
	}
	reg.Coerce(edge, doc)
	to := doc["to"].(map[string]any)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), to["seen"])
	hop := doc["hops"].([]any)[0].(map[string]any)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), hop["seen"])
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-05T00:00:00.000Z", FormatTime(ts))
	parsed, err := ParseTime("2024-01-05T00:00:00.000Z")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts))
}
