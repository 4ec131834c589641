package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilterShapes(t *testing.T) {
	f, err := ParseFilter(`{"where":{"type":"post"},"fields":{"name":true,"data":true,"type":false},"order":"createdAt DESC","limit":5,"offset":10,"include":"ownerMember"}`)
	require.NoError(t, err)
	assert.Equal(t, Where{"type": "post"}, f.Where)
	assert.Equal(t, []string{"data", "name"}, f.Fields)
	assert.Equal(t, []SortKey{{Field: "createdAt", Desc: true}}, f.Order)
	assert.Equal(t, 5, f.Limit)
	assert.Equal(t, 10, f.Skip)
	assert.Equal(t, []string{"ownerMember"}, f.Include)

	f, err = ParseFilter(`{"fields":["name"],"order":["type ASC","name"],"skip":2,"include":[{"relation":"ownerMember"}]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, f.Fields)
	assert.Equal(t, []SortKey{{Field: "type"}, {Field: "name"}}, f.Order)
	assert.Equal(t, 2, f.Skip)
	assert.Equal(t, []string{"ownerMember"}, f.Include)
}

func TestParseFilterRejectsBadOrder(t *testing.T) {
	_, err := ParseFilter(`{"order":"name SIDEWAYS"}`)
	require.Error(t, err)
}

func TestParseFilterEmpty(t *testing.T) {
	f, err := ParseFilter("  ")
	require.NoError(t, err)
	assert.Equal(t, Filter{}, f)
}

func TestWhereLiteral(t *testing.T) {
	w, err := ParseWhere(`{"type":{"eq":"post"},"access":"public","createdAt":{"gt":"2024-01-01"}}`)
	require.NoError(t, err)

	v, ok := w.Literal("type")
	require.True(t, ok)
	assert.Equal(t, "post", v)

	v, ok = w.Literal("access")
	require.True(t, ok)
	assert.Equal(t, "public", v)

	_, ok = w.Literal("createdAt")
	assert.False(t, ok)
	_, ok = w.Literal("missing")
	assert.False(t, ok)
}

func TestProjectionKeepsID(t *testing.T) {
	assert.Nil(t, Filter{}.Projection("name"))
	assert.Equal(t, []string{"type", "name"}, Filter{Fields: []string{"type"}}.Projection("name"))
	assert.Equal(t, []string{"name"}, Filter{Fields: []string{"name"}}.Projection("name"))
}

func TestDocumentCloneIsDeep(t *testing.T) {
	doc := Document{"data": map[string]any{"tags": []any{"a"}}}
	clone := doc.Clone()
	clone["data"].(map[string]any)["tags"].([]any)[0] = "b"
	assert.Equal(t, "a", doc["data"].(map[string]any)["tags"].([]any)[0])
}
