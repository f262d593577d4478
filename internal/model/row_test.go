package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRow_ID(t *testing.T) {
	assert.Equal(t, "abc/123", Row{"id": "abc/123"}.ID())
	assert.Empty(t, Row{"name": "x"}.ID())
}

func TestRow_Get_FirstNonEmpty(t *testing.T) {
	r := Row{"lng": "", "lon": "-0.1"}
	assert.Equal(t, "-0.1", r.Get("lng", "lon", "longitude"))
	assert.Empty(t, r.Get("missing"))
}

func TestRow_Clone_Independent(t *testing.T) {
	r := Row{"id": "1", "title": "a"}
	c := r.Clone()
	c["title"] = "b"
	assert.Equal(t, "a", r["title"])
}

func TestUnionKeys_IDFirstRestSorted(t *testing.T) {
	rows := []Row{
		{"id": "1", "title": "t", "authority": "a"},
	}
	assert.Equal(t, []string{"id", "authority", "title"}, UnionKeys(rows))
}

func TestUnionKeys_PreservesFirstAppearance(t *testing.T) {
	rows := []Row{
		{"id": "1", "title": "t"},
		{"id": "2", "title": "t", "decision": "granted"},
		{"id": "3", "app_size": "large"},
	}
	assert.Equal(t, []string{"id", "title", "decision", "app_size"}, UnionKeys(rows))
}

func TestUnionKeys_Empty(t *testing.T) {
	assert.Empty(t, UnionKeys(nil))
}
