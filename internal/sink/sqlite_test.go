package sink

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/collector-cli/internal/model"
)

func testSQLite(t *testing.T) *SQLiteSink {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "sink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSink_RoundTripPreservesOrder(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	in := []model.Row{
		{"id": "z", "title": "written first"},
		{"id": "a", "title": "written second"},
	}
	require.NoError(t, s.WriteAll(ctx, "apps", in))

	out, err := s.ReadAll(ctx, "apps")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "z", out[0].ID())
	assert.Equal(t, "a", out[1].ID())
}

func TestSQLiteSink_UpsertReplacesRow(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WriteAll(ctx, "apps", []model.Row{{"id": "a", "title": "old"}}))
	require.NoError(t, s.WriteAll(ctx, "apps", []model.Row{{"id": "a", "title": "new"}}))

	out, err := s.ReadAll(ctx, "apps")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0]["title"])
}

func TestSQLiteSink_CollectionsAreIsolated(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WriteAll(ctx, "apps", []model.Row{{"id": "a"}}))
	require.NoError(t, s.WriteAll(ctx, "events", []model.Row{{"id": "e"}}))

	apps, err := s.ReadAll(ctx, "apps")
	require.NoError(t, err)
	events, err := s.ReadAll(ctx, "events")
	require.NoError(t, err)

	assert.Len(t, apps, 1)
	assert.Len(t, events, 1)
	assert.Equal(t, "e", events[0].ID())
}

func TestSQLiteSink_SkipsRowsWithoutID(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WriteAll(ctx, "apps", []model.Row{{"title": "no id"}, {"id": "a"}}))

	out, err := s.ReadAll(ctx, "apps")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID())
}

func TestSQLiteSink_EmptyCollection(t *testing.T) {
	s := testSQLite(t)
	out, err := s.ReadAll(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, out)
}
