package runlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/collector-cli/internal/model"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLog_StartRecordsRunning(t *testing.T) {
	l := testLog(t)
	ctx := context.Background()

	id, err := l.Start(ctx, "planit_renewables")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entries, err := l.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RunStatusRunning, entries[0].Status)
	assert.Nil(t, entries[0].CompletedAt)
}

func TestLog_CompleteTransition(t *testing.T) {
	l := testLog(t)
	ctx := context.Background()

	id, err := l.Start(ctx, "planit_renewables")
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, id, model.Report{Total: 120, New: 7}))

	entries, err := l.List(ctx, "planit_renewables", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RunStatusComplete, entries[0].Status)
	assert.Equal(t, 120, entries[0].TotalRows)
	assert.Equal(t, 7, entries[0].NewRows)
	assert.NotNil(t, entries[0].CompletedAt)
}

func TestLog_FailRecordsKindAndError(t *testing.T) {
	l := testLog(t)
	ctx := context.Background()

	id, err := l.Start(ctx, "planit_renewables")
	require.NoError(t, err)
	require.NoError(t, l.Fail(ctx, id, model.Report{}, model.FailureRateLimited, "rate limit exceeded"))

	entries, err := l.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.RunStatusFailed, entries[0].Status)
	assert.Equal(t, model.FailureRateLimited, entries[0].FailureKind)
	assert.Equal(t, "rate limit exceeded", entries[0].Error)
}

func TestLog_FailWithPartialRowsRecordsPartial(t *testing.T) {
	l := testLog(t)
	ctx := context.Background()

	id, err := l.Start(ctx, "planit_renewables")
	require.NoError(t, err)
	report := model.Report{Total: 40, New: 12, Partial: true}
	require.NoError(t, l.Fail(ctx, id, report, model.FailureRateLimited, "rate limit exceeded"))

	entries, err := l.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, entries[0].Status)
	assert.Equal(t, 12, entries[0].NewRows)
}

func TestLog_ListFiltersBySource(t *testing.T) {
	l := testLog(t)
	ctx := context.Background()

	_, err := l.Start(ctx, "a")
	require.NoError(t, err)
	_, err = l.Start(ctx, "b")
	require.NoError(t, err)

	entries, err := l.List(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Source)
}

func TestLog_LastSuccess(t *testing.T) {
	l := testLog(t)
	ctx := context.Background()

	got, err := l.LastSuccess(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	id, err := l.Start(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, l.Complete(ctx, id, model.Report{}))

	got, err = l.LastSuccess(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsZero())
}
