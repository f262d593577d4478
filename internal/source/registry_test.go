package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/collector-cli/internal/dedupe"
	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/pager"
)

// mockSource implements Source for registry tests.
type mockSource struct {
	name    string
	records []map[string]any
}

func (m *mockSource) Name() string          { return m.name }
func (m *mockSource) Collection() string    { return m.name }
func (m *mockSource) Policy() dedupe.Policy { return dedupe.ExistingWins }
func (m *mockSource) Windows(time.Time) []pager.Window {
	return []pager.Window{{}}
}
func (m *mockSource) FetchWindow(context.Context, pager.Window) ([]map[string]any, error) {
	return m.records, nil
}
func (m *mockSource) Normalize(_ context.Context, raw map[string]any) (model.Row, error) {
	row := model.Row{}
	for k, v := range raw {
		row[k] = v.(string)
	}
	return row, nil
}
func (m *mockSource) Filter(model.Row) bool { return true }

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&mockSource{name: "planit_renewables"})

	got, err := reg.Get("planit_renewables")
	require.NoError(t, err)
	assert.Equal(t, "planit_renewables", got.Name())
}

func TestRegistry_Get_NotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestRegistry_All_PreservesOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&mockSource{name: "alpha"})
	reg.Register(&mockSource{name: "beta"})
	reg.Register(&mockSource{name: "gamma"})

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, reg.Names())
}

func TestRegistry_ReRegisterKeepsPosition(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&mockSource{name: "alpha"})
	reg.Register(&mockSource{name: "beta"})
	reg.Register(&mockSource{name: "alpha", records: []map[string]any{{"id": "x"}}})

	assert.Equal(t, []string{"alpha", "beta"}, reg.Names())
	got, err := reg.Get("alpha")
	require.NoError(t, err)
	records, err := got.FetchWindow(context.Background(), pager.Window{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
