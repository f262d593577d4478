package sink

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestPostgresSink_ReadAll(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT fields FROM collected_rows").
		WithArgs("apps").
		WillReturnRows(pgxmock.NewRows([]string{"fields"}).
			AddRow([]byte(`{"id":"a","title":"first"}`)).
			AddRow([]byte(`{"id":"b"}`)))

	s := NewPostgresFromPool(mock)
	rows, err := s.ReadAll(context.Background(), "apps")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID())
	assert.Equal(t, "first", rows[0]["title"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_WriteAllUpsertsInOneTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO collected_rows").
		WithArgs("apps", "a", pgxmock.AnyArg(), 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO collected_rows").
		WithArgs("apps", "b", pgxmock.AnyArg(), 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	s := NewPostgresFromPool(mock)
	err = s.WriteAll(context.Background(), "apps", []model.Row{
		{"id": "a", "title": "first"},
		{"id": "b"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_WriteAllSkipsRowsWithoutID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO collected_rows").
		WithArgs("apps", "a", pgxmock.AnyArg(), 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	s := NewPostgresFromPool(mock)
	err = s.WriteAll(context.Background(), "apps", []model.Row{
		{"title": "no id"},
		{"id": "a"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_FallsBackToInsertOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(assert.AnError)
	mock.ExpectExec("INSERT INTO collected_rows").
		WithArgs("apps", "a", pgxmock.AnyArg(), 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgresFromPool(mock)
	err = s.WriteAll(context.Background(), "apps", []model.Row{{"id": "a"}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
