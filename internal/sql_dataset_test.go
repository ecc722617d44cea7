package internal

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSQLTableDataset(t *testing.T, table string) (*SQLTableDataset, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ds, err := NewSQLTableDataset(SQLTableOptions{URL: "postgres://localhost/app", Table: table})
	require.NoError(t, err)
	ds.db = sqlx.NewDb(db, "sqlmock")
	return ds, mock
}

func TestNewSQLTableDatasetValidation(t *testing.T) {
	var cfgErr *ConfigError

	_, err := NewSQLTableDataset(SQLTableOptions{Table: "people"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "url", cfgErr.Option)

	_, err = NewSQLTableDataset(SQLTableOptions{URL: "postgres://localhost/app"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "table", cfgErr.Option)
}

func TestSQLTableLoad(t *testing.T) {
	ds, mock := newMockSQLTableDataset(t, "people")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM people")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "anne").
			AddRow(2, nil))

	data, err := ds.Load(context.Background())
	require.NoError(t, err)
	frames := data.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, []string{"id", "name"}, frames[0].Columns())
	assert.Equal(t, 2, frames[0].NumRows())
	assert.Equal(t, []any{int64(1), "anne"}, frames[0].Row(0))
	assert.Equal(t, []any{int64(2), nil}, frames[0].Row(1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTableLoadQueryFailure(t *testing.T) {
	ds, mock := newMockSQLTableDataset(t, "people")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM people")).
		WillReturnError(assert.AnError)

	_, err := ds.Load(context.Background())
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "people", backendErr.Table)
	assert.Equal(t, opQuery, backendErr.Op)
}

func expectTableCount(mock sqlmock.Sqlmock, table string, count int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?")).
		WithArgs(table).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestSQLTableSaveBatchesRows(t *testing.T) {
	ds, mock := newMockSQLTableDataset(t, "people")

	expectTableCount(mock, "people", 1)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO people (id, name) VALUES (?,?), (?,?)")).
		WithArgs(1, "anne", 2, "ben").
		WillReturnResult(sqlmock.NewResult(0, 2))

	frame := mustFrame(t,
		Series{Name: "id", Dtype: DtypeInt, Values: []any{1, 2}},
		Series{Name: "name", Dtype: DtypeObject, Values: []any{"anne", "ben"}},
	)
	require.NoError(t, ds.Save(context.Background(), Frames(frame)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTableSaveRequiresFrames(t *testing.T) {
	ds, _ := newMockSQLTableDataset(t, "people")
	err := ds.Save(context.Background(), RawDDL("DROP TABLE people"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestSQLTableSaveSkipsEmptyFrame(t *testing.T) {
	ds, mock := newMockSQLTableDataset(t, "people")

	// the table is ensured but no insert is issued for zero rows
	expectTableCount(mock, "people", 1)
	frame := mustFrame(t, Series{Name: "id", Dtype: DtypeInt, Values: []any{}})
	require.NoError(t, ds.Save(context.Background(), Frames(frame)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTableSaveCreatesMissingTable(t *testing.T) {
	ds, mock := newMockSQLTableDataset(t, "people")

	expectTableCount(mock, "people", 0)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE people (id INTEGER, name TEXT, score DOUBLE PRECISION)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO people (id, name, score) VALUES (?,?,?)")).
		WithArgs(1, "anne", 0.5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	frame := mustFrame(t,
		Series{Name: "id", Dtype: DtypeInt, Values: []any{1}},
		Series{Name: "name", Dtype: DtypeObject, Values: []any{"anne"}},
		Series{Name: "score", Dtype: DtypeFloat, Values: []any{0.5}},
	)
	require.NoError(t, ds.Save(context.Background(), Frames(frame)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTableExists(t *testing.T) {
	ds, mock := newMockSQLTableDataset(t, "people")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?")).
		WithArgs("people").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := ds.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRenderSQL(t *testing.T) {
	// plain queries pass through untouched
	got, err := renderSQL("SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got)

	// template actions render against the context
	got, err = renderSQL("SELECT * FROM events WHERE day = '{{.day}}'",
		map[string]any{"day": "2024-03-15"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM events WHERE day = '2024-03-15'", got)
}

func TestRenderSQLTemplateWithoutContext(t *testing.T) {
	_, err := renderSQL("SELECT * FROM events WHERE day = '{{.day}}'", nil)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "context", cfgErr.Option)
}

func TestRenderSQLMissingKey(t *testing.T) {
	_, err := renderSQL("SELECT '{{.other}}'", map[string]any{"day": "2024-03-15"})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sql", cfgErr.Option)
}

func TestSQLQuerySaveUnsupported(t *testing.T) {
	ds, err := NewSQLQueryDataset(SQLQueryOptions{URL: "postgres://localhost/app", SQL: "SELECT 1"})
	require.NoError(t, err)

	saveErr := ds.Save(context.Background(), Frames())
	assert.ErrorIs(t, saveErr, ErrSaveUnsupported)
}

func TestRewriteHost(t *testing.T) {
	got, err := rewriteHost("postgres://user:pw@db.internal:5432/app", "127.0.0.1:53211")
	require.NoError(t, err)
	assert.Equal(t, "postgres://user:pw@127.0.0.1:53211/app", got)
}
