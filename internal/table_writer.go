package internal

import (
	"context"
	"fmt"
	"log/slog"
)

// tableWriter executes evolution plans and row inserts against the
// backend. It holds no schema cache: existence and column sets are
// re-queried from the live backend on every call, so concurrent
// external schema changes are picked up.
type tableWriter struct {
	conn     Conn
	database string
	orderBy  string
	timezone string
	logger   *slog.Logger
}

func newTableWriter(conn Conn, database, orderBy, timezone string) *tableWriter {
	return &tableWriter{
		conn:     conn,
		database: database,
		orderBy:  orderBy,
		timezone: timezone,
		logger:   slog.Default(),
	}
}

// ensureDatabase is idempotent and safe to call unconditionally.
func (w *tableWriter) ensureDatabase(ctx context.Context) error {
	ddl := "CREATE DATABASE IF NOT EXISTS " + quoteIdent(w.database)
	if err := w.conn.Command(ctx, ddl); err != nil {
		return &BackendError{Op: opCreateDatabase, Err: err}
	}
	return nil
}

func (w *tableWriter) databaseExists(ctx context.Context) (bool, error) {
	names, err := w.conn.QueryStrings(ctx,
		"SELECT name FROM system.databases WHERE name = "+quoteString(w.database))
	if err != nil {
		return false, &BackendError{Op: opQuery, Err: err}
	}
	return len(names) > 0, nil
}

func (w *tableWriter) listTables(ctx context.Context) ([]string, error) {
	tables, err := w.conn.QueryStrings(ctx,
		"SELECT name FROM system.tables WHERE database = "+quoteString(w.database)+" ORDER BY name")
	if err != nil {
		return nil, &BackendError{Op: opQuery, Err: err}
	}
	return tables, nil
}

// existingColumns returns the table's columns in position order, or
// nil when the table does not exist.
func (w *tableWriter) existingColumns(ctx context.Context, table string) ([]string, error) {
	cols, err := w.conn.QueryStrings(ctx,
		"SELECT name FROM system.columns WHERE database = "+quoteString(w.database)+
			" AND table = "+quoteString(table)+" ORDER BY position")
	if err != nil {
		return nil, &BackendError{Table: table, Op: opQuery, Err: err}
	}
	return cols, nil
}

func (w *tableWriter) dropTable(ctx context.Context, table string) error {
	ddl := "DROP TABLE " + quoteIdent(w.database) + "." + quoteIdent(table)
	if err := w.conn.Command(ctx, ddl); err != nil {
		return &BackendError{Table: table, Op: opDropTable, Err: err}
	}
	w.logger.Debug("dropped table", "database", w.database, "table", table)
	return nil
}

// writeTable reconciles one table with its frames and inserts them in
// order. With overwrite set, an existing table is dropped once, before
// any planning, so it is rebuilt from the frames' inferred schema
// rather than merged with stale history.
func (w *tableWriter) writeTable(ctx context.Context, table string, frames []*Frame, overwrite bool) error {
	existing, err := w.existingColumns(ctx, table)
	if err != nil {
		return err
	}

	if overwrite && existing != nil {
		if err := w.dropTable(ctx, table); err != nil {
			return err
		}
		existing = nil
	}

	plan := planEvolution(w.database, table, frames, existing, w.orderBy, w.timezone)

	if plan.createDDL != "" {
		if err := w.conn.Command(ctx, plan.createDDL); err != nil {
			return &BackendError{Table: table, Op: opCreateTable, Err: err}
		}
		w.logger.Debug("created table", "database", w.database, "table", table)
	}

	target := quoteIdent(w.database) + "." + quoteIdent(table)
	for i, frame := range frames {
		for _, ddl := range plan.frameAlters[i] {
			if err := w.conn.Command(ctx, ddl); err != nil {
				return &BackendError{Table: table, Op: opAddColumn, Err: err}
			}
			w.logger.Debug("added column", "database", w.database, "table", table, "ddl", ddl)
		}
		if err := w.insertFrame(ctx, target, table, frame); err != nil {
			return err
		}
	}
	return nil
}

func (w *tableWriter) insertFrame(ctx context.Context, target, table string, frame *Frame) error {
	if frame.NumColumns() == 0 || frame.NumRows() == 0 {
		return nil
	}
	rows := make([][]any, frame.NumRows())
	for i := range rows {
		rows[i] = frame.Row(i)
	}
	if err := w.conn.Insert(ctx, target, frame.Columns(), rows); err != nil {
		return &BackendError{Table: table, Op: opInsert, Err: err}
	}
	return nil
}

// loadAll fetches every table in the database as one frame. A database
// with no tables yields an empty mapping without error.
func (w *tableWriter) loadAll(ctx context.Context) (map[string][]*Frame, error) {
	tables, err := w.listTables(ctx)
	if err != nil {
		return nil, err
	}
	loaded := make(map[string][]*Frame, len(tables))
	for _, table := range tables {
		frame, err := w.conn.QueryFrame(ctx,
			fmt.Sprintf("SELECT * FROM %s.%s", quoteIdent(w.database), quoteIdent(table)))
		if err != nil {
			return nil, &BackendError{Table: table, Op: opQuery, Err: err}
		}
		loaded[table] = []*Frame{frame}
	}
	return loaded, nil
}

// exists reports whether the database exists and holds at least one
// table.
func (w *tableWriter) exists(ctx context.Context) (bool, error) {
	ok, err := w.databaseExists(ctx)
	if err != nil || !ok {
		return false, err
	}
	tables, err := w.listTables(ctx)
	if err != nil {
		return false, err
	}
	return len(tables) > 0, nil
}
