package internal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Conn is the narrow backend-client contract the schema evolution
// engine needs: execute DDL, run queries, fetch a query result as a
// frame, and bulk-insert rows. Connection lifecycle belongs to the
// caller.
type Conn interface {
	Command(ctx context.Context, ddl string) error
	QueryStrings(ctx context.Context, query string) ([]string, error)
	QueryFrame(ctx context.Context, query string) (*Frame, error)
	Insert(ctx context.Context, table string, columns []string, rows [][]any) error
	Close() error
}

type clickhouseConn struct {
	db *sql.DB
}

func openClickHouse(ctx context.Context, dsn string) (*clickhouseConn, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &clickhouseConn{db: db}, nil
}

func (c *clickhouseConn) Command(ctx context.Context, ddl string) error {
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	return nil
}

// QueryStrings runs a query returning a single string column, as used
// for system.databases / system.tables / system.columns lookups.
func (c *clickhouseConn) QueryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (c *clickhouseConn) QueryFrame(ctx context.Context, query string) (*Frame, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return frameFromRows(rows)
}

func (c *clickhouseConn) Insert(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(columns) == 0 || len(rows) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, quoteColumns(columns), placeholders(len(columns))))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *clickhouseConn) Close() error {
	return c.db.Close()
}

// frameFromRows scans a generic result set into a frame, mapping the
// backend type names to dtypes.
func frameFromRows(rows *sql.Rows) (*Frame, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	series := make([]Series, len(colTypes))
	for i, ct := range colTypes {
		series[i] = Series{Name: ct.Name(), Dtype: dtypeFromBackend(ct.DatabaseTypeName())}
	}

	dest := make([]any, len(colTypes))
	for rows.Next() {
		holders := make([]any, len(colTypes))
		for i := range holders {
			dest[i] = &holders[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range holders {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			series[i].Values = append(series[i].Values, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewFrame(series...)
}

func dtypeFromBackend(typeName string) Dtype {
	name := strings.TrimSpace(typeName)
	if strings.HasPrefix(name, "Nullable(") && strings.HasSuffix(name, ")") {
		name = name[len("Nullable(") : len(name)-1]
	}
	switch {
	case name == "UInt8":
		return DtypeBool
	case strings.HasPrefix(name, "Int") || strings.HasPrefix(name, "UInt"):
		return DtypeInt
	case strings.HasPrefix(name, "Float"):
		return DtypeFloat
	case strings.HasPrefix(name, "DateTime") || name == "Date":
		return DtypeDatetime
	default:
		return DtypeObject
	}
}

// helpers

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func quoteColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func quoteString(value string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value) + "'"
}

func placeholders(count int) string {
	return strings.TrimRight(strings.Repeat("?,", count), ",")
}
