package internal

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/jmoiron/sqlx"
	"github.com/xo/dburl"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const insertBatchSize = 500

func connectSQL(urlStr string) (*sqlx.DB, error) {
	u, err := dburl.Parse(urlStr)
	if err != nil {
		return nil, &ConfigError{Option: "url", Reason: err.Error()}
	}
	db, err := sqlx.Connect(u.Driver, u.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", u.Driver, err)
	}
	return db, nil
}

// SQLTableOptions configures a dataset bound to one relational table.
type SQLTableOptions struct {
	URL   string `mapstructure:"url"`
	Table string `mapstructure:"table"`
}

// SQLTableDataset loads and saves one table through a SQL connection.
type SQLTableDataset struct {
	opts SQLTableOptions
	db   *sqlx.DB
}

func NewSQLTableDataset(opts SQLTableOptions) (*SQLTableDataset, error) {
	if opts.URL == "" {
		return nil, &ConfigError{Option: "url", Reason: "connection url is required"}
	}
	if opts.Table == "" {
		return nil, &ConfigError{Option: "table", Reason: "a table name is required"}
	}
	return &SQLTableDataset{opts: opts}, nil
}

func (d *SQLTableDataset) ensureDB() (*sqlx.DB, error) {
	if d.db == nil {
		db, err := connectSQL(d.opts.URL)
		if err != nil {
			return nil, err
		}
		d.db = db
	}
	return d.db, nil
}

func (d *SQLTableDataset) Load(ctx context.Context) (Data, error) {
	db, err := d.ensureDB()
	if err != nil {
		return Data{}, err
	}
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+d.opts.Table)
	if err != nil {
		return Data{}, &BackendError{Table: d.opts.Table, Op: opQuery, Err: err}
	}
	defer rows.Close()
	frame, err := frameFromRows(rows)
	if err != nil {
		return Data{}, &BackendError{Table: d.opts.Table, Op: opQuery, Err: err}
	}
	return Frames(frame), nil
}

func (d *SQLTableDataset) Save(ctx context.Context, data Data) error {
	frames := data.Frames()
	if frames == nil {
		return &ConfigError{Option: "data", Reason: "sql table save requires frames"}
	}
	db, err := d.ensureDB()
	if err != nil {
		return err
	}
	if len(frames) > 0 && frames[0].NumColumns() > 0 {
		if err := d.ensureTable(ctx, db, frames[0]); err != nil {
			return err
		}
	}
	for _, frame := range frames {
		if err := d.insertFrame(ctx, db, frame); err != nil {
			return err
		}
	}
	return nil
}

// ensureTable creates the target table from the first frame's schema
// when it does not exist yet, so saving into a fresh database works
// without manual DDL.
func (d *SQLTableDataset) ensureTable(ctx context.Context, db *sqlx.DB, frame *Frame) error {
	ok, err := d.Exists(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	defs := make([]string, 0, frame.NumColumns())
	for _, name := range frame.Columns() {
		s, _ := frame.Series(name)
		defs = append(defs, name+" "+sqlColumnType(s.Dtype))
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", d.opts.Table, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return &BackendError{Table: d.opts.Table, Op: opCreateTable, Err: err}
	}
	return nil
}

// sqlColumnType maps a dtype to a portable column type across the
// supported drivers.
func sqlColumnType(d Dtype) string {
	switch d {
	case DtypeInt:
		return "INTEGER"
	case DtypeFloat:
		return "DOUBLE PRECISION"
	case DtypeBool:
		return "SMALLINT"
	case DtypeDatetime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (d *SQLTableDataset) insertFrame(ctx context.Context, db *sqlx.DB, frame *Frame) error {
	cols := frame.Columns()
	if len(cols) == 0 || frame.NumRows() == 0 {
		return nil
	}
	rowTemplate := "(" + placeholders(len(cols)) + ")"

	for start := 0; start < frame.NumRows(); start += insertBatchSize {
		end := start + insertBatchSize
		if end > frame.NumRows() {
			end = frame.NumRows()
		}

		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*len(cols))
		for i := start; i < end; i++ {
			values = append(values, rowTemplate)
			args = append(args, frame.Row(i)...)
		}

		stmt := db.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			d.opts.Table, strings.Join(cols, ", "), strings.Join(values, ", ")))
		if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
			return &BackendError{Table: d.opts.Table, Op: opInsert, Err: err}
		}
	}
	return nil
}

func (d *SQLTableDataset) Exists(ctx context.Context) (bool, error) {
	db, err := d.ensureDB()
	if err != nil {
		return false, err
	}

	var query string
	switch db.DriverName() {
	case "sqlite3":
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	case "mysql":
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	default:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?"
	}

	var count int
	if err := db.GetContext(ctx, &count, db.Rebind(query), d.opts.Table); err != nil {
		return false, &BackendError{Table: d.opts.Table, Op: opQuery, Err: err}
	}
	return count > 0, nil
}

func (d *SQLTableDataset) Describe() map[string]string {
	return map[string]string{
		"type":  "sql_table",
		"url":   redactURL(d.opts.URL),
		"table": d.opts.Table,
	}
}

// SQLQueryOptions configures a load-only dataset backed by a query.
// The query text may be a template rendered against Context, and the
// connection may be routed through an SSH tunnel.
type SQLQueryOptions struct {
	URL     string         `mapstructure:"url"`
	SQL     string         `mapstructure:"sql"`
	Context map[string]any `mapstructure:"context"`
	SSH     *SSHOptions    `mapstructure:"ssh"`
}

type SQLQueryDataset struct {
	opts SQLQueryOptions
}

func NewSQLQueryDataset(opts SQLQueryOptions) (*SQLQueryDataset, error) {
	if opts.URL == "" {
		return nil, &ConfigError{Option: "url", Reason: "connection url is required"}
	}
	if opts.SQL == "" {
		return nil, &ConfigError{Option: "sql", Reason: "a query is required"}
	}
	return &SQLQueryDataset{opts: opts}, nil
}

// renderSQL expands the query template against the injected context.
// A template without actions passes through untouched; a template with
// actions but no context is a configuration error.
func renderSQL(query string, context map[string]any) (string, error) {
	if !strings.Contains(query, "{{") {
		return query, nil
	}
	if len(context) == 0 {
		return "", &ConfigError{Option: "context", Reason: "query is a template but no context was provided"}
	}
	tmpl, err := template.New("sql").Option("missingkey=error").Parse(query)
	if err != nil {
		return "", &ConfigError{Option: "sql", Reason: err.Error()}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", &ConfigError{Option: "sql", Reason: err.Error()}
	}
	return buf.String(), nil
}

// Load renders the query, optionally starts the tunnel, and fetches
// the result as one frame. The tunnel, when used, is torn down before
// Load returns; connections do not outlive the call.
func (d *SQLQueryDataset) Load(ctx context.Context) (Data, error) {
	query, err := renderSQL(d.opts.SQL, d.opts.Context)
	if err != nil {
		return Data{}, err
	}

	urlStr := d.opts.URL
	if d.opts.SSH != nil {
		tunnel, err := startTunnel(*d.opts.SSH)
		if err != nil {
			return Data{}, err
		}
		defer tunnel.Stop()
		urlStr, err = rewriteHost(urlStr, tunnel.LocalAddr())
		if err != nil {
			return Data{}, err
		}
	}

	db, err := connectSQL(urlStr)
	if err != nil {
		return Data{}, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return Data{}, &BackendError{Op: opQuery, Err: err}
	}
	defer rows.Close()
	frame, err := frameFromRows(rows)
	if err != nil {
		return Data{}, &BackendError{Op: opQuery, Err: err}
	}
	return Frames(frame), nil
}

func (d *SQLQueryDataset) Save(ctx context.Context, data Data) error {
	return ErrSaveUnsupported
}

func (d *SQLQueryDataset) Exists(ctx context.Context) (bool, error) {
	frame, err := d.Load(ctx)
	if err != nil {
		return false, err
	}
	frames := frame.Frames()
	return len(frames) > 0 && frames[0].NumRows() > 0, nil
}

func (d *SQLQueryDataset) Describe() map[string]string {
	desc := map[string]string{
		"type": "sql_query",
		"url":  redactURL(d.opts.URL),
		"sql":  d.opts.SQL,
	}
	if d.opts.SSH != nil {
		desc["ssh"] = d.opts.SSH.Address
	}
	return desc
}

func rewriteHost(urlStr, hostPort string) (string, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return "", &ConfigError{Option: "url", Reason: err.Error()}
	}
	u.Host = hostPort
	return u.String(), nil
}
