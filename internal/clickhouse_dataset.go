package internal

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/xo/dburl"
)

// ClickHouseOptions configures the schema evolution engine. The
// backend kind is explicit in the dataset type; nothing is sniffed
// from the connection string.
type ClickHouseOptions struct {
	URL       string `mapstructure:"url"`
	Database  string `mapstructure:"database"`
	OrderBy   string `mapstructure:"order_by"`
	Timezone  string `mapstructure:"timezone"`
	Overwrite bool   `mapstructure:"overwrite"`
}

// ClickHouseDataset reads and writes named tables in one ClickHouse
// database, evolving table schemas additively as new columns appear in
// saved frames.
type ClickHouseDataset struct {
	opts ClickHouseOptions
	dsn  string

	// conn is established lazily and kept for the dataset lifetime;
	// tests inject a fake here.
	conn Conn
}

func NewClickHouseDataset(opts ClickHouseOptions) (*ClickHouseDataset, error) {
	if opts.URL == "" {
		return nil, &ConfigError{Option: "url", Reason: "connection url is required"}
	}
	if opts.OrderBy == "" {
		return nil, &ConfigError{Option: "order_by", Reason: "an ordering column is required"}
	}
	u, err := dburl.Parse(opts.URL)
	if err != nil {
		return nil, &ConfigError{Option: "url", Reason: err.Error()}
	}
	if opts.Database == "" {
		if db := u.Path; len(db) > 1 {
			opts.Database = db[1:]
		} else {
			opts.Database = "default"
		}
	}
	return &ClickHouseDataset{opts: opts, dsn: u.DSN}, nil
}

func (d *ClickHouseDataset) writer(ctx context.Context) (*tableWriter, error) {
	if d.conn == nil {
		conn, err := openClickHouse(ctx, d.dsn)
		if err != nil {
			return nil, err
		}
		d.conn = conn
	}
	return newTableWriter(d.conn, d.opts.Database, d.opts.OrderBy, d.opts.Timezone), nil
}

// Save dispatches on the input variant: raw DDL statements run
// verbatim; table data goes through the evolution engine. Tables are
// processed in sorted name order so runs are reproducible.
func (d *ClickHouseDataset) Save(ctx context.Context, data Data) error {
	w, err := d.writer(ctx)
	if err != nil {
		return err
	}

	if data.IsRawDDL() {
		for _, stmt := range data.DDL() {
			if err := w.conn.Command(ctx, stmt); err != nil {
				return &BackendError{Op: opCommand, Err: err}
			}
		}
		return nil
	}

	tables := data.Tables()
	if tables == nil {
		return &ConfigError{Option: "data", Reason: "clickhouse save requires raw DDL or table data"}
	}

	if err := w.ensureDatabase(ctx); err != nil {
		return err
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := w.writeTable(ctx, name, tables[name], d.opts.Overwrite); err != nil {
			return err
		}
	}
	return nil
}

// Load returns every table in the database as one frame each.
func (d *ClickHouseDataset) Load(ctx context.Context) (Data, error) {
	w, err := d.writer(ctx)
	if err != nil {
		return Data{}, err
	}
	loaded, err := w.loadAll(ctx)
	if err != nil {
		return Data{}, err
	}
	return Tables(loaded), nil
}

func (d *ClickHouseDataset) Exists(ctx context.Context) (bool, error) {
	w, err := d.writer(ctx)
	if err != nil {
		return false, err
	}
	return w.exists(ctx)
}

func (d *ClickHouseDataset) Describe() map[string]string {
	return map[string]string{
		"type":      "clickhouse",
		"url":       redactURL(d.opts.URL),
		"database":  d.opts.Database,
		"order_by":  d.opts.OrderBy,
		"timezone":  d.opts.Timezone,
		"overwrite": strconv.FormatBool(d.opts.Overwrite),
	}
}

// Close releases the backend connection if one was established.
func (d *ClickHouseDataset) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	if err != nil {
		return fmt.Errorf("close clickhouse: %w", err)
	}
	return nil
}
