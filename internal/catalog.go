package internal

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// catalogEntry is one dataset definition in the YAML catalog:
//
//	datasets:
//	  events:
//	    type: clickhouse
//	    options:
//	      url: clickhouse://localhost:9000/analytics
//	      order_by: id
type catalogEntry struct {
	Type    string         `koanf:"type"`
	Options map[string]any `koanf:"options"`
}

// Catalog holds named, constructed datasets.
type Catalog struct {
	datasets map[string]Dataset
}

func LoadCatalog(path string) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}

	entries := map[string]catalogEntry{}
	if err := k.Unmarshal("datasets", &entries); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, &ConfigError{Option: "datasets", Reason: "catalog defines no datasets"}
	}

	catalog := &Catalog{datasets: make(map[string]Dataset, len(entries))}
	for name, entry := range entries {
		ds, err := NewDataset(entry.Type, entry.Options)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
		catalog.datasets[name] = ds
	}
	return catalog, nil
}

// NewDataset constructs a dataset from an explicit kind and its
// options. The kind is never inferred from connection strings.
func NewDataset(kind string, options map[string]any) (Dataset, error) {
	switch kind {
	case "clickhouse":
		var opts ClickHouseOptions
		if err := decodeOptions(options, &opts); err != nil {
			return nil, err
		}
		return NewClickHouseDataset(opts)
	case "sql_table":
		var opts SQLTableOptions
		if err := decodeOptions(options, &opts); err != nil {
			return nil, err
		}
		return NewSQLTableDataset(opts)
	case "sql_query":
		var opts SQLQueryOptions
		if err := decodeOptions(options, &opts); err != nil {
			return nil, err
		}
		return NewSQLQueryDataset(opts)
	case "api":
		var opts APIOptions
		if err := decodeOptions(options, &opts); err != nil {
			return nil, err
		}
		return NewAPIDataset(opts)
	case "pdf":
		var opts PDFOptions
		if err := decodeOptions(options, &opts); err != nil {
			return nil, err
		}
		return NewPDFDataset(opts)
	default:
		return nil, &ConfigError{Option: "type", Reason: fmt.Sprintf("unknown dataset type %q", kind)}
	}
}

func decodeOptions(options map[string]any, out any) error {
	if err := mapstructure.Decode(options, out); err != nil {
		return &ConfigError{Option: "options", Reason: err.Error()}
	}
	return nil
}

func (c *Catalog) Get(name string) (Dataset, error) {
	ds, ok := c.datasets[name]
	if !ok {
		return nil, fmt.Errorf("dataset %q is not in the catalog", name)
	}
	return ds, nil
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.datasets))
	for name := range c.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
