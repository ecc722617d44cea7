package internal

import (
	"errors"
	"fmt"
)

// ErrSaveUnsupported signals a load-only dataset.
var ErrSaveUnsupported = errors.New("saving is not supported for this dataset")

// ConfigError reports an invalid or missing construction-time option.
// It is raised before any backend interaction and never retried.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Option, e.Reason)
}

// ParseError wraps a failure of the injected date parser during a
// checkpoint comparison. The raw values are kept for diagnosis.
type ParseError struct {
	Partition  string
	Checkpoint string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parser error for partition %q checkpoint %q: %v", e.Partition, e.Checkpoint, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Backend operation names used in BackendError.
const (
	opCreateDatabase = "create database"
	opCreateTable    = "create table"
	opAddColumn      = "add column"
	opDropTable      = "drop table"
	opInsert         = "insert"
	opQuery          = "query"
	opCommand        = "command"
)

// BackendError identifies the table and operation behind a failed
// backend call. Failures propagate unchanged, with no local recovery;
// a partially applied plan is left as-is.
type BackendError struct {
	Table string
	Op    string
	Err   error
}

func (e *BackendError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed for table %q: %v", e.Op, e.Table, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
