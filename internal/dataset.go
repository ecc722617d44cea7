package internal

import "context"

// Dataset is the uniform load/save contract shared by every backend
// adapter. Implementations validate their options up front and talk to
// the backend only inside these calls.
type Dataset interface {
	Load(ctx context.Context) (Data, error)
	Save(ctx context.Context, data Data) error
	Exists(ctx context.Context) (bool, error)
	Describe() map[string]string
}

type dataKind int

const (
	kindEmpty dataKind = iota
	kindFrames
	kindTables
	kindRawDDL
)

// Data is the tagged save/load value: raw DDL, a batch of DDL, a list
// of anonymous frames, or frames keyed by table name. The variant is
// resolved once at the dataset boundary, not inside the writers.
type Data struct {
	kind   dataKind
	ddl    []string
	frames []*Frame
	tables map[string][]*Frame
}

// RawDDL wraps a single statement to execute verbatim.
func RawDDL(stmt string) Data {
	return Data{kind: kindRawDDL, ddl: []string{stmt}}
}

// RawDDLBatch wraps statements to execute in order.
func RawDDLBatch(stmts []string) Data {
	return Data{kind: kindRawDDL, ddl: stmts}
}

// Frames wraps anonymous frames, as produced by single-table datasets.
func Frames(frames ...*Frame) Data {
	return Data{kind: kindFrames, frames: frames}
}

// Tables wraps frames destined for named tables.
func Tables(tables map[string][]*Frame) Data {
	return Data{kind: kindTables, tables: tables}
}

func (d Data) IsRawDDL() bool {
	return d.kind == kindRawDDL
}

func (d Data) DDL() []string {
	return d.ddl
}

func (d Data) Frames() []*Frame {
	return d.frames
}

func (d Data) Tables() map[string][]*Frame {
	return d.tables
}
