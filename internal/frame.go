package internal

import (
	"fmt"
	"math"
	"time"
)

// Dtype tags the observed value domain of a column. Unrecognized or
// mixed domains fall back to DtypeObject.
type Dtype int

const (
	DtypeObject Dtype = iota
	DtypeInt
	DtypeFloat
	DtypeBool
	DtypeDatetime
)

func (d Dtype) String() string {
	switch d {
	case DtypeInt:
		return "int"
	case DtypeFloat:
		return "float"
	case DtypeBool:
		return "bool"
	case DtypeDatetime:
		return "datetime"
	default:
		return "object"
	}
}

// Series is one named column with a dtype and row values. A nil value
// or a NaN float represents a missing entry.
type Series struct {
	Name   string
	Dtype  Dtype
	Values []any
}

// Frame is an ordered set of equal-length columns. Column order is
// insertion order, which is what DDL generation keys on.
type Frame struct {
	series []Series
}

func NewFrame(series ...Series) (*Frame, error) {
	f := &Frame{}
	for _, s := range series {
		if err := f.AddSeries(s); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Frame) AddSeries(s Series) error {
	if s.Name == "" {
		return fmt.Errorf("series must be named")
	}
	if _, ok := f.Series(s.Name); ok {
		return fmt.Errorf("duplicate column %q", s.Name)
	}
	if len(f.series) > 0 && len(s.Values) != f.NumRows() {
		return fmt.Errorf("column %q has %d rows, frame has %d", s.Name, len(s.Values), f.NumRows())
	}
	f.series = append(f.series, s)
	return nil
}

func (f *Frame) Series(name string) (Series, bool) {
	for _, s := range f.series {
		if s.Name == name {
			return s, true
		}
	}
	return Series{}, false
}

func (f *Frame) Columns() []string {
	names := make([]string, len(f.series))
	for i, s := range f.series {
		names[i] = s.Name
	}
	return names
}

func (f *Frame) NumColumns() int {
	return len(f.series)
}

func (f *Frame) NumRows() int {
	if len(f.series) == 0 {
		return 0
	}
	return len(f.series[0].Values)
}

// Row materializes one row in column order. NaN floats are converted
// to nil so numeric gaps survive the nullable path instead of being
// coerced to a numeric sentinel.
func (f *Frame) Row(i int) []any {
	row := make([]any, len(f.series))
	for j, s := range f.series {
		row[j] = normalizeValue(s.Values[i])
	}
	return row
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(n)) {
			return nil
		}
	case time.Time:
		return n
	}
	return v
}
