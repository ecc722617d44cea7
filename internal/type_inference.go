package internal

import "fmt"

// mergeDtype folds two observed dtypes into one target. Int and float
// widen to float; any other disagreement falls back to object. Total
// over the dtype space, so inference never fails.
func mergeDtype(a, b Dtype) Dtype {
	if a == b {
		return a
	}
	if (a == DtypeInt && b == DtypeFloat) || (a == DtypeFloat && b == DtypeInt) {
		return DtypeFloat
	}
	return DtypeObject
}

// mergeDtypes merges the dtypes a column was observed with across
// frames. An empty observation set defaults to object.
func mergeDtypes(dtypes []Dtype) Dtype {
	if len(dtypes) == 0 {
		return DtypeObject
	}
	merged := dtypes[0]
	for _, d := range dtypes[1:] {
		merged = mergeDtype(merged, d)
	}
	return merged
}

// columnType renders the ClickHouse storage type for a dtype. Every
// type is wrapped Nullable except datetimes, which are always
// representable, and the ordering column, which the backend rejects
// when nullable.
func columnType(d Dtype, timezone string, orderBy bool) string {
	var base string
	switch d {
	case DtypeInt:
		base = "Int32"
	case DtypeFloat:
		base = "Float64"
	case DtypeBool:
		base = "UInt8"
	case DtypeDatetime:
		if timezone != "" {
			return fmt.Sprintf("DateTime('%s')", timezone)
		}
		return "DateTime"
	default:
		base = "String"
	}
	if orderBy {
		return base
	}
	return "Nullable(" + base + ")"
}
