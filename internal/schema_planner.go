package internal

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set"
)

// evolutionPlan is the ordered DDL reconciling one table with the
// frames of a single save call. Plans are ephemeral and recomputed
// from the live schema on every call.
type evolutionPlan struct {
	table     string
	exists    bool
	createDDL string
	// frameAlters[i] holds the ADD COLUMN statements that must run
	// before frame i is inserted.
	frameAlters [][]string
}

func (p *evolutionPlan) alterDDLs() []string {
	var ddls []string
	for _, alters := range p.frameAlters {
		ddls = append(ddls, alters...)
	}
	return ddls
}

// columnUniverse returns column names in first-seen order across
// frames, frame order being the caller-supplied order.
func columnUniverse(frames []*Frame) []string {
	seen := mapset.NewSet()
	var universe []string
	for _, f := range frames {
		for _, name := range f.Columns() {
			if seen.Add(name) {
				universe = append(universe, name)
			}
		}
	}
	return universe
}

// mergedColumnDtype merges a column's dtype across every frame that
// contains it.
func mergedColumnDtype(frames []*Frame, column string) Dtype {
	var observed []Dtype
	for _, f := range frames {
		if s, ok := f.Series(column); ok {
			observed = append(observed, s.Dtype)
		}
	}
	return mergeDtypes(observed)
}

// planEvolution computes the DDL for one table. When the table is
// absent (existing == nil) it emits a single CREATE whose column types
// merge observations across all frames. When the table exists, each
// frame contributes ADD COLUMN statements for columns not yet known,
// typed from that frame alone; evolution is incremental, so a column
// introduced by a later frame is typed from that frame, not from the
// cross-frame merge.
func planEvolution(database, table string, frames []*Frame, existing []string, orderBy, timezone string) *evolutionPlan {
	plan := &evolutionPlan{
		table:       table,
		exists:      existing != nil,
		frameAlters: make([][]string, len(frames)),
	}
	target := quoteIdent(database) + "." + quoteIdent(table)

	known := mapset.NewSet()
	for _, name := range existing {
		known.Add(name)
	}

	if !plan.exists {
		universe := columnUniverse(frames)
		defs := make([]string, 0, len(universe))
		for _, name := range universe {
			dtype := mergedColumnDtype(frames, name)
			defs = append(defs, quoteIdent(name)+" "+columnType(dtype, timezone, name == orderBy))
			known.Add(name)
		}
		plan.createDDL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree ORDER BY (%s)",
			target, strings.Join(defs, ", "), quoteIdent(orderBy))
	}

	for i, f := range frames {
		for _, s := range f.series {
			if !known.Add(s.Name) {
				continue
			}
			ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
				target, quoteIdent(s.Name), columnType(s.Dtype, timezone, s.Name == orderBy))
			plan.frameAlters[i] = append(plan.frameAlters[i], ddl)
		}
	}

	return plan
}
