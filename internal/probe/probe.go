// Package probe inspects a sample of source rows and suggests how the sink
// table should look: one inferred column type per field, a bounded
// uniqueness report, and a CREATE TABLE statement for the target backend.
//
// Probing is best-effort. Values that do not fit a narrower type widen the
// column to text; nothing in a sample can make the probe fail.
package probe

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"migrator/pkg/records"
)

// distinctCapPerColumn bounds memory for high-cardinality columns (ids).
const distinctCapPerColumn = 10000

// Type is a backend-neutral column type label.
type Type string

const (
	TypeBoolean   Type = "boolean"
	TypeInteger   Type = "integer"
	TypeFloat     Type = "float"
	TypeTimestamp Type = "timestamp"
	TypeJSON      Type = "json"
	TypeText      Type = "text"
)

// Column is the probe result for one field.
type Column struct {
	Name string
	Type Type

	// Total counts rows where the field had a non-nil, non-empty value.
	Total    int
	Distinct int
	Capped   bool
}

// Ratio is Distinct/Total, or 0 when the column was never set.
func (c Column) Ratio() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.Total)
}

// Result describes a sample.
type Result struct {
	SampledRows int
	Columns     []Column // sorted by name
}

// Column returns the column called name.
func (r Result) Column(name string) (Column, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Analyze infers column types and uniqueness from recs.
func Analyze(recs []records.Record) Result {
	type acc struct {
		types    map[Type]int
		distinct map[string]struct{}
		total    int
		capped   bool
	}
	cols := map[string]*acc{}

	for _, r := range recs {
		for k, v := range r {
			a := cols[k]
			if a == nil {
				a = &acc{types: map[Type]int{}, distinct: map[string]struct{}{}}
				cols[k] = a
			}
			t, ok := classify(v)
			if !ok {
				continue
			}
			a.types[t]++
			a.total++
			if a.capped {
				continue
			}
			a.distinct[stringifyScalar(v)] = struct{}{}
			if len(a.distinct) >= distinctCapPerColumn {
				a.capped = true
				a.distinct = nil
			}
		}
	}

	res := Result{SampledRows: len(recs), Columns: make([]Column, 0, len(cols))}
	for name, a := range cols {
		c := Column{Name: name, Type: widen(a.types), Total: a.total, Capped: a.capped}
		if a.capped {
			c.Distinct = distinctCapPerColumn
		} else {
			c.Distinct = len(a.distinct)
		}
		res.Columns = append(res.Columns, c)
	}
	sort.Slice(res.Columns, func(i, j int) bool { return res.Columns[i].Name < res.Columns[j].Name })
	return res
}

// classify returns the narrowest type for v. ok is false for values that
// carry no type information (nil, blank strings).
func classify(v any) (Type, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case bool:
		return TypeBoolean, true
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return TypeInteger, true
		}
		return TypeFloat, true
	case int, int64:
		return TypeInteger, true
	case time.Time:
		return TypeTimestamp, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", false
		}
		if _, err := records.ParseDate(s); err == nil {
			return TypeTimestamp, true
		}
		return TypeText, true
	case map[string]any, []any, records.Record:
		return TypeJSON, true
	default:
		return TypeText, true
	}
}

// widen merges the per-value types seen for one column.
func widen(seen map[Type]int) Type {
	switch len(seen) {
	case 0:
		return TypeText
	case 1:
		for t := range seen {
			return t
		}
	}
	if len(seen) == 2 && seen[TypeInteger] > 0 && seen[TypeFloat] > 0 {
		return TypeFloat
	}
	if seen[TypeJSON] > 0 {
		return TypeJSON
	}
	return TypeText
}

func stringifyScalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", t))
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// FormatReport renders the uniqueness table, least unique columns first.
func FormatReport(res Result) string {
	if res.SampledRows <= 0 {
		return "uniqueness: no rows sampled"
	}

	cols := make([]Column, 0, len(res.Columns))
	for _, c := range res.Columns {
		if c.Total > 0 {
			cols = append(cols, c)
		}
	}
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].Ratio() == cols[j].Ratio() {
			return cols[i].Name < cols[j].Name
		}
		return cols[i].Ratio() < cols[j].Ratio()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "uniqueness report:\tsampled_rows=%d\n", res.SampledRows)
	fmt.Fprintf(&b, "%-22s\t%-9s\t%-7s\t%-7s\tratio\tcapped\n", "col", "type", "unique", "rows")
	for _, c := range cols {
		fmt.Fprintf(&b, "%-22s\t%-9s\t%-7d\t%-7d\t%.1f%%\t%t\n",
			c.Name, c.Type, c.Distinct, c.Total, c.Ratio()*100, c.Capped)
	}
	return strings.TrimRight(b.String(), "\n")
}

// KeyCandidates returns the columns that were set and unique on every
// sampled row, in name order.
func KeyCandidates(res Result) []string {
	var out []string
	for _, c := range res.Columns {
		if c.Total == res.SampledRows && c.Total > 0 && c.Distinct == c.Total && !c.Capped {
			out = append(out, c.Name)
		}
	}
	return out
}
