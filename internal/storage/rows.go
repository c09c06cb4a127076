package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"migrator/pkg/records"
)

// Columns returns the sorted union of field names across rows.
func Columns(rows []records.Record) []string {
	set := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Matrix converts rows into positional values for columns. Missing fields
// become nil and nested values are JSON-encoded.
func Matrix(columns []string, rows []records.Record) ([][]any, error) {
	out := make([][]any, len(rows))
	for i, r := range rows {
		vals := make([]any, len(columns))
		for j, c := range columns {
			v, err := EncodeValue(r[c])
			if err != nil {
				return nil, fmt.Errorf("storage: row %d column %s: %w", i, c, err)
			}
			vals[j] = v
		}
		out[i] = vals
	}
	return out, nil
}

// EncodeValue maps a record value to something every SQL driver accepts:
// scalars pass through, maps and slices become JSON text.
func EncodeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int, int64, float64, time.Time, []byte:
		return t, nil
	case map[string]any, map[string]string, []any, []string, records.Record:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("unsupported value %T: %w", v, err)
		}
		return string(b), nil
	}
}

// IsJSONColumn reports whether any row stores a nested value in col.
func IsJSONColumn(col string, rows []records.Record) bool {
	for _, r := range rows {
		switch r[col].(type) {
		case map[string]any, map[string]string, []any, []string, records.Record:
			return true
		}
	}
	return false
}

// ValidateBatch rejects batches a SQL backend cannot write.
func ValidateBatch(table string, columns []string, conflict []string) error {
	if table == "" {
		return fmt.Errorf("storage: empty table name")
	}
	if len(columns) == 0 {
		return fmt.Errorf("storage: table %s: no columns", table)
	}
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	for _, c := range conflict {
		if !have[c] {
			return fmt.Errorf("storage: table %s: conflict column %q not present in rows", table, c)
		}
	}
	return nil
}
