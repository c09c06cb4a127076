// Package records defines the loosely-typed row shape that flows from the
// key-value source through assembly into the relational sink.
package records

import (
	"fmt"
	"sort"
	"strings"
)

// Record is one row keyed by field name. Values are whatever the source
// decoder produced (string, float64, bool, nil, []any, map[string]any) plus
// time.Time for fields coerced through a DateSchema.
type Record map[string]any

// VolatileFields are dropped from every row read from the source store.
var VolatileFields = []string{"__typename", "owner", "stickerSize"}

// ID returns the string "id" field.
func (r Record) ID() (string, bool) {
	return r.String("id")
}

// String returns field as a string. ok is false when the field is missing,
// nil, or not a string.
func (r Record) String(field string) (string, bool) {
	v, present := r[field]
	if !present || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r)+3)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the field names of r in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StripFields removes the named fields from r in place.
func StripFields(r Record, names ...string) {
	for _, n := range names {
		delete(r, n)
	}
}

// RenameKeys returns a new record whose keys have been converted with
// RenameKey. When two source keys collapse to the same name the one that
// sorts last wins, so the result is deterministic.
func RenameKeys(r Record) Record {
	out := make(Record, len(r))
	for _, k := range r.Keys() {
		out[RenameKey(k).(string)] = r[k]
	}
	return out
}

// RequireString checks that field holds a non-empty string. It is used at the
// store boundary to reject malformed rows.
func RequireString(r Record, field string) error {
	s, ok := r.String(field)
	if !ok {
		return fmt.Errorf("records: field %q missing or not a string", field)
	}
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("records: field %q is empty", field)
	}
	return nil
}
