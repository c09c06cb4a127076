package records

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order when coercing a field.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DateSchema lists, per table, the fields that hold date strings.
//
// Coercion is opt-in: a field not listed is never parsed, so IDs and other
// strings that merely look like dates stay strings.
type DateSchema map[string][]string

// Fields returns the date fields configured for table.
func (s DateSchema) Fields(table string) []string {
	if s == nil {
		return nil
	}
	return s[table]
}

// ParseDate parses s with the supported layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("records: %q is not a supported date", s)
}

// CoerceDates converts the named string fields of r to time.Time in place.
// Fields that are absent or not strings are skipped. Values that fail to
// parse are left as they are and reported in the returned slice so the caller
// can log them.
func CoerceDates(r Record, fields []string) []error {
	var errs []error
	for _, f := range fields {
		s, ok := r.String(f)
		if !ok {
			continue
		}
		t, err := ParseDate(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", f, err))
			continue
		}
		r[f] = t
	}
	return errs
}
