package records

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SnakeCase converts a compound-word field name ("productId") to the
// underscore convention ("product_id").
//
// An underscore is inserted only where an ASCII lowercase letter is directly
// followed by an ASCII uppercase letter; runs of capitals stay together, so
// "templateJSON" becomes "template_json". The result is lowercased.
func SnakeCase(name string) string {
	if name == "" {
		return name
	}

	var b strings.Builder
	b.Grow(len(name) + 4)

	var prev byte
	for i := 0; i < len(name); i++ {
		c := name[i]
		if i > 0 && isLowerASCII(prev) && isUpperASCII(c) {
			b.WriteByte('_')
		}
		b.WriteByte(c)
		prev = c
	}

	// Casers keep internal state and must not be shared across goroutines.
	return cases.Lower(language.Und).String(b.String())
}

// RenameKey applies SnakeCase to string inputs and returns every other value
// (nil, numbers, bools, maps) unchanged.
func RenameKey(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return SnakeCase(s)
}

func isLowerASCII(c byte) bool { return c >= 'a' && c <= 'z' }
func isUpperASCII(c byte) bool { return c >= 'A' && c <= 'Z' }
