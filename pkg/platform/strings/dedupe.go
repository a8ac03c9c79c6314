// Package strings carries the string-slice canonicalization shared by the
// service's list-shaped inputs: broker lists from the environment, reason
// codes from engine callbacks.
package strings

import "strings"

// DedupeAndTrim trims every element, drops empties and keeps the first
// occurrence of each value. Order is otherwise preserved.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower canonicalizes to lowercase before deduplicating, for
// vocabularies that are case-insensitive by contract.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

func dedupe(values []string, canon func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		c := canon(v)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
