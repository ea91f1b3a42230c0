package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// CleanList splits a comma separated list, cleans every item and drops the empty ones.
func CleanList(s string, lower ...bool) []string {
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanString(p, lower...); p != "" {
			items = append(items, p)
		}
	}
	return items
}
