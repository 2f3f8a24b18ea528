// Package strings holds small text helpers for CLI output.
package strings

import "strings"

// CellMaxLen bounds free-text columns such as gadget titles.
const CellMaxLen = 40

// Truncate collapses whitespace to single spaces and shortens s to at most
// max runes, marking the cut with "...". max is raised to 4 so at least one
// rune survives.
func Truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
