package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// NormalizeVendor derives the deduplication key for a raw vendor string:
// fullwidth forms narrowed, case-folded, inner whitespace collapsed to
// single spaces, outer whitespace trimmed. The same rule is applied at
// classification time and again at output-assembly time, so the two sides
// always agree on the key. The caser is created per call; cases.Caser
// carries state and concurrent batches normalize in parallel.
func NormalizeVendor(raw string) string {
	s := width.Narrow.String(raw)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// DeduplicateVendors maps an original vendor list onto its unique normalized
// keys, preserving first-seen order. Empty inputs (blank lines in the list)
// are dropped from the working set but still appear in the final output via
// the assembler.
func DeduplicateVendors(original []string) []string {
	seen := make(map[string]bool, len(original))
	var unique []string
	for _, raw := range original {
		key := NormalizeVendor(raw)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, key)
	}
	return unique
}
