// Package followup parses numbered follow-up questions out of model text and pads them to a
// fixed count.
package followup

import (
	"strings"
	"unicode/utf8"
)

// Generic questions pad lists that parse to fewer than three items.
var Generic = []string{
	"What are the treatment options?",
	"What are the possible causes?",
	"When should I see a doctor?",
}

// Count is the number of follow-up questions every answer carries.
const Count = 3

// minQuestionLen is the shortest accepted question in characters, exclusive.
const minQuestionLen = 8

var numberMarkers = []string{"1.", "2.", "3.", "1)", "2)", "3)"}

// Parse extracts numbered questions from model text and always returns exactly
// Count items, padding with Generic.
func Parse(text string) []string {
	var found []string
	for _, line := range strings.Split(text, "\n") {
		if q, ok := NumberedItem(line); ok {
			found = append(found, q)
		}
	}
	return Pad(found, Count, Generic)
}

// NumberedItem returns the question on a line that starts with a "1." to "3)" marker.
// The marker and surrounding ` .)"'` characters are stripped; results of eight characters
// or fewer are rejected.
func NumberedItem(line string) (string, bool) {
	line = strings.TrimSpace(line)
	for _, m := range numberMarkers {
		if strings.HasPrefix(line, m) {
			return CleanQuestion(line[len(m):])
		}
	}
	return "", false
}

// CleanQuestion trims punctuation around q and reports whether it is long enough to keep.
func CleanQuestion(q string) (string, bool) {
	q = strings.TrimSpace(strings.Trim(strings.TrimSpace(q), " .)\"'"))
	if utf8.RuneCountInString(q) <= minQuestionLen {
		return "", false
	}
	return q, true
}

// Pad dedupes qs (case-insensitive), keeps at most n, and fills the shortfall from
// defaults in order, skipping ones already present.
func Pad(qs []string, n int, defaults []string) []string {
	out := make([]string, 0, n)
	seen := make(map[string]bool, n)
	add := func(q string) {
		key := strings.ToLower(q)
		if len(out) >= n || q == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, q)
	}
	for _, q := range qs {
		add(q)
	}
	for _, q := range defaults {
		add(q)
	}
	for i := 0; len(out) < n && len(defaults) > 0; i++ {
		out = append(out, defaults[i%len(defaults)])
	}
	return out
}
