// Package utils provides shared utilities for text, math, and logging.
package utils

import "unicode/utf8"

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged. Multi-byte characters are never split.
func Truncate(s string, maxLen int) string {
	clipped := Clip(s, maxLen)
	if len(clipped) == len(s) {
		return s
	}
	return clipped + "..."
}

// Clip returns at most the first maxLen characters of s, without any marker.
// If maxLen is 0 or negative, returns s unchanged.
func Clip(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}

// SplitChars splits s into consecutive pieces of at most size characters.
func SplitChars(s string, size int) []string {
	if size <= 0 || utf8.RuneCountInString(s) <= size {
		return []string{s}
	}
	var parts []string
	for len(s) > 0 {
		head := Clip(s, size)
		parts = append(parts, head)
		s = s[len(head):]
	}
	return parts
}
