package ingest

import (
	"strings"
	"time"
	"unicode/utf8"
)

// cleanText trims and collapses runs of whitespace into single spaces.
// The extracts are full of stray tabs and double spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// atoi parses a digit-only substring; callers guarantee isDigits.
func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func timeMonth(m int) time.Month {
	return time.Month(m)
}

// truncate cuts a string to at most maxLen bytes without splitting a
// multi-byte rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen]
}

// truncateText cuts a string to maxLen, appending an ellipsis marker when
// something was dropped.
func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen > 3 {
		return truncate(s, maxLen-3) + "..."
	}
	return truncate(s, maxLen)
}
