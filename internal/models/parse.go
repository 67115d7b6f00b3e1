package models

import (
	"strconv"
	"strings"
	"time"
)

// dateFormats is the ordered list of textual encodings seen across sources.
// ISO first since it is the most reliable.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
	"2006/01/02",
	"02/01/2006",
}

// ParseDate attempts each known format in order. It never returns an error;
// an unparseable string simply yields ok=false so partial ingestion can
// proceed.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), t.Month(), t.Day()), true
		}
	}
	return Date{}, false
}

// ParseDatePtr is ParseDate for optional fields.
func ParseDatePtr(s string) *Date {
	if d, ok := ParseDate(s); ok {
		return &d
	}
	return nil
}

// ParseMoney parses a currency value, tolerating "$" and thousands
// separators. Empty strings and the literal "0" placeholder used by the
// grants.gov extracts yield absent.
func ParseMoney(s string) *float64 {
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", ""))
	if cleaned == "" || cleaned == "0" {
		return nil
	}
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &val
}

// ParseCount parses an integer count, accepting float-formatted text such as
// "25.0". Empty and "0" yield absent.
func ParseCount(s string) *int {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" || cleaned == "0" {
		return nil
	}
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	n := int(val)
	return &n
}

// ParseFlag interprets the truthy spellings upstream feeds use.
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}
