package models

import (
	"encoding/json"
	"time"
)

// Date is a calendar date with day precision. Upstream feeds never carry a
// meaningful time of day, so everything is normalized to midnight UTC.
type Date struct {
	t time.Time
}

// NewDate builds a Date from year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar date in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func (d Date) IsZero() bool         { return d.t.IsZero() }
func (d Date) Before(o Date) bool   { return d.t.Before(o.t) }
func (d Date) After(o Date) bool    { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool    { return d.t.Equal(o.t) }
func (d Date) Year() int            { return d.t.Year() }
func (d Date) Month() time.Month    { return d.t.Month() }
func (d Date) Day() int             { return d.t.Day() }
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) DaysSince(o Date) int { return int(d.t.Sub(o.t) / (24 * time.Hour)) }

// String renders the date as ISO-8601 (YYYY-MM-DD).
func (d Date) String() string {
	return d.t.Format("2006-01-02")
}

// MarshalJSON encodes the date as an ISO-8601 string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a date leniently: null and unparseable inputs leave
// the date zero rather than returning an error, since upstream encodings are
// known to be inconsistent.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		*d = Date{}
		return nil
	}
	if s == nil {
		*d = Date{}
		return nil
	}
	if parsed, ok := ParseDate(*s); ok {
		*d = parsed
	} else {
		*d = Date{}
	}
	return nil
}
