package models

import "time"

// DateLayout is the calendar-day format used in natural keys and payloads.
const DateLayout = "2006-01-02"

// TruncateDay keeps the calendar day of t as seen in t's own location and
// returns it as midnight UTC, so equal days compare equal across zones.
func TruncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, raw, time.UTC)
}
