// Package dates provides canonical date parsing and calendar helpers.
//
// Workload weeks are always the Monday of their ISO week, and the
// assignment views filter by interval overlap; both rules live here so the
// query engine, page orchestrator and seeder agree on them.
package dates

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// DateLayout is the wire format for date fields.
	DateLayout = "2006-01-02"
	// DateTimeLayout is the wire format for timestamp fields.
	DateTimeLayout = "2006-01-02 15:04:05"
)

var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IsValidDate checks if a string is a valid YYYY-MM-DD date.
func IsValidDate(s string) bool {
	if !dateRegex.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !IsValidDate(s) {
		return time.Time{}, fmt.Errorf("invalid date: %q", s)
	}
	return time.Parse(DateLayout, s)
}

// ParseDateTime parses a timestamp in one of the accepted formats.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("invalid datetime: empty")
	}
	formats := []string{
		DateTimeLayout,
		time.RFC3339,
		"2006-01-02T15:04:05",
		DateLayout,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime: %q", s)
}

// MondayOf returns the Monday of t's ISO week, truncated to midnight.
func MondayOf(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7 // Sunday belongs to the preceding ISO week
	}
	return day.AddDate(0, 0, -offset)
}

// Overlaps reports whether the inclusive intervals [aStart, aEnd] and
// [bStart, bEnd] share at least one day.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}
