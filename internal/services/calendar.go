package services

import (
	"fmt"
	"time"
)

const DateKeyLayout = "2006-01-02"

// Clock supplies "now" and the zone whose calendar day counts as today.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// NewClock builds a wall clock for the named IANA zone ("Local" and "" mean the host zone).
func NewClock(timezone string) (Clock, error) {
	loc := time.Local
	if timezone != "" && timezone != "Local" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return Clock{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		loc = l
	}
	return Clock{Now: time.Now, Location: loc}, nil
}

// FixedClock always returns t. Used by tests and replays.
func FixedClock(t time.Time) Clock {
	return Clock{Now: func() time.Time { return t }, Location: t.Location()}
}

func (c Clock) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c Clock) current() time.Time {
	if c.Now == nil {
		return time.Now().In(c.location())
	}
	return c.Now().In(c.location())
}

// Today returns the date key of the current local day.
func (c Clock) Today() string {
	return FormatDateKey(c.current())
}

// ParseDate parses a date key in the clock's zone.
func (c Clock) ParseDate(key string) (time.Time, error) {
	return ParseDateKey(key, c.location())
}

// IsWorkDay reports whether t falls on one of activeDays (0 = Sunday .. 6 = Saturday).
func IsWorkDay(t time.Time, activeDays []int) bool {
	wd := int(t.Weekday())
	for _, d := range activeDays {
		if d == wd {
			return true
		}
	}
	return false
}

// FormatDateKey renders the local calendar date of t as YYYY-MM-DD.
func FormatDateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateKeyLayout, key, loc)
	if err != nil {
		return time.Time{}, newValidation("invalid date %q, expected YYYY-MM-DD", key)
	}
	return t, nil
}

// ValidateActiveDays checks for a non-empty, duplicate-free subset of 0..6.
func ValidateActiveDays(days []int) error {
	if len(days) == 0 {
		return newValidation("at least one active day is required")
	}
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return newValidation("active day %d out of range 0-6", d)
		}
		if seen[d] {
			return newValidation("active day %d listed twice", d)
		}
		seen[d] = true
	}
	return nil
}
