package diner

import (
	"fmt"
	"strings"
	"time"
)

// WeekLayout is the format of week identifiers: the date of the Thursday.
const WeekLayout = "2006-01-02"

// Dinner starts at 20:30 on the Thursday.
const (
	dinnerHour   = 20
	dinnerMinute = 30
)

// NextThursday returns midnight of the first Thursday strictly after the
// calendar day of now, in now's location.  On a Thursday it returns the
// following week, never the same day.
func NextThursday(now time.Time) time.Time {
	days := (int(time.Thursday) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	y, m, d := now.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, now.Location())
}

// WeekID formats a Thursday as a week identifier.
func WeekID(t time.Time) string { return t.Format(WeekLayout) }

// ParseWeek parses a week identifier in loc.  Malformed dates and dates
// that are not Thursdays are validation errors.
func ParseWeek(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(WeekLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed week %q", ErrValidation, s)
	}
	if t.Weekday() != time.Thursday {
		return time.Time{}, fmt.Errorf("%w: week %s is a %s, not a Thursday", ErrValidation, s, t.Weekday())
	}
	return t, nil
}

// DinnerAt returns the start of the dinner for the given week.
func DinnerAt(week time.Time) time.Time {
	y, m, d := week.Date()
	return time.Date(y, m, d, dinnerHour, dinnerMinute, 0, 0, week.Location())
}
