package diner

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RevealSchedule is the single global reveal instant of every week: a
// weekday and wall-clock time on or before the Thursday of the dinner.
// The default is Wednesday 18:00, the evening before.
type RevealSchedule struct {
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

// DefaultRevealSchedule returns Wednesday 18:00 UTC.
func DefaultRevealSchedule() RevealSchedule {
	return RevealSchedule{Weekday: time.Wednesday, Hour: 18, Minute: 0, Location: time.UTC}
}

// ParseRevealSchedule builds a schedule from a weekday name ("Wednesday",
// "wed") and a 24h clock ("18:00").
func ParseRevealSchedule(weekday, clock string, loc *time.Location) (RevealSchedule, error) {
	wd, ok := parseWeekday(weekday)
	if !ok {
		return RevealSchedule{}, fmt.Errorf("invalid reveal weekday %q", weekday)
	}
	hh, mm, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok {
		return RevealSchedule{}, fmt.Errorf("invalid reveal time %q, want HH:MM", clock)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return RevealSchedule{}, fmt.Errorf("invalid reveal time %q, want HH:MM", clock)
	}
	if loc == nil {
		loc = time.UTC
	}
	return RevealSchedule{Weekday: wd, Hour: h, Minute: m, Location: loc}, nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}

func (s RevealSchedule) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// RevealAt returns the reveal instant for the given Thursday: the latest
// occurrence of the schedule's weekday and clock on or before that day.
func (s RevealSchedule) RevealAt(week time.Time) time.Time {
	back := (int(time.Thursday) - int(s.Weekday) + 7) % 7
	y, m, d := week.Date()
	return time.Date(y, m, d-back, s.Hour, s.Minute, 0, 0, s.location())
}

// Due reports whether the reveal instant of week has passed at now.  It
// depends on nothing but its arguments, so a restarted poller reaches the
// same answer.
func (s RevealSchedule) Due(week, now time.Time) bool {
	return !now.Before(s.RevealAt(week))
}

// Today returns now in the schedule's location, which is also the zone
// used to decide what "today" means for registration.
func (s RevealSchedule) Today(now time.Time) time.Time { return now.In(s.location()) }

func (s RevealSchedule) String() string {
	return fmt.Sprintf("%s %02d:%02d %s", s.Weekday, s.Hour, s.Minute, s.location())
}
