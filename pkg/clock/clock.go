package clock

import (
	"fmt"
	"time"
)

// Clock supplies the current instant in the school's civil timezone. Every
// time-dependent operation receives one instead of calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// SchoolClock reads the wall clock pinned to a fixed location.
type SchoolClock struct {
	loc *time.Location
}

// NewSchoolClock loads the named IANA timezone.
func NewSchoolClock(timezone string) (*SchoolClock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}
	return &SchoolClock{loc: loc}, nil
}

// Now returns the current time localised to the school timezone.
func (c *SchoolClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Fixed is a Clock frozen at a single instant, for tests.
type Fixed struct {
	Instant time.Time
}

// Now returns the frozen instant.
func (f Fixed) Now() time.Time {
	return f.Instant
}

// SameCivilDay reports whether two instants fall on the same calendar date.
func SameCivilDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// AtTimeOfDay combines a calendar date with an HH:MM time-of-day string in the
// date's location.
func AtTimeOfDay(date time.Time, hhmm string) (time.Time, error) {
	tod, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time of day %q: %w", hhmm, err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), 0, 0, date.Location()), nil
}
