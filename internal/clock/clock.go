// Package clock abstracts wall time so scheduling logic can be tested
// against fixed instants.
package clock

import "time"

// Clock yields the current time in a fixed location.
type Clock interface {
	Now() time.Time
	// NowHHMM returns the current minute as a zero-padded "HH:MM" string.
	NowHHMM() string
	Location() *time.Location
}

type wallClock struct {
	loc *time.Location
}

// New returns a wall clock pinned to loc. A nil loc means UTC.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &wallClock{loc: loc}
}

func (c *wallClock) Now() time.Time           { return time.Now().In(c.loc) }
func (c *wallClock) NowHHMM() string          { return HHMM(c.Now()) }
func (c *wallClock) Location() *time.Location { return c.loc }

// HHMM formats t's hour and minute as "HH:MM", discarding seconds.
func HHMM(t time.Time) string { return t.Format("15:04") }

// Fixed is a Clock that always reports the same instant. Test helper.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time           { return f.T }
func (f Fixed) NowHHMM() string          { return HHMM(f.T) }
func (f Fixed) Location() *time.Location { return f.T.Location() }
