package pricing

import "time"

// Clock yields the evaluation date for promotions in the store's time zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a clock reading the wall time in loc. A nil loc means UTC.
func NewClock(loc *time.Location) Clock {
	return NewClockFunc(loc, time.Now)
}

// NewClockFunc is NewClock with an injectable time source.
func NewClockFunc(loc *time.Location, now func() time.Time) Clock {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Clock{loc: loc, now: now}
}

// Today is the current instant expressed in the clock's location, so its
// calendar date is the store's local date.
func (c Clock) Today() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	loc := c.loc
	if loc == nil {
		loc = time.UTC
	}
	return c.now().In(loc)
}

// Date truncates Today to midnight UTC of the local calendar day, the form
// promotion dates are stored in.
func (c Clock) Date() time.Time {
	y, m, d := c.Today().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
