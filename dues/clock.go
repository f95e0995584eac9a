package dues

import "time"

// =============================================================================
// CLOCK - Substitutable time source for deterministic threshold testing
// =============================================================================

// Clock supplies the current date. The escalation engine never calls
// time.Now directly so that day-of-month behavior is testable.
type Clock interface {
	Today() time.Time
}

// SystemClock returns the real current date, truncated to day in UTC.
type SystemClock struct{}

func (SystemClock) Today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// FixedClock is a settable clock for tests.
type FixedClock struct {
	T time.Time
}

func NewFixedClock(year int, month time.Month, day int) *FixedClock {
	return &FixedClock{T: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (c *FixedClock) Today() time.Time      { return c.T }
func (c *FixedClock) Set(t time.Time)       { c.T = t }
func (c *FixedClock) AdvanceDays(n int)     { c.T = c.T.AddDate(0, 0, n) }
func (c *FixedClock) SetDay(day int)        { c.T = time.Date(c.T.Year(), c.T.Month(), day, 0, 0, 0, 0, time.UTC) }
