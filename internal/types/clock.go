package types

import "time"

// Clock abstracts wall-clock reads so that calendar-window and expiry logic
// is deterministic under test. Production code uses RealClock; tests inject
// a fixed or stepped implementation.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// StartOfMonth returns the first instant of t's calendar month in t's
// location. Usage accounting windows are calendar months, not rolling
// 30-day windows: an entry at 23:59:59 on the last day of a month belongs to
// that month, and one at 00:00:00 on day 1 belongs to the new month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
