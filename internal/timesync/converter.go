package timesync

import (
	"time"
)

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always reports the same instant.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.T
}

// FromTimespec converts a CLOCK_REALTIME timespec into wall-clock time.
// A zero timespec maps to the zero time.Time, which callers treat as
// "not observed".
func FromTimespec(sec, nsec int64) time.Time {
	if sec == 0 && nsec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, nsec)
}

// Delay returns to - from, or zero when either end was never observed.
func Delay(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return to.Sub(from)
}
