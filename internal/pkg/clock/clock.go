package clock

import "time"

// Clock abstracts "now" so expiry comparisons in jobs and the lifecycle engine
// are testable with fixed fixture times.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// Fixed is a Clock pinned to a settable instant, for tests.
type Fixed struct {
	Time time.Time
}

func (f *Fixed) Now() time.Time { return f.Time }

// Advance moves the fixed clock forward.
func (f *Fixed) Advance(d time.Duration) { f.Time = f.Time.Add(d) }
