package clock

import (
	"sync"
	"time"
)

// Clock allows injecting time into services. Every TTL and past-slot
// check goes through this so tests can pin the instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now in UTC.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed reports a pinned instant that tests can move forward.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed returns a clock that reports the given instant until advanced.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the pinned instant forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
