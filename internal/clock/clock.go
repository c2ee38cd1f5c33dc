// Package clock provides wall-clock access and a monotonic millisecond stamp
// used when minting session identifiers.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock reports the current time. Tests substitute testutil.FakeClock.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// Monotonic stamps strictly increasing unix milliseconds.
//
// If the wall clock stalls or moves backwards, Next returns last+1 so two ids
// minted in the same process never share a timestamp.
//
// Thread-safety: Monotonic is safe for concurrent use (atomic operations).
type Monotonic struct {
	clock Clock
	last  atomic.Int64
}

// NewMonotonic wraps c. A nil c uses the system clock.
func NewMonotonic(c Clock) *Monotonic {
	if c == nil {
		c = System{}
	}
	return &Monotonic{clock: c}
}

// Next returns the next stamp.
func (m *Monotonic) Next() int64 {
	now := m.clock.Now().UnixMilli()
	for {
		last := m.last.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if m.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Current returns the last stamp handed out without advancing.
func (m *Monotonic) Current() int64 {
	return m.last.Load()
}
