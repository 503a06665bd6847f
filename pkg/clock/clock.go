package clock

import (
	"sync"
	"time"
)

// BackdateTick is subtracted from "now" when a period starts immediately, so that
// StartsOn < now holds right after creation.
const BackdateTick = time.Second

// Day is the length of one billing day.
const Day = 24 * time.Hour

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Real returns a Clock backed by the system time in UTC.
func Real() Clock {
	return realClock{}
}

// Func adapts a function to the Clock interface.
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}

// Mock is a manually driven Clock for tests. Safe for concurrent use.
type Mock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewMock returns a Mock frozen at now.
func NewMock(now time.Time) *Mock {
	return &Mock{now: now.UTC()}
}

func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set moves the clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}

// Advance moves the clock forward by d and returns the new time.
func (m *Mock) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// AddDays moves t by n calendar days. Negative n moves backwards.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// DiffInDays returns the number of full days between a and b regardless of order.
func DiffInDays(a, b time.Time) int {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return int(d / Day)
}

// NotAfter reports whether a <= b.
func NotAfter(a, b time.Time) bool {
	return !a.After(b)
}

// Later returns the later of a and b.
func Later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
