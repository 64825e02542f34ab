// Package timeutil lets the engine runner and the service loops take their
// notion of "now" and their tickers from a swappable clock.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source used by long-running loops.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers the clock time at a fixed interval.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when told to. Tickers created from it fire during
// Advance and Set, at most once per call, with the new clock time.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*MockTicker
}

// NewMockClock returns a MockClock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t, which may be in the past.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	tickers := append([]*MockTicker(nil), c.tickers...)
	c.mu.Unlock()
	for _, tk := range tickers {
		tk.fireIfDue(t)
	}
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Tickers reports how many tickers have been created and not stopped.
func (c *MockClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tk := range c.tickers {
		if !tk.isStopped() {
			n++
		}
	}
	return n
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tk := &MockTicker{ch: make(chan time.Time, 1), interval: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, tk)
	return tk
}

// MockTicker is a Ticker driven by a MockClock. Like time.Ticker it drops
// ticks the reader is not keeping up with.
type MockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *MockTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *MockTicker) fireIfDue(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
	t.next = now.Add(t.interval)
}
