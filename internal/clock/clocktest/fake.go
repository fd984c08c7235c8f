// Package clocktest provides a manually driven clock and ticker.
package clocktest

import (
	"sync"
	"time"
)

// Clock is a settable clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Ticker records Start/Stop calls and fires only when told to.
type Ticker struct {
	mu      sync.Mutex
	fn      func()
	period  time.Duration
	running bool
	starts  int
}

func NewTicker() *Ticker {
	return &Ticker{}
}

func (t *Ticker) Start(period time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fn = fn
	t.period = period
	t.running = true
	t.starts++
}

func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
}

// Fire runs the callback synchronously if the ticker is running and
// reports whether it did.
func (t *Ticker) Fire() bool {
	t.mu.Lock()
	fn, running := t.fn, t.running
	t.mu.Unlock()

	if !running || fn == nil {
		return false
	}
	fn()
	return true
}

func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Ticker) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

func (t *Ticker) Starts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}
