// Package clock abstracts wall time and periodic callbacks so the
// scheduling components can be driven by a fake in tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Ticker invokes fn every period until stopped. Calling Start on a running
// ticker replaces the previous period and callback.
type Ticker interface {
	Start(period time.Duration, fn func())
	Stop()
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// TimeTicker runs the callback on its own goroutine backed by time.Ticker.
// Ticks that arrive while fn is still running are dropped by time.Ticker.
type TimeTicker struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewTicker() *TimeTicker {
	return &TimeTicker{}
}

func (t *TimeTicker) Start(period time.Duration, fn func()) {
	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Stop halts the ticker and waits for a running callback to return.
func (t *TimeTicker) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
