// Package outbox decouples event producers from slow sinks: events are
// queued in memory and drained to every publisher on one goroutine.
package outbox

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

const (
	DefaultQueueSize = 256

	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
	sendTimeout  = 10 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
	Name() string
}

type Dispatcher struct {
	queue      chan models.Event
	publishers []Publisher
	dropped    atomic.Int64
	done       chan struct{}
}

func NewDispatcher(size int, publishers ...Publisher) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		queue:      make(chan models.Event, size),
		publishers: publishers,
		done:       make(chan struct{}),
	}
}

// Enqueue never blocks. A full queue drops the event.
func (d *Dispatcher) Enqueue(ev models.Event) {
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		slog.Warn("outbox: queue full, event dropped", "type", ev.Type, "key", ev.Key)
	}
}

// Dropped reports how many events were discarded on a full queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.drain()
			slog.Info("outbox: dispatcher stopped")
			return
		case ev := <-d.queue:
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev models.Event) {
	for _, p := range d.publishers {
		d.deliver(ctx, p, ev)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, p Publisher, ev models.Event) {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err = p.Publish(sendCtx, ev)
		cancel()
		if err == nil {
			return
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			slog.Error("outbox: delivery abandoned", "publisher", p.Name(), "type", ev.Type, "error", err)
			return
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	slog.Error("outbox: failed to deliver event", "publisher", p.Name(), "type", ev.Type, "key", ev.Key, "error", err)
}
