package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Writer persists values on a background goroutine. Pending values are kept
// per key and a newer value replaces an unsaved older one, so a slow store
// never blocks callers and never receives stale snapshots after fresh ones.
type Writer struct {
	store   Store
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]any
	order   []string
	wake    chan struct{}
	done    chan struct{}
}

func NewWriter(store Store, timeout time.Duration) *Writer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Writer{
		store:   store,
		timeout: timeout,
		pending: make(map[string]any),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Schedule queues v for key, replacing any unsaved value.
func (w *Writer) Schedule(key string, v any) {
	w.mu.Lock()
	if _, ok := w.pending[key]; !ok {
		w.order = append(w.order, key)
	}
	w.pending[key] = v
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains pending values until ctx is cancelled, then flushes what is left.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.Flush(context.Background())
			return
		case <-w.wake:
			w.Flush(ctx)
		}
	}
}

// Done is closed after Run returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Flush saves every pending value. Snapshotter values are materialized
// first. Stores implementing BatchStore receive all pending values in one
// call.
func (w *Writer) Flush(ctx context.Context) {
	for {
		batch := w.drain()
		if len(batch) == 0 {
			return
		}
		for i := range batch {
			if s, ok := batch[i].Value.(Snapshotter); ok {
				batch[i].Value = s.Snapshot()
			}
		}

		saveCtx, cancel := context.WithTimeout(ctx, w.timeout)
		if bs, ok := w.store.(BatchStore); ok {
			if err := bs.SaveBatch(saveCtx, batch); err != nil {
				slog.Error("storage: batch save failed", "keys", len(batch), "error", err)
			}
		} else {
			for _, e := range batch {
				if err := w.store.Save(saveCtx, e.Key, e.Value); err != nil {
					slog.Error("storage: save failed", "key", e.Key, "error", err)
				}
			}
		}
		cancel()
	}
}

func (w *Writer) drain() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := make([]Entry, 0, len(w.order))
	for _, key := range w.order {
		batch = append(batch, Entry{Key: key, Value: w.pending[key]})
		delete(w.pending, key)
	}
	w.order = w.order[:0]
	return batch
}
