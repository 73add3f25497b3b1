package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// BatchWriter buffers values from a channel and hands them to save in
// batches: when the buffer is full, on every tick, and once more when the
// channel closes.
type BatchWriter[T any] struct {
	in      chan T
	done    chan struct{}
	size    int
	timeout time.Duration
	save    func(context.Context, []T) error

	saved  atomic.Int64
	mu     sync.Mutex
	errors []error
}

func NewBatchWriter[T any](size int, timeout time.Duration, save func(context.Context, []T) error) *BatchWriter[T] {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &BatchWriter[T]{
		in:      make(chan T, size*2),
		done:    make(chan struct{}),
		size:    size,
		timeout: timeout,
		save:    save,
	}
}

// Start runs the writer loop. Saves use a context detached from ctx so the
// final flush still lands after cancellation.
func (w *BatchWriter[T]) Start(ctx context.Context) {
	go w.loop(context.WithoutCancel(ctx))
}

func (w *BatchWriter[T]) Send(v T) {
	w.in <- v
}

// Close stops intake, waits for the final flush, and returns the first
// save error, if any.
func (w *BatchWriter[T]) Close() error {
	close(w.in)
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.errors) > 0 {
		return w.errors[0]
	}
	return nil
}

// Saved is the number of values written so far.
func (w *BatchWriter[T]) Saved() int64 {
	return w.saved.Load()
}

func (w *BatchWriter[T]) loop(ctx context.Context) {
	defer close(w.done)

	buffer := make([]T, 0, w.size)
	ticker := time.NewTicker(w.timeout)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		if err := w.save(ctx, buffer); err != nil {
			slog.ErrorContext(ctx, "batch save failed", "size", len(buffer), "err", err)
			w.mu.Lock()
			w.errors = append(w.errors, err)
			w.mu.Unlock()
		} else {
			w.saved.Add(int64(len(buffer)))
			slog.DebugContext(ctx, "saved batch", "size", len(buffer))
		}
		buffer = make([]T, 0, w.size)
	}

	for {
		select {
		case v, ok := <-w.in:
			if !ok {
				flush()
				return
			}
			buffer = append(buffer, v)
			if len(buffer) >= w.size {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
