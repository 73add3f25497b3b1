package pipeline

import (
	"sync"
	"sync/atomic"
)

type Failure struct {
	Key string
	Err error
}

// Ledger counts outcomes for one run. Items left undispatched by a fatal
// stop or cancellation are in Total but neither Processed nor Failed.
type Ledger struct {
	Total     atomic.Int64
	Processed atomic.Int64
	Failed    atomic.Int64

	mu       sync.Mutex
	failures []Failure
}

func (l *Ledger) succeed() int64 {
	l.Processed.Add(1)
	return l.Done()
}

func (l *Ledger) fail(key string, err error) int64 {
	l.mu.Lock()
	l.failures = append(l.failures, Failure{Key: key, Err: err})
	l.mu.Unlock()
	l.Failed.Add(1)
	return l.Done()
}

func (l *Ledger) Done() int64 {
	return l.Processed.Load() + l.Failed.Load()
}

func (l *Ledger) Skipped() int64 {
	return l.Total.Load() - l.Done()
}

// Failures returns a copy of the recorded failures in completion order.
func (l *Ledger) Failures() []Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Failure, len(l.failures))
	copy(out, l.failures)
	return out
}
