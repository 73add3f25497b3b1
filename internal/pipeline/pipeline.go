// Package pipeline runs a handler over a fixed set of work items with
// bounded concurrency, per-item retries, and a progress ledger.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"prop-crawler/internal/fault"
	"prop-crawler/pkg/models"
)

type Item interface {
	ItemKey() string
	OriginURL() string
}

type Handler[T Item] func(ctx context.Context, item T, cred models.Credential) error

type Strategy int

const (
	// Pool starts the next item as soon as any worker frees up.
	Pool Strategy = iota
	// Batched runs items in chunks of Workers; a chunk starts only after the
	// previous one has fully finished.
	Batched
)

func (s Strategy) String() string {
	if s == Batched {
		return "batched"
	}
	return "pool"
}

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "", "pool":
		return Pool, nil
	case "batched":
		return Batched, nil
	}
	return Pool, fmt.Errorf("unknown pipeline strategy %q", s)
}

type Config struct {
	Name          string
	Workers       int
	MaxAttempts   int
	Strategy      Strategy
	ProgressEvery int
}

type Pipeline[T Item] struct {
	config Config
	creds  Credentials
}

// New returns a pipeline. creds may be nil for work that needs no
// credential.
func New[T Item](cfg Config, creds Credentials) *Pipeline[T] {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Name == "" {
		cfg.Name = "pipeline"
	}
	return &Pipeline[T]{config: cfg, creds: creds}
}

// run is the state of one Run call.
type run[T Item] struct {
	*Pipeline[T]
	handle Handler[T]
	ledger *Ledger

	mu    sync.Mutex
	fatal error
}

// Run processes items and blocks until every dispatched item has finished.
// Item failures land in the ledger; only a fatal error or cancellation of
// ctx is returned. Cancellation stops dispatch but in-flight handlers run
// to completion.
func (p *Pipeline[T]) Run(ctx context.Context, items []T, handle Handler[T]) (*Ledger, error) {
	r := &run[T]{Pipeline: p, handle: handle, ledger: &Ledger{}}
	r.ledger.Total.Store(int64(len(items)))

	slog.InfoContext(ctx, "pipeline started", "pipeline", p.config.Name, "items", len(items),
		"workers", p.config.Workers, "strategy", p.config.Strategy)

	switch p.config.Strategy {
	case Batched:
		r.batched(ctx, items)
	default:
		r.pool(ctx, items)
	}

	slog.InfoContext(ctx, "pipeline finished", "pipeline", p.config.Name,
		"processed", r.ledger.Processed.Load(), "failed", r.ledger.Failed.Load(), "skipped", r.ledger.Skipped())

	if err := r.fatalErr(); err != nil {
		return r.ledger, err
	}
	return r.ledger, ctx.Err()
}

func (r *run[T]) pool(ctx context.Context, items []T) {
	sem := semaphore.NewWeighted(int64(r.config.Workers))
	work := context.WithoutCancel(ctx)
	var wg sync.WaitGroup

	for _, item := range items {
		if r.stopped(ctx) {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		// A fatal error may have landed while we waited for a slot.
		if r.stopped(ctx) {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(item T) {
			defer sem.Release(1)
			defer wg.Done()
			r.process(work, item)
		}(item)
	}
	wg.Wait()
}

func (r *run[T]) batched(ctx context.Context, items []T) {
	work := context.WithoutCancel(ctx)

	for start := 0; start < len(items); start += r.config.Workers {
		if r.stopped(ctx) {
			return
		}
		end := min(start+r.config.Workers, len(items))

		var wg sync.WaitGroup
		for _, item := range items[start:end] {
			wg.Add(1)
			go func(item T) {
				defer wg.Done()
				r.process(work, item)
			}(item)
		}
		wg.Wait()
	}
}

func (r *run[T]) process(ctx context.Context, item T) {
	var done int64
	err := Attempt(ctx, r.creds, r.config.MaxAttempts, item, r.handle)
	if err == nil {
		done = r.ledger.succeed()
	} else {
		slog.ErrorContext(ctx, "item failed", "pipeline", r.config.Name, "item", item.ItemKey(), "kind", fault.KindOf(err), "err", err)
		done = r.ledger.fail(item.ItemKey(), err)
		if fault.KindOf(err) == fault.KindFatal {
			r.abort(err)
		}
	}

	if every := int64(r.config.ProgressEvery); every > 0 && done%every == 0 {
		slog.InfoContext(ctx, "progress", "pipeline", r.config.Name, "done", done, "total", r.ledger.Total.Load(),
			"processed", r.ledger.Processed.Load(), "failed", r.ledger.Failed.Load())
	}
}

func (r *run[T]) abort(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fatal == nil {
		r.fatal = err
	}
}

func (r *run[T]) fatalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

func (r *run[T]) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || r.fatalErr() != nil
}
