package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"docquery/internal/logging"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"
)

// Config configures an Orchestrator.
type Config struct {
	// Concurrency bounds unordered fan-out when no Pool is set.
	// Zero or negative means unbounded.
	Concurrency int

	// Pool, if set, runs unordered attempts on a shared worker pool
	// instead of per-call goroutines. The orchestrator does not own it.
	Pool *ants.Pool

	Logger *slog.Logger
}

// Orchestrator runs batches of attempts.
type Orchestrator struct {
	concurrency int
	pool        *ants.Pool
	logger      *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		concurrency: cfg.Concurrency,
		pool:        cfg.Pool,
		logger:      logging.Default(cfg.Logger).With("component", "task"),
	}
}

// Result is the outcome of a batch. Attempts is in input order. In ordered
// mode it holds only the attempts that were run; Stopped is true when a
// failure or cancellation kept later attempts from starting.
type Result[T any] struct {
	Attempts []*Attempt[T]
	Stopped  bool
}

// Failed returns the attempts that ended in Errored.
func (r Result[T]) Failed() []*Attempt[T] {
	var out []*Attempt[T]
	for _, a := range r.Attempts {
		if a.Status() == Errored {
			out = append(out, a)
		}
	}
	return out
}

// FirstErr returns the error of the first failed attempt, or nil.
func (r Result[T]) FirstErr() error {
	for _, a := range r.Attempts {
		if a.Status() == Errored {
			return a.Err()
		}
	}
	return nil
}

// Warnings collects the warnings of every attempt in order.
func (r Result[T]) Warnings() []Warning {
	var out []Warning
	for _, a := range r.Attempts {
		out = append(out, a.Warnings()...)
	}
	return out
}

// RunOrdered runs attempts one after another. Attempt i+1 starts only after
// attempt i is terminal. The first failure stops the batch; attempts after
// it are never started and are absent from the result.
func RunOrdered[T any](ctx context.Context, o *Orchestrator, attempts []*Attempt[T]) Result[T] {
	res := Result[T]{Attempts: make([]*Attempt[T], 0, len(attempts))}
	for i, a := range attempts {
		if err := ctx.Err(); err != nil {
			o.logger.Debug("ordered batch cancelled", "run", i, "remaining", len(attempts)-i, "error", err)
			res.Stopped = true
			return res
		}
		run(ctx, a)
		res.Attempts = append(res.Attempts, a)
		if a.Status() == Errored {
			if i < len(attempts)-1 {
				res.Stopped = true
				o.logger.Debug("ordered batch stopped", "position", a.Position(), "name", a.Name(), "skipped", len(attempts)-i-1, "error", a.Err())
			}
			return res
		}
	}
	return res
}

// RunUnordered runs all attempts concurrently and waits for every one of
// them. The result holds an outcome for every attempt, in input order.
func RunUnordered[T any](ctx context.Context, o *Orchestrator, attempts []*Attempt[T]) Result[T] {
	if o.pool != nil {
		runPooled(ctx, o, attempts)
	} else {
		var g errgroup.Group
		if o.concurrency > 0 {
			g.SetLimit(o.concurrency)
		}
		for _, a := range attempts {
			g.Go(func() error {
				run(ctx, a)
				return nil
			})
		}
		_ = g.Wait()
	}

	if failed := countFailed(attempts); failed > 0 {
		o.logger.Debug("unordered batch finished with failures", "attempts", len(attempts), "failed", failed)
	}
	return Result[T]{Attempts: attempts}
}

func runPooled[T any](ctx context.Context, o *Orchestrator, attempts []*Attempt[T]) {
	var wg sync.WaitGroup
	for _, a := range attempts {
		wg.Add(1)
		if err := o.pool.Submit(func() {
			defer wg.Done()
			run(ctx, a)
		}); err != nil {
			wg.Done()
			a.Fail(fmt.Errorf("submit attempt %d: %w", a.Position(), err))
		}
	}
	wg.Wait()
}

// run executes a Ready attempt. An attempt that was never made Ready fails
// with ErrNotReady; one that already failed is left as is.
func run[T any](ctx context.Context, a *Attempt[T]) {
	switch a.Status() {
	case Ready:
		_ = a.Execute(ctx)
	case Uninitialized:
		a.Fail(fmt.Errorf("%w: attempt %d (%s) was never prepared", ErrNotReady, a.Position(), a.Name()))
	}
}

func countFailed[T any](attempts []*Attempt[T]) int {
	n := 0
	for _, a := range attempts {
		if a.Status() == Errored {
			n++
		}
	}
	return n
}
