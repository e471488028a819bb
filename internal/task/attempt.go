// Package task runs sets of independent attempts (one per statement, or one
// per document to write) with bounded retry, in ordered fail-fast or
// unordered fan-out mode.
//
// An attempt owns all of its mutable state. The orchestrator only reads an
// attempt after it reached a terminal status, so no locking is needed.
package task

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotReady is returned by Execute on an attempt that is not Ready.
var ErrNotReady = errors.New("attempt is not ready")

// Status is an attempt's lifecycle state:
//
//	Uninitialized -> Ready -> Running -> Completed
//	                                  -> Errored
//
// Fail moves an Uninitialized or Ready attempt straight to Errored.
type Status int

const (
	Uninitialized Status = iota
	Ready
	Running
	Completed
	Errored
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Errored:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether s is Completed or Errored.
func (s Status) Terminal() bool {
	return s == Completed || s == Errored
}

// Warning is a non-fatal notice attached to an attempt's outcome.
type Warning struct {
	Code    string
	Message string
}

// Func does the work of one attempt. retry is 0 on the first try and
// counts up on each retry the policy allows.
type Func[T any] func(ctx context.Context, retry int) (T, error)

// Attempt is one unit of work with its own retry policy and outcome.
type Attempt[T any] struct {
	position int
	name     string
	policy   RetryPolicy

	status   Status
	fn       Func[T]
	result   T
	err      error
	retries  int
	warnings []Warning
}

// NewAttempt creates an Uninitialized attempt. position is the index of the
// item the attempt works on and is used to report results in input order.
func NewAttempt[T any](position int, name string, policy RetryPolicy) *Attempt[T] {
	return &Attempt[T]{position: position, name: name, policy: policy}
}

// Ready installs the work function and marks the attempt runnable.
func (a *Attempt[T]) Ready(fn Func[T]) *Attempt[T] {
	if a.status == Uninitialized {
		a.fn = fn
		a.status = Ready
	}
	return a
}

// Fail records err without running the attempt, e.g. when the input could
// not be prepared. It has no effect on a Running or terminal attempt.
func (a *Attempt[T]) Fail(err error) {
	if a.status == Uninitialized || a.status == Ready {
		a.err = err
		a.status = Errored
	}
}

// Execute runs the work function, retrying while the policy allows.
// It returns the attempt's final error.
func (a *Attempt[T]) Execute(ctx context.Context) error {
	if a.status != Ready {
		return fmt.Errorf("%w: attempt %d (%s) is %s", ErrNotReady, a.position, a.name, a.status)
	}
	a.status = Running

	for {
		res, err := a.fn(ctx, a.retries)
		if err == nil {
			a.result = res
			a.status = Completed
			return nil
		}
		if a.retries >= a.policy.MaxRetries || !a.policy.ShouldRetry(err) || ctx.Err() != nil {
			a.err = err
			a.status = Errored
			return err
		}
		a.retries++
		if werr := a.policy.wait(ctx); werr != nil {
			a.err = fmt.Errorf("%w (retry of: %v)", werr, err)
			a.status = Errored
			return a.err
		}
	}
}

// Warn attaches a warning. Only the attempt's own work function may call it
// while the attempt is running.
func (a *Attempt[T]) Warn(code, message string) {
	a.warnings = append(a.warnings, Warning{Code: code, Message: message})
}

func (a *Attempt[T]) Position() int       { return a.position }
func (a *Attempt[T]) Name() string        { return a.name }
func (a *Attempt[T]) Status() Status      { return a.status }
func (a *Attempt[T]) Result() T           { return a.result }
func (a *Attempt[T]) Err() error          { return a.err }
func (a *Attempt[T]) Retries() int        { return a.retries }
func (a *Attempt[T]) Warnings() []Warning { return a.warnings }
