package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
)

var errDuplicate = errors.New("document already exists")

// batch builds n attempts; the attempt at failAt (if >= 0) fails with
// errDuplicate. started counts how many attempts ran.
func batch(n, failAt int, started *atomic.Int32) []*Attempt[string] {
	attempts := make([]*Attempt[string], n)
	for i := range n {
		attempts[i] = NewAttempt[string](i, fmt.Sprintf("doc-%d", i+1), NoRetry).Ready(
			func(context.Context, int) (string, error) {
				started.Add(1)
				if i == failAt {
					return "", errDuplicate
				}
				return fmt.Sprintf("doc-%d", i+1), nil
			})
	}
	return attempts
}

func TestRunOrderedStopsAtFirstFailure(t *testing.T) {
	var started atomic.Int32
	o := New(Config{})
	res := RunOrdered(context.Background(), o, batch(3, 1, &started))

	if len(res.Attempts) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(res.Attempts))
	}
	if !res.Stopped {
		t.Error("Stopped = false, want true")
	}
	if res.Attempts[0].Status() != Completed || res.Attempts[0].Result() != "doc-1" {
		t.Errorf("doc #1: %s %q", res.Attempts[0].Status(), res.Attempts[0].Result())
	}
	if res.Attempts[1].Status() != Errored || !errors.Is(res.Attempts[1].Err(), errDuplicate) {
		t.Errorf("doc #2: %s %v", res.Attempts[1].Status(), res.Attempts[1].Err())
	}
	if got := started.Load(); got != 2 {
		t.Errorf("%d attempts started, want 2 (doc #3 must never run)", got)
	}
	if !errors.Is(res.FirstErr(), errDuplicate) {
		t.Errorf("FirstErr = %v", res.FirstErr())
	}
}

func TestRunOrderedAllSucceed(t *testing.T) {
	var started atomic.Int32
	res := RunOrdered(context.Background(), New(Config{}), batch(3, -1, &started))
	if len(res.Attempts) != 3 || res.Stopped || res.FirstErr() != nil {
		t.Fatalf("got %d outcomes, stopped=%v, err=%v", len(res.Attempts), res.Stopped, res.FirstErr())
	}
}

func TestRunOrderedLastFails(t *testing.T) {
	var started atomic.Int32
	res := RunOrdered(context.Background(), New(Config{}), batch(3, 2, &started))
	if len(res.Attempts) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(res.Attempts))
	}
	if res.Stopped {
		t.Error("Stopped = true, but nothing was skipped")
	}
}

func TestRunOrderedSequential(t *testing.T) {
	var running, overlap atomic.Int32
	attempts := make([]*Attempt[int], 5)
	for i := range attempts {
		attempts[i] = NewAttempt[int](i, "seq", NoRetry).Ready(func(context.Context, int) (int, error) {
			if running.Add(1) > 1 {
				overlap.Add(1)
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			return i, nil
		})
	}
	res := RunOrdered(context.Background(), New(Config{}), attempts)
	if overlap.Load() != 0 {
		t.Error("ordered attempts overlapped")
	}
	for i, a := range res.Attempts {
		if a.Result() != i {
			t.Errorf("attempt %d result = %d", i, a.Result())
		}
	}
}

func TestRunOrderedCancelled(t *testing.T) {
	var started atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := RunOrdered(ctx, New(Config{}), batch(3, -1, &started))
	if len(res.Attempts) != 0 || !res.Stopped {
		t.Fatalf("got %d outcomes, stopped=%v", len(res.Attempts), res.Stopped)
	}
	if started.Load() != 0 {
		t.Errorf("%d attempts started after cancel", started.Load())
	}
}

func TestRunOrderedPreFailedAttemptStops(t *testing.T) {
	var started atomic.Int32
	attempts := batch(3, -1, &started)
	attempts[0] = NewAttempt[string](0, "unshreddable", NoRetry)
	attempts[0].Fail(errors.New("cannot encode"))

	res := RunOrdered(context.Background(), New(Config{}), attempts)
	if len(res.Attempts) != 1 || !res.Stopped || started.Load() != 0 {
		t.Errorf("outcomes=%d stopped=%v started=%d", len(res.Attempts), res.Stopped, started.Load())
	}
}

func TestRunUnorderedReportsEveryAttempt(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  func(t *testing.T) Config
	}{
		{"errgroup", func(*testing.T) Config { return Config{Concurrency: 2} }},
		{"unbounded", func(*testing.T) Config { return Config{} }},
		{"pool", func(t *testing.T) Config {
			pool, err := ants.NewPool(2)
			if err != nil {
				t.Fatalf("NewPool: %v", err)
			}
			t.Cleanup(pool.Release)
			return Config{Pool: pool}
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var started atomic.Int32
			res := RunUnordered(context.Background(), New(tc.cfg(t)), batch(3, 1, &started))

			if len(res.Attempts) != 3 {
				t.Fatalf("got %d outcomes, want 3", len(res.Attempts))
			}
			if res.Stopped {
				t.Error("unordered batch reported Stopped")
			}
			for i, a := range res.Attempts {
				if a.Position() != i {
					t.Errorf("outcome %d has position %d", i, a.Position())
				}
			}
			if res.Attempts[0].Status() != Completed || res.Attempts[2].Status() != Completed {
				t.Errorf("docs #1 and #3: %s, %s", res.Attempts[0].Status(), res.Attempts[2].Status())
			}
			if res.Attempts[1].Status() != Errored {
				t.Errorf("doc #2: %s, want ERROR", res.Attempts[1].Status())
			}
			if got := len(res.Failed()); got != 1 {
				t.Errorf("Failed() = %d, want 1", got)
			}
			if started.Load() != 3 {
				t.Errorf("%d attempts started, want 3", started.Load())
			}
		})
	}
}

func TestRunUnorderedRespectsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	attempts := make([]*Attempt[int], 10)
	for i := range attempts {
		attempts[i] = NewAttempt[int](i, "c", NoRetry).Ready(func(context.Context, int) (int, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return i, nil
		})
	}
	RunUnordered(context.Background(), New(Config{Concurrency: 3}), attempts)
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestRunUnorderedUnpreparedAttempt(t *testing.T) {
	attempts := []*Attempt[int]{NewAttempt[int](0, "never-ready", NoRetry)}
	res := RunUnordered(context.Background(), New(Config{}), attempts)
	if !errors.Is(res.Attempts[0].Err(), ErrNotReady) {
		t.Errorf("err = %v, want %v", res.Attempts[0].Err(), ErrNotReady)
	}
}

func TestResultWarnings(t *testing.T) {
	a := NewAttempt[int](0, "w", NoRetry)
	a.Ready(func(context.Context, int) (int, error) {
		a.Warn("W1", "first")
		return 0, nil
	})
	b := NewAttempt[int](1, "w", NoRetry)
	b.Ready(func(context.Context, int) (int, error) {
		b.Warn("W2", "second")
		return 0, nil
	})
	res := RunOrdered(context.Background(), New(Config{}), []*Attempt[int]{a, b})
	w := res.Warnings()
	if len(w) != 2 || w[0].Code != "W1" || w[1].Code != "W2" {
		t.Errorf("warnings = %+v", w)
	}
}
