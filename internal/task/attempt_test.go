package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errConflict = errors.New("conflict")

func TestAttemptLifecycle(t *testing.T) {
	a := NewAttempt[int](0, "doc-1", NoRetry)
	if a.Status() != Uninitialized {
		t.Fatalf("status = %s, want UNINITIALIZED", a.Status())
	}
	if err := a.Execute(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Execute before Ready = %v, want %v", err, ErrNotReady)
	}

	a.Ready(func(context.Context, int) (int, error) { return 7, nil })
	if a.Status() != Ready {
		t.Fatalf("status = %s, want READY", a.Status())
	}
	if err := a.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if a.Status() != Completed || a.Result() != 7 {
		t.Fatalf("status = %s result = %d", a.Status(), a.Result())
	}

	if err := a.Execute(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("second Execute = %v, want %v", err, ErrNotReady)
	}
}

func TestAttemptFailure(t *testing.T) {
	a := NewAttempt[int](1, "doc-2", NoRetry).Ready(func(context.Context, int) (int, error) {
		return 0, errConflict
	})
	if err := a.Execute(context.Background()); !errors.Is(err, errConflict) {
		t.Fatalf("Execute = %v, want %v", err, errConflict)
	}
	if a.Status() != Errored || !errors.Is(a.Err(), errConflict) {
		t.Errorf("status = %s err = %v", a.Status(), a.Err())
	}
	if a.Retries() != 0 {
		t.Errorf("retries = %d, want 0", a.Retries())
	}
}

func TestAttemptFailBeforeRun(t *testing.T) {
	a := NewAttempt[int](0, "bad", NoRetry)
	a.Fail(errConflict)
	if a.Status() != Errored || !errors.Is(a.Err(), errConflict) {
		t.Fatalf("status = %s err = %v", a.Status(), a.Err())
	}
	// Ready on a failed attempt does not revive it.
	a.Ready(func(context.Context, int) (int, error) { return 1, nil })
	if a.Status() != Errored {
		t.Errorf("status = %s, want ERROR", a.Status())
	}
}

func TestAttemptRetry(t *testing.T) {
	calls := 0
	a := NewAttempt[string](0, "x", RetryOn(2, 0, errConflict)).Ready(func(_ context.Context, retry int) (string, error) {
		calls++
		if retry < 2 {
			return "", errConflict
		}
		return "ok", nil
	})
	if err := a.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 3 || a.Retries() != 2 || a.Result() != "ok" {
		t.Errorf("calls = %d retries = %d result = %q", calls, a.Retries(), a.Result())
	}
}

func TestAttemptRetryExhausted(t *testing.T) {
	calls := 0
	a := NewAttempt[int](0, "x", RetryOn(1, 0, errConflict)).Ready(func(context.Context, int) (int, error) {
		calls++
		return 0, errConflict
	})
	if err := a.Execute(context.Background()); !errors.Is(err, errConflict) {
		t.Fatalf("Execute = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestAttemptNoRetryForOtherErrors(t *testing.T) {
	other := errors.New("other")
	calls := 0
	a := NewAttempt[int](0, "x", RetryOn(3, 0, errConflict)).Ready(func(context.Context, int) (int, error) {
		calls++
		return 0, other
	})
	_ = a.Execute(context.Background())
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestAttemptRetryDelayHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := NewAttempt[int](0, "x", RetryOn(5, time.Hour, errConflict)).Ready(func(context.Context, int) (int, error) {
		cancel()
		return 0, errConflict
	})

	done := make(chan error, 1)
	go func() { done <- a.Execute(ctx) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Execute succeeded after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancel")
	}
	if a.Status() != Errored {
		t.Errorf("status = %s, want ERROR", a.Status())
	}
}

func TestAttemptWarnings(t *testing.T) {
	a := NewAttempt[int](0, "x", NoRetry)
	a.Ready(func(context.Context, int) (int, error) {
		a.Warn("SOMETHING", "happened")
		return 1, nil
	})
	_ = a.Execute(context.Background())
	w := a.Warnings()
	if len(w) != 1 || w[0].Code != "SOMETHING" || w[0].Message != "happened" {
		t.Errorf("warnings = %+v", w)
	}
}

func TestShouldRetryIgnoresContextErrors(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Retryable: func(error) bool { return true }}
	if p.ShouldRetry(context.Canceled) || p.ShouldRetry(context.DeadlineExceeded) {
		t.Error("context errors must not be retried")
	}
	if !p.ShouldRetry(errConflict) {
		t.Error("policy should retry errConflict")
	}
	if NoRetry.ShouldRetry(errConflict) {
		t.Error("NoRetry retried")
	}
}
