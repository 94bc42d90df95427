package workflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_RetriesTransientErrors(t *testing.T) {
	r := NewImmediateRunner(3)
	calls := 0
	got, err := Do(context.Background(), r, "test", "flaky", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("temporary")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	r := NewImmediateRunner(5)
	sentinel := errors.New("order not found")
	calls := 0
	_, err := Do(context.Background(), r, "test", "lookup", func(context.Context) (string, error) {
		calls++
		return "", Permanent(sentinel)
	})
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel to be preserved, got %v", err)
	}
}

func TestDo_ExhaustedAttemptsStayTransient(t *testing.T) {
	r := NewImmediateRunner(2)
	sentinel := errors.New("database unavailable")
	calls := 0
	err := Exec(context.Background(), r, "test", "write", func(context.Context) error {
		calls++
		return sentinel
	})
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if err == nil || IsPermanent(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
}

func TestDo_AppliesStepTimeout(t *testing.T) {
	r := NewRunner(RunnerConfig{MaxAttempts: 1, StepTimeout: 10 * time.Millisecond})
	err := Exec(context.Background(), r, "test", "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if IsPermanent(err) {
		t.Fatal("timeouts must be transient")
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	if IsPermanent(errors.New("x")) {
		t.Fatal("plain errors are not permanent")
	}
}
