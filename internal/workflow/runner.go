// Package workflow runs named steps with at-least-once semantics.
//
// A step is retried on any error not marked Permanent until the attempt
// budget runs out. Steps must therefore be idempotent. Each attempt gets its
// own timeout; a timed-out attempt counts as transient.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/foxseedlab/mentorpack/internal/metrics"
)

const (
	defaultMaxAttempts     = 5
	defaultStepTimeout     = 30 * time.Second
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second
)

type RunnerConfig struct {
	MaxAttempts     int
	StepTimeout     time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Runner struct {
	maxAttempts     uint
	stepTimeout     time.Duration
	initialInterval time.Duration
	maxInterval     time.Duration
}

func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		maxAttempts:     defaultMaxAttempts,
		stepTimeout:     defaultStepTimeout,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
	if cfg.MaxAttempts > 0 {
		r.maxAttempts = uint(cfg.MaxAttempts)
	}
	if cfg.StepTimeout > 0 {
		r.stepTimeout = cfg.StepTimeout
	}
	if cfg.InitialInterval > 0 {
		r.initialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		r.maxInterval = cfg.MaxInterval
	}
	return r
}

// NewImmediateRunner retries without waiting between attempts.
func NewImmediateRunner(maxAttempts int) *Runner {
	r := NewRunner(RunnerConfig{MaxAttempts: maxAttempts})
	r.initialInterval = 0
	r.maxInterval = 0
	return r
}

func (r *Runner) newBackOff() backoff.BackOff {
	if r.initialInterval <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	if r.maxInterval > 0 {
		b.MaxInterval = r.maxInterval
	}
	return b
}

// Do runs fn as the named step of workflowName. A permanent error stops the
// retries and is returned as is. Exhausting the attempts returns the last
// transient error, still unmarked.
func Do[T any](ctx context.Context, r *Runner, workflowName, step string, fn func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	attempt := 0
	op := func() (T, error) {
		attempt++
		stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
		v, err := fn(stepCtx)
		if err == nil {
			return v, nil
		}
		if IsPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		metrics.WorkflowStepRetries.WithLabelValues(workflowName, step).Inc()
		slog.Warn("workflow step failed, retrying",
			"workflow", workflowName, "step", step, "attempt", attempt, "wait", wait, "error", err)
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	metrics.WorkflowStepDuration.WithLabelValues(workflowName, step).Observe(time.Since(started).Seconds())
	// Retry hands back the wrapper untouched when the last attempt was permanent.
	var wrapped *backoff.PermanentError
	if errors.As(err, &wrapped) {
		err = wrapped.Unwrap()
	}
	if err != nil {
		outcome := "transient"
		if IsPermanent(err) {
			outcome = "permanent"
		}
		metrics.WorkflowSteps.WithLabelValues(workflowName, step, outcome).Inc()
		slog.Error("workflow step failed",
			"workflow", workflowName, "step", step, "attempts", attempt, "outcome", outcome, "error", err)
		var zero T
		if IsPermanent(err) {
			return zero, err
		}
		return zero, fmt.Errorf("%s/%s failed after %d attempts: %w", workflowName, step, attempt, err)
	}
	metrics.WorkflowSteps.WithLabelValues(workflowName, step, "ok").Inc()
	return v, nil
}

// Exec is Do for steps without a result.
func Exec(ctx context.Context, r *Runner, workflowName, step string, fn func(context.Context) error) error {
	_, err := Do(ctx, r, workflowName, step, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
