package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/foxseedlab/mentorpack/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const DefaultInterval = time.Hour

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs []Job
}

func NewScheduler(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Jobs returns the sweeper's periodic jobs, all on the same interval.
func (s *Sweeper) Jobs(interval time.Duration) []Job {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return []Job{
		{Name: sweepWorkflow, Interval: interval, Run: func(ctx context.Context) error {
			_, err := s.SweepExpirations(ctx)
			return err
		}},
		{Name: warningWorkflow, Interval: interval, Run: func(ctx context.Context) error {
			_, err := s.WarnGraceEnding(ctx)
			return err
		}},
		{Name: reconcileWorkflow, Interval: interval, Run: func(ctx context.Context) error {
			_, err := s.ReconcileOrphanedEvents(ctx)
			return err
		}},
	}
}

// Run starts every job once and then on its interval until ctx is done. A
// failed run is logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			runJob(ctx, job)
			return nil
		})
	}
	return g.Wait()
}

func runJob(ctx context.Context, job Job) {
	interval := job.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runOnce(ctx, job)
		select {
		case <-ctx.Done():
			slog.Info("scheduled job stopped", "job", job.Name)
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, job Job) {
	started := time.Now()
	if err := job.Run(ctx); err != nil {
		metrics.SweepRuns.WithLabelValues(job.Name, "error").Inc()
		slog.Error("scheduled job failed", "job", job.Name, "duration", time.Since(started), "error", err)
		return
	}
	metrics.SweepRuns.WithLabelValues(job.Name, "ok").Inc()
	slog.Debug("scheduled job finished", "job", job.Name, "duration", time.Since(started))
}
