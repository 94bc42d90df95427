// Package sweeper holds the time-driven jobs: releasing seats whose pack or
// grace period has lapsed, warning students before grace ends, and deleting
// calendar events left behind by failed booking compensations.
//
// Every job works on sets and relies on idempotent transitions, so two
// overlapping runs are harmless.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/mentorpack/internal/calendar"
	"github.com/foxseedlab/mentorpack/internal/metrics"
	"github.com/foxseedlab/mentorpack/internal/notify"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/foxseedlab/mentorpack/internal/workflow"
)

const (
	sweepWorkflow     = "sweep_expirations"
	warningWorkflow   = "grace_warning"
	reconcileWorkflow = "reconcile_orphaned_events"

	DefaultGraceWarningWindow = 12 * time.Hour
	defaultOrphanBatchSize    = 100
)

type Options struct {
	GraceWarningWindow time.Duration
	OrphanBatchSize    int
	Now                func() time.Time
}

type Sweeper struct {
	repo          repository.Repository
	calendar      calendar.Service
	sink          notify.Sink
	runner        *workflow.Runner
	warningWindow time.Duration
	orphanBatch   int
	now           func() time.Time
}

func New(repo repository.Repository, cal calendar.Service, sink notify.Sink, runner *workflow.Runner, opts Options) *Sweeper {
	s := &Sweeper{
		repo:          repo,
		calendar:      cal,
		sink:          sink,
		runner:        runner,
		warningWindow: DefaultGraceWarningWindow,
		orphanBatch:   defaultOrphanBatchSize,
		now:           time.Now,
	}
	if opts.GraceWarningWindow > 0 {
		s.warningWindow = opts.GraceWarningWindow
	}
	if opts.OrphanBatchSize > 0 {
		s.orphanBatch = opts.OrphanBatchSize
	}
	if opts.Now != nil {
		s.now = opts.Now
	}
	return s
}

type SweepReport struct {
	PacksExpired       int64 `json:"packsExpired"`
	SeatsReleased      int   `json:"seatsReleased"`
	SeatsHeld          int   `json:"seatsHeld"`
	GraceSeatsReleased int   `json:"graceSeatsReleased"`
}

// SweepExpirations expires lapsed packs, releases the seats of lapsed packs
// that have no scheduled session left, then releases seats whose grace period
// has ended. A failure on one seat is logged and the sweep moves on; the
// joined item errors are returned with the partial report.
func (s *Sweeper) SweepExpirations(ctx context.Context) (*SweepReport, error) {
	now := s.now()
	report := &SweepReport{}

	expired, err := workflow.Do(ctx, s.runner, sweepWorkflow, "expire_packs", func(ctx context.Context) (int64, error) {
		return s.repo.ExpireLapsedPacks(ctx, now)
	})
	if err != nil {
		return report, err
	}
	report.PacksExpired = expired
	metrics.PacksExpired.Add(float64(expired))

	packs, err := workflow.Do(ctx, s.runner, sweepWorkflow, "list_lapsed_packs", func(ctx context.Context) ([]repository.SessionPack, error) {
		return s.repo.ListLapsedPacksHoldingSeats(ctx, now)
	})
	if err != nil {
		return report, err
	}

	var errs []error
	for _, pack := range packs {
		released, held, err := s.releaseLapsedPack(ctx, pack, now)
		switch {
		case err != nil:
			errs = append(errs, err)
			slog.Error("failed to release seat of lapsed pack", "pack_id", pack.ID, "error", err)
		case held:
			report.SeatsHeld++
			slog.Info("keeping seat of lapsed pack with scheduled sessions", "pack_id", pack.ID)
		case released:
			report.SeatsReleased++
			metrics.SeatsReleased.WithLabelValues("pack_lapsed").Inc()
		}
	}

	seats, err := workflow.Do(ctx, s.runner, sweepWorkflow, "list_expired_grace", func(ctx context.Context) ([]repository.SeatReservation, error) {
		return s.repo.ListExpiredGraceSeats(ctx, now)
	})
	if err != nil {
		return report, errors.Join(append(errs, err)...)
	}
	for _, seat := range seats {
		released, err := workflow.Do(ctx, s.runner, sweepWorkflow, "release_grace_seat", func(ctx context.Context) (bool, error) {
			return s.repo.ReleaseSeat(ctx, seat.ID, now)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("seat %s: %w", seat.ID, err))
			slog.Error("failed to release seat after grace", "seat_id", seat.ID, "error", err)
			continue
		}
		if released {
			report.GraceSeatsReleased++
			metrics.SeatsReleased.WithLabelValues("grace_ended").Inc()
		}
	}

	slog.Info("expiration sweep finished",
		"packs_expired", report.PacksExpired,
		"seats_released", report.SeatsReleased,
		"seats_held", report.SeatsHeld,
		"grace_seats_released", report.GraceSeatsReleased)
	return report, errors.Join(errs...)
}

func (s *Sweeper) releaseLapsedPack(ctx context.Context, pack repository.SessionPack, now time.Time) (released, held bool, err error) {
	pending, err := workflow.Do(ctx, s.runner, sweepWorkflow, "check_scheduled", func(ctx context.Context) (bool, error) {
		return s.repo.HasScheduledSessions(ctx, pack.ID)
	})
	if err != nil {
		return false, false, fmt.Errorf("pack %s: %w", pack.ID, err)
	}
	if pending {
		return false, true, nil
	}
	released, err = workflow.Do(ctx, s.runner, sweepWorkflow, "release_pack_seat", func(ctx context.Context) (bool, error) {
		seat, err := s.repo.GetSeatByPackID(ctx, pack.ID)
		if err != nil || seat == nil {
			return false, err
		}
		return s.repo.ReleaseSeat(ctx, seat.ID, now)
	})
	if err != nil {
		return false, false, fmt.Errorf("pack %s: %w", pack.ID, err)
	}
	return released, false, nil
}

// WarnGraceEnding emits a final warning for every seat whose grace period
// ends within the warning window. Seats are not marked as warned; repeated
// runs within the same hour share a dedupe key.
func (s *Sweeper) WarnGraceEnding(ctx context.Context) (int, error) {
	now := s.now()
	seats, err := workflow.Do(ctx, s.runner, warningWorkflow, "list_grace_ending", func(ctx context.Context) ([]repository.SeatReservation, error) {
		return s.repo.ListGraceSeatsEndingBetween(ctx, now, now.Add(s.warningWindow))
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, seat := range seats {
		fact := notify.Fact{
			Type:       notify.FactFinalGraceWarning,
			DedupeKey:  notify.GraceWarningDedupeKey(seat.ID, now),
			UserID:     seat.UserID,
			OccurredAt: now,
			Payload: map[string]any{
				"seatId":            seat.ID,
				"sessionPackId":     seat.SessionPackID,
				"mentorId":          seat.MentorID,
				"gracePeriodEndsAt": seat.GracePeriodEndsAt.UTC(),
			},
		}
		err := workflow.Exec(ctx, s.runner, warningWorkflow, "emit_final_grace_warning", func(ctx context.Context) error {
			return s.sink.Send(ctx, fact)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("seat %s: %w", seat.ID, err))
			continue
		}
		sent++
	}
	if sent > 0 {
		slog.Info("final grace warnings sent", "count", sent)
	}
	return sent, errors.Join(errs...)
}

type ReconcileReport struct {
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// ReconcileOrphanedEvents retries the delete of calendar events whose
// booking compensation failed. An event that is already gone counts as
// resolved.
func (s *Sweeper) ReconcileOrphanedEvents(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	orphans, err := workflow.Do(ctx, s.runner, reconcileWorkflow, "list_orphans", func(ctx context.Context) ([]repository.OrphanedCalendarEvent, error) {
		return s.repo.ListUnresolvedOrphanedEvents(ctx, s.orphanBatch)
	})
	if err != nil {
		return report, err
	}

	var errs []error
	for _, o := range orphans {
		log := slog.With("orphan_id", o.ID, "calendar_id", o.CalendarID, "event_id", o.EventID)
		delErr := s.calendar.DeleteEvent(ctx, o.CalendarID, o.EventID)
		if delErr != nil && !errors.Is(delErr, calendar.ErrEventNotFound) {
			report.Failed++
			log.Warn("orphaned calendar event still not deleted", "attempts", o.Attempts+1, "error", delErr)
			if err := s.repo.RecordOrphanedEventAttempt(ctx, o.ID, delErr.Error()); err != nil {
				errs = append(errs, fmt.Errorf("record attempt on %s: %w", o.ID, err))
			}
			continue
		}
		if err := s.repo.MarkOrphanedEventResolved(ctx, o.ID, s.now()); err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", o.ID, err))
			continue
		}
		report.Resolved++
		log.Info("orphaned calendar event removed")
	}
	return report, errors.Join(errs...)
}
