package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foxseedlab/mentorpack/internal/calendar"
	"github.com/foxseedlab/mentorpack/internal/calendar/calendartest"
	"github.com/foxseedlab/mentorpack/internal/notify"
	"github.com/foxseedlab/mentorpack/internal/notify/notifytest"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/foxseedlab/mentorpack/internal/repository/repotest"
	"github.com/foxseedlab/mentorpack/internal/workflow"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	store   *repotest.Store
	cal     *calendartest.Fake
	sink    *notifytest.Recorder
	sweeper *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repotest.New(),
		cal:   calendartest.New(),
		sink:  &notifytest.Recorder{},
	}
	f.sweeper = New(f.store, f.cal, f.sink, workflow.NewImmediateRunner(2), Options{
		Now: func() time.Time { return testNow },
	})
	return f
}

func (f *fixture) putPackWithSeat(packID string, status repository.PackStatus, expiresAt time.Time) {
	f.store.PutPack(repository.SessionPack{
		ID:            packID,
		UserID:        "user-" + packID,
		MentorID:      "mentor-1",
		PaymentID:     "pay-" + packID,
		TotalSessions: 4,
		Status:        status,
		ExpiresAt:     expiresAt,
	})
	f.store.PutSeat(repository.SeatReservation{
		ID:            "seat-" + packID,
		MentorID:      "mentor-1",
		UserID:        "user-" + packID,
		SessionPackID: packID,
		Status:        repository.SeatStatusActive,
		SeatExpiresAt: expiresAt,
	})
}

func seatStatus(t *testing.T, store *repotest.Store, packID string) repository.SeatStatus {
	t.Helper()
	seat, err := store.GetSeatByPackID(context.Background(), packID)
	if err != nil || seat == nil {
		t.Fatalf("seat for %s: %v", packID, err)
	}
	return seat.Status
}

func TestSweepExpirations_HoldsSeatWhileSessionScheduled(t *testing.T) {
	f := newFixture(t)
	f.putPackWithSeat("pack-1", repository.PackStatusActive, testNow.Add(-time.Hour))
	f.store.PutSession(repository.Session{
		ID:            "session-1",
		MentorID:      "mentor-1",
		StudentID:     "user-pack-1",
		SessionPackID: "pack-1",
		ScheduledAt:   testNow.Add(2 * time.Hour),
		Status:        repository.SessionStatusScheduled,
	})

	report, err := f.sweeper.SweepExpirations(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.PacksExpired != 1 || report.SeatsHeld != 1 || report.SeatsReleased != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := seatStatus(t, f.store, "pack-1"); got != repository.SeatStatusActive {
		t.Fatalf("expected seat kept active, got %s", got)
	}

	f.store.SetSessionStatus("session-1", repository.SessionStatusCompleted)

	report, err = f.sweeper.SweepExpirations(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SeatsReleased != 1 {
		t.Fatalf("expected the seat to be released, got %+v", report)
	}
	if got := seatStatus(t, f.store, "pack-1"); got != repository.SeatStatusReleased {
		t.Fatalf("expected seat released, got %s", got)
	}
}

func TestSweepExpirations_ReleasesLapsedAndGraceSeats(t *testing.T) {
	f := newFixture(t)
	f.putPackWithSeat("expired", repository.PackStatusExpired, testNow.Add(-48*time.Hour))
	f.putPackWithSeat("depleted", repository.PackStatusDepleted, testNow.Add(-time.Minute))
	f.putPackWithSeat("future", repository.PackStatusActive, testNow.Add(30*24*time.Hour))
	f.putPackWithSeat("refunded", repository.PackStatusRefunded, testNow.Add(-time.Hour))

	f.store.PutPack(repository.SessionPack{ID: "grace", MentorID: "mentor-1", PaymentID: "pay-grace", Status: repository.PackStatusDepleted, ExpiresAt: testNow.Add(60 * 24 * time.Hour)})
	f.store.PutSeat(repository.SeatReservation{
		ID:                "seat-grace",
		MentorID:          "mentor-1",
		SessionPackID:     "grace",
		Status:            repository.SeatStatusGrace,
		GracePeriodEndsAt: ptr(testNow.Add(-time.Hour)),
	})

	report, err := f.sweeper.SweepExpirations(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SeatsReleased != 2 || report.GraceSeatsReleased != 1 || report.PacksExpired != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	for packID, want := range map[string]repository.SeatStatus{
		"expired":  repository.SeatStatusReleased,
		"depleted": repository.SeatStatusReleased,
		"future":   repository.SeatStatusActive,
		"refunded": repository.SeatStatusActive,
		"grace":    repository.SeatStatusReleased,
	} {
		if got := seatStatus(t, f.store, packID); got != want {
			t.Errorf("%s: expected %s, got %s", packID, want, got)
		}
	}

	again, err := f.sweeper.SweepExpirations(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.SeatsReleased != 0 || again.GraceSeatsReleased != 0 {
		t.Fatalf("expected a second sweep to be a no-op, got %+v", again)
	}
}

func TestWarnGraceEnding(t *testing.T) {
	f := newFixture(t)
	for id, endsAt := range map[string]time.Time{
		"soon":    testNow.Add(6 * time.Hour),
		"edge":    testNow.Add(12 * time.Hour),
		"later":   testNow.Add(13 * time.Hour),
		"overdue": testNow.Add(-time.Hour),
	} {
		f.store.PutSeat(repository.SeatReservation{
			ID:                "seat-" + id,
			MentorID:          "mentor-1",
			UserID:            "user-" + id,
			SessionPackID:     "pack-" + id,
			Status:            repository.SeatStatusGrace,
			GracePeriodEndsAt: ptr(endsAt),
		})
	}

	sent, err := f.sweeper.WarnGraceEnding(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 warnings, got %d", sent)
	}
	facts := f.sink.OfType(notify.FactFinalGraceWarning)
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(facts))
	}
	if facts[0].UserID != "user-soon" || facts[0].DedupeKey != notify.GraceWarningDedupeKey("seat-soon", testNow) {
		t.Fatalf("unexpected first warning: %+v", facts[0])
	}

	if _, err := f.sweeper.WarnGraceEnding(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	facts = f.sink.OfType(notify.FactFinalGraceWarning)
	if facts[0].DedupeKey != facts[2].DedupeKey {
		t.Fatal("expected repeated warnings in the same hour to share a dedupe key")
	}
}

func TestReconcileOrphanedEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cal.PutEvent("evt-live", calendar.EventInput{Summary: "orphan"})
	for _, in := range []repository.RecordOrphanedEventInput{
		{CalendarID: "cal-1", EventID: "evt-live", Reason: "insert failed"},
		{CalendarID: "cal-1", EventID: "evt-gone", Reason: "insert failed"},
	} {
		if err := f.store.RecordOrphanedEvent(ctx, in); err != nil {
			t.Fatalf("record orphan: %v", err)
		}
	}

	report, err := f.sweeper.ReconcileOrphanedEvents(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Resolved != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, ok := f.cal.Events()["evt-live"]; ok {
		t.Fatal("expected the live orphan to be deleted")
	}
	pending, _ := f.store.ListUnresolvedOrphanedEvents(ctx, 0)
	if len(pending) != 0 {
		t.Fatalf("expected no unresolved orphans, got %d", len(pending))
	}
}

func TestReconcileOrphanedEvents_RecordsFailedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cal.DeleteErr = errors.New("calendar unavailable")
	if err := f.store.RecordOrphanedEvent(ctx, repository.RecordOrphanedEventInput{CalendarID: "cal-1", EventID: "evt-1"}); err != nil {
		t.Fatalf("record orphan: %v", err)
	}

	report, err := f.sweeper.ReconcileOrphanedEvents(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	pending, _ := f.store.ListUnresolvedOrphanedEvents(ctx, 0)
	if len(pending) != 1 || pending[0].Attempts != 1 || pending[0].LastError != "calendar unavailable" {
		t.Fatalf("unexpected orphan state: %+v", pending)
	}
}

func TestScheduler_RunsJobsAtStartUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	s := NewScheduler(Job{
		Name:     "count",
		Interval: time.Hour,
		Run: func(context.Context) error {
			if runs.Add(1) == 1 {
				cancel()
			}
			return errors.New("failures do not stop the scheduler")
		},
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if runs.Load() != 1 {
		t.Fatalf("expected one run at start, got %d", runs.Load())
	}
}
