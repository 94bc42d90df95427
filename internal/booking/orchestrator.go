package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/mentorpack/internal/calendar"
	"github.com/foxseedlab/mentorpack/internal/metrics"
	"github.com/foxseedlab/mentorpack/internal/repository"
)

const (
	compensationTimeout = 10 * time.Second

	EventMetadataPackID    = "sessionPackId"
	EventMetadataStudentID = "studentId"
)

type BookRequest struct {
	UserID      string
	PackID      string
	ScheduledAt time.Time
}

// BookResult carries the scheduled session. Created is false when an
// identical booking already existed and was returned instead.
type BookResult struct {
	Session *repository.Session
	Created bool
}

type Capacity struct {
	MentorID          string `json:"mentorId"`
	MaxActiveStudents int    `json:"maxActiveStudents"`
	ActiveSeats       int    `json:"activeSeats"`
	Available         int    `json:"available"`
}

type Orchestrator struct {
	repo            repository.Repository
	calendar        calendar.Service
	validator       *Validator
	sessionDuration time.Duration
	now             func() time.Time
}

func NewOrchestrator(repo repository.Repository, cal calendar.Service, sessionDuration time.Duration) *Orchestrator {
	o := &Orchestrator{
		repo:            repo,
		calendar:        cal,
		sessionDuration: sessionDuration,
		now:             time.Now,
	}
	o.validator = &Validator{store: repo, now: func() time.Time { return o.now() }}
	return o
}

// Book schedules one session against a pack. The calendar event is created
// before the session row so that a failed insert leaves a deletable event
// rather than a session with no calendar record.
func (o *Orchestrator) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	result, err := o.book(ctx, req)
	metrics.Bookings.WithLabelValues(bookingOutcome(result, err)).Inc()
	return result, err
}

func (o *Orchestrator) book(ctx context.Context, req BookRequest) (*BookResult, error) {
	at := req.ScheduledAt.UTC()
	if at.IsZero() || !at.After(o.now()) {
		return nil, newError(CodeInvalidTimeRange, "scheduled time must be in the future")
	}

	elig, err := o.validator.Validate(ctx, req.PackID, req.UserID, &at)
	if err != nil {
		return nil, err
	}
	pack := elig.Pack

	existing, err := o.repo.FindScheduledSession(ctx, req.UserID, pack.ID, at)
	if err != nil {
		return nil, fmt.Errorf("look up existing session: %w", err)
	}
	if existing != nil {
		slog.Info("booking already exists", "session_id", existing.ID, "pack_id", pack.ID)
		return &BookResult{Session: existing, Created: false}, nil
	}

	// Sessions already scheduled hold their share of the balance until
	// completion debits it.
	scheduled, err := o.repo.CountScheduledSessions(ctx, pack.ID)
	if err != nil {
		return nil, fmt.Errorf("count scheduled sessions of pack %s: %w", pack.ID, err)
	}
	if pack.RemainingSessions-scheduled <= 0 {
		return nil, newError(CodeNoRemainingSessions, "all remaining sessions of the pack are already scheduled")
	}

	mentor, err := o.repo.GetMentor(ctx, pack.MentorID)
	if err != nil {
		return nil, fmt.Errorf("load mentor %s: %w", pack.MentorID, err)
	}
	if mentor == nil {
		return nil, newError(CodeMentorNotFound, "mentor %s not found", pack.MentorID)
	}
	if mentor.CalendarID == "" {
		return nil, newError(CodeCalendarNotConnected, "mentor has no connected calendar")
	}

	slot := Slot{Start: at, End: at.Add(o.sessionDuration)}
	if accept := workingHoursFilter(mentor); accept != nil && !accept(slot) {
		return nil, newError(CodeOutsideWorkingHours, "requested time is outside the mentor's working hours")
	}

	raw, err := o.calendar.QueryBusy(ctx, mentor.CalendarID, slot.Start, slot.End)
	if err != nil {
		return nil, fmt.Errorf("re-check busy windows: %w", err)
	}
	for _, w := range NormalizeBusy(raw) {
		if w.Start.Before(slot.End) && w.End.After(slot.Start) {
			return nil, newError(CodeTimeSlotUnavailable, "requested time is no longer available")
		}
	}

	eventID, err := o.calendar.CreateEvent(ctx, mentor.CalendarID, calendar.EventInput{
		Summary:     "Mentorship session",
		Description: fmt.Sprintf("Session booked from pack %s", pack.ID),
		Start:       slot.Start,
		End:         slot.End,
		Metadata: map[string]string{
			EventMetadataPackID:    pack.ID,
			EventMetadataStudentID: req.UserID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create calendar event: %w", err)
	}

	session, err := o.repo.CreateSession(ctx, repository.CreateSessionInput{
		MentorID:        mentor.ID,
		StudentID:       req.UserID,
		SessionPackID:   pack.ID,
		ScheduledAt:     at,
		DurationMinutes: int(o.sessionDuration / time.Minute),
		CalendarEventID: eventID,
	})
	if err != nil {
		o.compensate(ctx, mentor.CalendarID, eventID, err)
		if errors.Is(err, repository.ErrSlotTaken) {
			return o.resolveSlotConflict(ctx, req.UserID, pack.ID, at)
		}
		return nil, fmt.Errorf("persist session: %w", err)
	}

	slog.Info("session booked", "session_id", session.ID, "pack_id", pack.ID, "mentor_id", mentor.ID, "scheduled_at", at)
	return &BookResult{Session: session, Created: true}, nil
}

// resolveSlotConflict handles a concurrent insert for the same mentor and
// time. A retry of this very booking gets the winning row back.
func (o *Orchestrator) resolveSlotConflict(ctx context.Context, userID, packID string, at time.Time) (*BookResult, error) {
	winner, err := o.repo.FindScheduledSession(ctx, userID, packID, at)
	if err != nil {
		return nil, fmt.Errorf("look up concurrent session: %w", err)
	}
	if winner != nil {
		return &BookResult{Session: winner, Created: false}, nil
	}
	return nil, newError(CodeTimeSlotUnavailable, "requested time was booked concurrently")
}

// compensate deletes the event created for a booking that failed to
// persist. It never returns an error: failures are logged and recorded for
// the reconciler.
func (o *Orchestrator) compensate(ctx context.Context, calendarID, eventID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := o.calendar.DeleteEvent(ctx, calendarID, eventID)
	if err == nil || errors.Is(err, calendar.ErrEventNotFound) {
		slog.Info("calendar event compensated", "calendar_id", calendarID, "event_id", eventID)
		return
	}

	metrics.CompensationFailures.Inc()
	slog.Error("failed to delete calendar event after booking failure",
		"calendar_id", calendarID, "event_id", eventID, "error", err, "cause", cause)
	if recErr := o.repo.RecordOrphanedEvent(ctx, repository.RecordOrphanedEventInput{
		CalendarID: calendarID,
		EventID:    eventID,
		Reason:     cause.Error(),
	}); recErr != nil {
		slog.Error("failed to record orphaned calendar event",
			"calendar_id", calendarID, "event_id", eventID, "error", recErr)
	}
}

func (o *Orchestrator) MentorCapacity(ctx context.Context, mentorID string) (*Capacity, error) {
	mentor, err := o.repo.GetMentor(ctx, mentorID)
	if err != nil {
		return nil, fmt.Errorf("load mentor %s: %w", mentorID, err)
	}
	if mentor == nil {
		return nil, newError(CodeMentorNotFound, "mentor %s not found", mentorID)
	}
	active, err := o.repo.CountActiveSeats(ctx, mentorID)
	if err != nil {
		return nil, fmt.Errorf("count active seats of mentor %s: %w", mentorID, err)
	}
	return &Capacity{
		MentorID:          mentorID,
		MaxActiveStudents: mentor.MaxActiveStudents,
		ActiveSeats:       active,
		Available:         max(mentor.MaxActiveStudents-active, 0),
	}, nil
}

func bookingOutcome(result *BookResult, err error) string {
	if err == nil {
		if result != nil && !result.Created {
			return "existing"
		}
		return "created"
	}
	var bookingErr *Error
	if errors.As(err, &bookingErr) {
		return string(bookingErr.Code)
	}
	return "error"
}
