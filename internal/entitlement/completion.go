package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/mentorpack/internal/notify"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/foxseedlab/mentorpack/internal/workflow"
)

const completionWorkflow = "session_completion"

// Renewal reminders fire when the debit of these session numbers is
// applied. They belong to the 4-session pack model and are not derived from
// TotalSessions.
const (
	ReminderSessionThird  = 3
	ReminderSessionFourth = 4
)

const DefaultGracePeriod = 72 * time.Hour

type SessionCompleted struct {
	SessionID string `json:"sessionId"`
}

// CompletionResult reports the pack after the debit. Debited is false when an
// earlier run already applied it.
type CompletionResult struct {
	SessionID         string                `json:"sessionId"`
	PackID            string                `json:"packId"`
	PackStatus        repository.PackStatus `json:"packStatus"`
	RemainingSessions int                   `json:"remainingSessions"`
	CompletedSessions int                   `json:"completedSessions"`
	Debited           bool                  `json:"debited"`
	SeatStatus        repository.SeatStatus `json:"seatStatus,omitempty"`
	GracePeriodEndsAt *time.Time            `json:"gracePeriodEndsAt,omitempty"`
	ReminderSession   int                   `json:"reminderSession,omitempty"`
}

type CompletionHandler struct {
	repo        repository.Repository
	sink        notify.Sink
	runner      *workflow.Runner
	gracePeriod time.Duration
	now         func() time.Time
}

func NewCompletionHandler(repo repository.Repository, sink notify.Sink, runner *workflow.Runner, gracePeriod time.Duration) *CompletionHandler {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &CompletionHandler{
		repo:        repo,
		sink:        sink,
		runner:      runner,
		gracePeriod: gracePeriod,
		now:         time.Now,
	}
}

// MarkCompleted moves a scheduled session to completed and then runs the
// completion workflow for it.
func (h *CompletionHandler) MarkCompleted(ctx context.Context, sessionID string) (*CompletionResult, error) {
	_, err := workflow.Do(ctx, h.runner, completionWorkflow, "mark_completed", func(ctx context.Context) (*repository.Session, error) {
		session, err := h.repo.MarkSessionCompleted(ctx, sessionID, h.now())
		if err != nil {
			return nil, fmt.Errorf("failed to mark session %s completed: %w", sessionID, err)
		}
		if session == nil {
			return nil, workflow.Permanent(fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound))
		}
		if session.Status != repository.SessionStatusCompleted {
			return nil, workflow.Permanent(fmt.Errorf("session %s is %s and cannot complete: %w", sessionID, session.Status, ErrInvariantViolation))
		}
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, SessionCompleted{SessionID: sessionID})
}

func (h *CompletionHandler) Run(ctx context.Context, fact SessionCompleted) (*CompletionResult, error) {
	log := slog.With("workflow", completionWorkflow, "session_id", fact.SessionID)

	session, err := workflow.Do(ctx, h.runner, completionWorkflow, "fetch_session", func(ctx context.Context) (*repository.Session, error) {
		session, err := h.repo.GetSession(ctx, fact.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session %s: %w", fact.SessionID, err)
		}
		if session == nil {
			return nil, workflow.Permanent(fmt.Errorf("session %s: %w", fact.SessionID, ErrSessionNotFound))
		}
		if session.Status != repository.SessionStatusCompleted {
			return nil, workflow.Permanent(fmt.Errorf("session %s is %s, not completed: %w", session.ID, session.Status, ErrInvariantViolation))
		}
		return session, nil
	})
	if err != nil {
		return nil, err
	}

	_, err = workflow.Do(ctx, h.runner, completionWorkflow, "fetch_pack", func(ctx context.Context) (*repository.SessionPack, error) {
		pack, err := h.repo.GetPack(ctx, session.SessionPackID)
		if err != nil {
			return nil, fmt.Errorf("failed to get pack %s: %w", session.SessionPackID, err)
		}
		if pack == nil {
			return nil, workflow.Permanent(fmt.Errorf("session %s references missing pack %s: %w", session.ID, session.SessionPackID, ErrInvariantViolation))
		}
		return pack, nil
	})
	if err != nil {
		return nil, err
	}

	type debit struct {
		pack    *repository.SessionPack
		applied bool
	}
	d, err := workflow.Do(ctx, h.runner, completionWorkflow, "debit_pack", func(ctx context.Context) (debit, error) {
		pack, applied, err := h.repo.DebitPackForSession(ctx, session.ID, h.now())
		if err != nil {
			return debit{}, err
		}
		if pack == nil {
			return debit{}, workflow.Permanent(fmt.Errorf("pack for session %s vanished: %w", session.ID, ErrInvariantViolation))
		}
		return debit{pack: pack, applied: applied}, nil
	})
	if err != nil {
		return nil, err
	}
	pack := d.pack
	if !d.applied {
		log.Info("session debit already applied", "pack_id", pack.ID)
	}

	completed, err := workflow.Do(ctx, h.runner, completionWorkflow, "count_completed", func(ctx context.Context) (int, error) {
		return h.repo.CountCompletedSessions(ctx, pack.ID)
	})
	if err != nil {
		return nil, err
	}

	res := &CompletionResult{
		SessionID:         session.ID,
		PackID:            pack.ID,
		PackStatus:        pack.Status,
		RemainingSessions: pack.RemainingSessions,
		CompletedSessions: completed,
		Debited:           d.applied,
	}

	var graceEndsAt *time.Time
	if pack.RemainingSessions == 0 {
		seat, err := workflow.Do(ctx, h.runner, completionWorkflow, "enter_grace", func(ctx context.Context) (*repository.SeatReservation, error) {
			return h.repo.EnterGrace(ctx, pack.ID, h.now().Add(h.gracePeriod))
		})
		if err != nil {
			return nil, err
		}
		err = workflow.Exec(ctx, h.runner, completionWorkflow, "mark_depleted", func(ctx context.Context) error {
			return h.repo.MarkPackDepleted(ctx, pack.ID)
		})
		if err != nil {
			return nil, err
		}
		if pack.Status == repository.PackStatusActive {
			res.PackStatus = repository.PackStatusDepleted
		}
		if seat != nil {
			res.SeatStatus = seat.Status
			if seat.Status == repository.SeatStatusGrace && seat.GracePeriodEndsAt != nil {
				graceEndsAt = seat.GracePeriodEndsAt
				res.GracePeriodEndsAt = seat.GracePeriodEndsAt
			}
		}
		log.Info("pack used up", "pack_id", pack.ID, "seat_status", res.SeatStatus, "grace_period_ends_at", graceEndsAt)
	}

	// Only the run that applied the debit knows which session of the pack
	// this was; the completed count may already include later sessions.
	if !d.applied || pack.Status == repository.PackStatusRefunded {
		return res, nil
	}
	switch debitedSessionNumber(pack) {
	case ReminderSessionThird:
		res.ReminderSession = ReminderSessionThird
		h.emitRenewal(ctx, pack, ReminderSessionThird, nil)
	case ReminderSessionFourth:
		res.ReminderSession = ReminderSessionFourth
		h.emitRenewal(ctx, pack, ReminderSessionFourth, graceEndsAt)
	}

	return res, nil
}

// debitedSessionNumber is the position of the session just debited, read
// from the balance the atomic debit returned.
func debitedSessionNumber(pack *repository.SessionPack) int {
	return pack.TotalSessions - pack.RemainingSessions
}

func (h *CompletionHandler) emitRenewal(ctx context.Context, pack *repository.SessionPack, sessionNumber int, graceEndsAt *time.Time) {
	payload := map[string]any{
		"sessionPackId": pack.ID,
		"mentorId":      pack.MentorID,
		"sessionNumber": sessionNumber,
	}
	if graceEndsAt != nil {
		payload["gracePeriodEndsAt"] = graceEndsAt.UTC()
	}
	emitFact(ctx, h.runner, h.sink, completionWorkflow, notify.Fact{
		Type:       notify.FactRenewalReminder,
		DedupeKey:  notify.RenewalDedupeKey(pack.ID, sessionNumber),
		UserID:     pack.UserID,
		OccurredAt: h.now(),
		Payload:    payload,
	})
}
