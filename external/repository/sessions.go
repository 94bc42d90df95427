package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/google/uuid"
)

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	return optional(scanSession(row))
}

func (r *PostgresRepository) FindScheduledSession(ctx context.Context, studentID, packID string, scheduledAt time.Time) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE student_id = $1 AND session_pack_id = $2 AND scheduled_at = $3 AND status = 'scheduled'
		 LIMIT 1`,
		studentID, packID, scheduledAt)
	return optional(scanSession(row))
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	var eventID *string
	if input.CalendarEventID != "" {
		eventID = &input.CalendarEventID
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, mentor_id, student_id, session_pack_id, scheduled_at, duration_minutes, status, calendar_event_id)
		 VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', $7)
		 RETURNING `+sessionColumns,
		uuid.NewString(), input.MentorID, input.StudentID, input.SessionPackID, input.ScheduledAt, input.DurationMinutes, eventID)
	s, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err, sessionSlotIndexName) {
			return nil, repository.ErrSlotTaken
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) MarkSessionCompleted(ctx context.Context, sessionID string, at time.Time) (*repository.Session, error) {
	if _, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status = 'completed', completed_at = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'scheduled'`,
		sessionID, at); err != nil {
		return nil, err
	}
	return r.GetSession(ctx, sessionID)
}

func (r *PostgresRepository) CountCompletedSessions(ctx context.Context, packID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE session_pack_id = $1 AND status = 'completed'`,
		packID).Scan(&n)
	return n, err
}

func (r *PostgresRepository) HasScheduledSessions(ctx context.Context, packID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE session_pack_id = $1 AND status = 'scheduled')`,
		packID).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) CountScheduledSessions(ctx context.Context, packID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE session_pack_id = $1 AND status = 'scheduled'`,
		packID).Scan(&n)
	return n, err
}

func (r *PostgresRepository) RecordOrphanedEvent(ctx context.Context, input repository.RecordOrphanedEventInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO orphaned_calendar_events (id, calendar_id, event_id, reason)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (calendar_id, event_id) DO NOTHING`,
		uuid.NewString(), input.CalendarID, input.EventID, input.Reason)
	return err
}

func (r *PostgresRepository) ListUnresolvedOrphanedEvents(ctx context.Context, limit int) ([]repository.OrphanedCalendarEvent, error) {
	if limit <= 0 {
		limit = orphanedEventsListLimit
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, calendar_id, event_id, reason, attempts, last_error, created_at, resolved_at
		 FROM orphaned_calendar_events WHERE resolved_at IS NULL
		 ORDER BY created_at ASC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.OrphanedCalendarEvent
	for rows.Next() {
		var o repository.OrphanedCalendarEvent
		if err := rows.Scan(&o.ID, &o.CalendarID, &o.EventID, &o.Reason, &o.Attempts, &o.LastError, &o.CreatedAt, &o.ResolvedAt); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) MarkOrphanedEventResolved(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE orphaned_calendar_events SET resolved_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *PostgresRepository) RecordOrphanedEventAttempt(ctx context.Context, id, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orphaned_calendar_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, lastError)
	return err
}
