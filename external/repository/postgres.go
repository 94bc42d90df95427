package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation       = "23505"
	sessionSlotIndexName    = "sessions_mentor_slot_scheduled_idx"
	orphanedEventsListLimit = 100
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

const mentorColumns = `id, display_name, max_active_students, calendar_id, timezone, working_hours, created_at, updated_at`

func scanMentor(row pgx.Row) (*repository.Mentor, error) {
	var m repository.Mentor
	var timezone *string
	var workingHours []byte
	if err := row.Scan(&m.ID, &m.DisplayName, &m.MaxActiveStudents, &m.CalendarID, &timezone, &workingHours, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if timezone != nil {
		m.Timezone = *timezone
	}
	if len(workingHours) > 0 {
		if err := json.Unmarshal(workingHours, &m.WorkingHours); err != nil {
			return nil, fmt.Errorf("decode working hours of mentor %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

const orderColumns = `id, user_id, provider, product_id, status, amount_cents, discount_cents, discount_code, currency, paid_at, refunded_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*repository.Order, error) {
	var o repository.Order
	if err := row.Scan(&o.ID, &o.UserID, &o.Provider, &o.ProductID, &o.Status, &o.AmountCents, &o.DiscountCents,
		&o.DiscountCode, &o.Currency, &o.PaidAt, &o.RefundedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

const paymentColumns = `id, order_id, provider, provider_payment_id, status, amount_cents, refunded_amount_cents, created_at, updated_at`

func scanPayment(row pgx.Row) (*repository.Payment, error) {
	var p repository.Payment
	if err := row.Scan(&p.ID, &p.OrderID, &p.Provider, &p.ProviderPaymentID, &p.Status, &p.AmountCents,
		&p.RefundedAmountCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const packColumns = `id, user_id, mentor_id, payment_id, total_sessions, remaining_sessions, status, purchased_at, expires_at, created_at, updated_at`

func scanPack(row pgx.Row) (*repository.SessionPack, error) {
	var p repository.SessionPack
	if err := row.Scan(&p.ID, &p.UserID, &p.MentorID, &p.PaymentID, &p.TotalSessions, &p.RemainingSessions,
		&p.Status, &p.PurchasedAt, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const seatColumns = `id, mentor_id, user_id, session_pack_id, status, seat_expires_at, grace_period_ends_at, released_at, created_at, updated_at`

func scanSeat(row pgx.Row) (*repository.SeatReservation, error) {
	var s repository.SeatReservation
	if err := row.Scan(&s.ID, &s.MentorID, &s.UserID, &s.SessionPackID, &s.Status, &s.SeatExpiresAt,
		&s.GracePeriodEndsAt, &s.ReleasedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

const sessionColumns = `id, mentor_id, student_id, session_pack_id, scheduled_at, duration_minutes, status, calendar_event_id, completed_at, canceled_at, pack_debited_at, created_at, updated_at`

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	var eventID *string
	if err := row.Scan(&s.ID, &s.MentorID, &s.StudentID, &s.SessionPackID, &s.ScheduledAt, &s.DurationMinutes,
		&s.Status, &eventID, &s.CompletedAt, &s.CanceledAt, &s.PackDebitedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if eventID != nil {
		s.CalendarEventID = *eventID
	}
	return &s, nil
}

// optional turns pgx.ErrNoRows into (nil, nil) for single-row getters.
func optional[T any](v *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()
	var list []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Shutdown closes the pool when the injector shuts down.
func (r *PostgresRepository) Shutdown() {
	r.pool.Close()
}
