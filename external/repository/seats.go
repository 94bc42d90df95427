package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/google/uuid"
)

func (r *PostgresRepository) GetSeatByPackID(ctx context.Context, packID string) (*repository.SeatReservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+seatColumns+` FROM seat_reservations WHERE session_pack_id = $1`, packID)
	return optional(scanSeat(row))
}

func (r *PostgresRepository) CreateSeatIfAbsent(ctx context.Context, input repository.CreateSeatInput) (*repository.SeatReservation, bool, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO seat_reservations (id, mentor_id, user_id, session_pack_id, status, seat_expires_at)
		 VALUES ($1, $2, $3, $4, 'active', $5)
		 ON CONFLICT (session_pack_id) DO NOTHING
		 RETURNING `+seatColumns,
		uuid.NewString(), input.MentorID, input.UserID, input.SessionPackID, input.SeatExpiresAt)
	created, err := optional(scanSeat(row))
	if err != nil {
		return nil, false, err
	}
	if created != nil {
		return created, true, nil
	}
	existing, err := r.GetSeatByPackID(ctx, input.SessionPackID)
	return existing, false, err
}

func (r *PostgresRepository) EnterGrace(ctx context.Context, packID string, endsAt time.Time) (*repository.SeatReservation, error) {
	if _, err := r.pool.Exec(ctx,
		`UPDATE seat_reservations
		 SET status = 'grace', grace_period_ends_at = COALESCE(grace_period_ends_at, $2), updated_at = NOW()
		 WHERE session_pack_id = $1 AND status = 'active'`,
		packID, endsAt); err != nil {
		return nil, err
	}
	return r.GetSeatByPackID(ctx, packID)
}

func (r *PostgresRepository) ReleaseSeat(ctx context.Context, seatID string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE seat_reservations SET status = 'released', released_at = $2, updated_at = NOW()
		 WHERE id = $1 AND status <> 'released'`,
		seatID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListExpiredGraceSeats(ctx context.Context, now time.Time) ([]repository.SeatReservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+seatColumns+` FROM seat_reservations
		 WHERE status = 'grace' AND grace_period_ends_at <= $1
		 ORDER BY grace_period_ends_at ASC`,
		now)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSeat)
}

func (r *PostgresRepository) ListGraceSeatsEndingBetween(ctx context.Context, from, until time.Time) ([]repository.SeatReservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+seatColumns+` FROM seat_reservations
		 WHERE status = 'grace' AND grace_period_ends_at > $1 AND grace_period_ends_at <= $2
		 ORDER BY grace_period_ends_at ASC`,
		from, until)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSeat)
}
