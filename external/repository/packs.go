package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/google/uuid"
)

func (r *PostgresRepository) GetPack(ctx context.Context, packID string) (*repository.SessionPack, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+packColumns+` FROM session_packs WHERE id = $1`, packID)
	return optional(scanPack(row))
}

func (r *PostgresRepository) GetPackByPaymentID(ctx context.Context, paymentID string) (*repository.SessionPack, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+packColumns+` FROM session_packs WHERE payment_id = $1`, paymentID)
	return optional(scanPack(row))
}

func (r *PostgresRepository) CreatePackIfAbsent(ctx context.Context, input repository.CreatePackInput) (*repository.SessionPack, bool, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO session_packs (id, user_id, mentor_id, payment_id, total_sessions, remaining_sessions, status, purchased_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $5, 'active', $6, $7)
		 ON CONFLICT (payment_id) DO NOTHING
		 RETURNING `+packColumns,
		uuid.NewString(), input.UserID, input.MentorID, input.PaymentID, input.TotalSessions, input.PurchasedAt, input.ExpiresAt)
	created, err := optional(scanPack(row))
	if err != nil {
		return nil, false, err
	}
	if created != nil {
		return created, true, nil
	}
	existing, err := r.GetPackByPaymentID(ctx, input.PaymentID)
	return existing, false, err
}

// DebitPackForSession claims the session's debit marker and decrements the
// pack in one statement. The CASE mirrors repository.DebitBalance; SET
// expressions see the pre-update row.
func (r *PostgresRepository) DebitPackForSession(ctx context.Context, sessionID string, at time.Time) (*repository.SessionPack, bool, error) {
	row := r.pool.QueryRow(ctx,
		`WITH debit AS (
			UPDATE sessions SET pack_debited_at = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'completed' AND pack_debited_at IS NULL
			RETURNING session_pack_id
		)
		UPDATE session_packs p
		SET remaining_sessions = GREATEST(p.remaining_sessions - 1, 0),
		    status = CASE
		        WHEN GREATEST(p.remaining_sessions - 1, 0) = 0 AND p.status NOT IN ('refunded', 'expired') THEN 'depleted'
		        ELSE p.status
		    END,
		    updated_at = NOW()
		FROM debit
		WHERE p.id = debit.session_pack_id
		RETURNING p.id, p.user_id, p.mentor_id, p.payment_id, p.total_sessions, p.remaining_sessions, p.status,
		          p.purchased_at, p.expires_at, p.created_at, p.updated_at`,
		sessionID, at)
	debited, err := optional(scanPack(row))
	if err != nil {
		return nil, false, err
	}
	if debited != nil {
		return debited, true, nil
	}
	current, err := optional(scanPack(r.pool.QueryRow(ctx,
		`SELECT p.id, p.user_id, p.mentor_id, p.payment_id, p.total_sessions, p.remaining_sessions, p.status,
		        p.purchased_at, p.expires_at, p.created_at, p.updated_at
		 FROM session_packs p JOIN sessions s ON s.session_pack_id = p.id
		 WHERE s.id = $1`,
		sessionID)))
	return current, false, err
}

func (r *PostgresRepository) MarkPackDepleted(ctx context.Context, packID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE session_packs SET status = 'depleted', updated_at = NOW()
		 WHERE id = $1 AND status = 'active' AND remaining_sessions = 0`,
		packID)
	return err
}

func (r *PostgresRepository) MarkPackRefunded(ctx context.Context, packID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE session_packs SET status = 'refunded', remaining_sessions = 0, updated_at = NOW()
		 WHERE id = $1 AND status <> 'refunded'`,
		packID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ExpireLapsedPacks(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE session_packs SET status = 'expired', updated_at = NOW()
		 WHERE status = 'active' AND expires_at <= $1`,
		now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListLapsedPacksHoldingSeats(ctx context.Context, now time.Time) ([]repository.SessionPack, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.user_id, p.mentor_id, p.payment_id, p.total_sessions, p.remaining_sessions, p.status,
		        p.purchased_at, p.expires_at, p.created_at, p.updated_at
		 FROM session_packs p JOIN seat_reservations s ON s.session_pack_id = p.id
		 WHERE p.status IN ('expired', 'depleted') AND p.expires_at <= $1 AND s.status <> 'released'
		 ORDER BY p.expires_at ASC`,
		now)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPack)
}
