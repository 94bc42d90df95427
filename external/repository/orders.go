package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/google/uuid"
)

func (r *PostgresRepository) GetMentor(ctx context.Context, mentorID string) (*repository.Mentor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+mentorColumns+` FROM mentors WHERE id = $1`, mentorID)
	return optional(scanMentor(row))
}

func (r *PostgresRepository) CountActiveSeats(ctx context.Context, mentorID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM seat_reservations WHERE mentor_id = $1 AND status IN ('active', 'grace')`,
		mentorID).Scan(&n)
	return n, err
}

func (r *PostgresRepository) GetProduct(ctx context.Context, productID string) (*repository.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, mentor_id, name, sessions_per_pack, validity_days FROM products WHERE id = $1`,
		productID)
	var p repository.Product
	err := row.Scan(&p.ID, &p.MentorID, &p.Name, &p.SessionsPerPack, &p.ValidityDays)
	return optional(&p, err)
}

func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (*repository.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return optional(scanOrder(row))
}

func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, input repository.MarkOrderPaidInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET status = 'paid', amount_cents = $2, discount_cents = $3, discount_code = $4, currency = $5,
		     paid_at = COALESCE(paid_at, $6), updated_at = NOW()
		 WHERE id = $1 AND status <> 'refunded'`,
		input.OrderID, input.AmountCents, input.DiscountCents, input.DiscountCode, input.Currency, input.PaidAt)
	return err
}

func (r *PostgresRepository) MarkOrderRefunded(ctx context.Context, orderID string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = 'refunded', refunded_at = COALESCE(refunded_at, $2), updated_at = NOW()
		 WHERE id = $1`,
		orderID, at)
	return err
}

func (r *PostgresRepository) CreatePaymentIfAbsent(ctx context.Context, input repository.CreatePaymentInput) (*repository.Payment, bool, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, order_id, provider, provider_payment_id, status, amount_cents)
		 VALUES ($1, $2, $3, $4, 'completed', $5)
		 ON CONFLICT (provider, provider_payment_id) DO NOTHING
		 RETURNING `+paymentColumns,
		uuid.NewString(), input.OrderID, input.Provider, input.ProviderPaymentID, input.AmountCents)
	created, err := optional(scanPayment(row))
	if err != nil {
		return nil, false, err
	}
	if created != nil {
		return created, true, nil
	}
	existing, err := r.GetPaymentByProviderID(ctx, input.Provider, input.ProviderPaymentID)
	return existing, false, err
}

func (r *PostgresRepository) GetPaymentByProviderID(ctx context.Context, provider, providerPaymentID string) (*repository.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND provider_payment_id = $2`,
		provider, providerPaymentID)
	return optional(scanPayment(row))
}

func (r *PostgresRepository) GetPaymentByOrderID(ctx context.Context, orderID string) (*repository.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at ASC LIMIT 1`,
		orderID)
	return optional(scanPayment(row))
}

func (r *PostgresRepository) MarkPaymentRefunded(ctx context.Context, paymentID string, refundedAmountCents int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = 'refunded', refunded_amount_cents = $2, updated_at = NOW() WHERE id = $1`,
		paymentID, refundedAmountCents)
	return err
}
