package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/mentorpack/internal/metrics"
	"github.com/foxseedlab/mentorpack/internal/payment"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/foxseedlab/mentorpack/internal/workflow"
)

const refundWorkflow = "refund"

type PaymentRefunded struct {
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"providerPaymentId"`
	RefundID          string `json:"refundId"`
	ChargeID          string `json:"chargeId"`
}

// RefundResult reports what the run touched. AlreadyRefunded is set when the
// pack was refunded by an earlier run.
type RefundResult struct {
	OrderID             string `json:"orderId"`
	PaymentID           string `json:"paymentId"`
	PackID              string `json:"packId,omitempty"`
	SeatID              string `json:"seatId,omitempty"`
	RefundedAmountCents int64  `json:"refundedAmountCents"`
	AlreadyRefunded     bool   `json:"alreadyRefunded"`
}

type Refunder struct {
	repo            repository.Repository
	gateway         payment.Gateway
	runner          *workflow.Runner
	defaultProvider string
	now             func() time.Time
}

func NewRefunder(repo repository.Repository, gateway payment.Gateway, runner *workflow.Runner, defaultProvider string) *Refunder {
	return &Refunder{
		repo:            repo,
		gateway:         gateway,
		runner:          runner,
		defaultProvider: defaultProvider,
		now:             time.Now,
	}
}

func (r *Refunder) Run(ctx context.Context, fact PaymentRefunded) (*RefundResult, error) {
	provider := fact.Provider
	if provider == "" {
		provider = r.defaultProvider
	}
	log := slog.With("workflow", refundWorkflow, "provider", provider, "provider_payment_id", fact.ProviderPaymentID)

	pay, err := workflow.Do(ctx, r.runner, refundWorkflow, "fetch_payment", func(ctx context.Context) (*repository.Payment, error) {
		pay, err := r.repo.GetPaymentByProviderID(ctx, provider, fact.ProviderPaymentID)
		if err != nil {
			return nil, fmt.Errorf("failed to get payment: %w", err)
		}
		if pay == nil {
			return nil, workflow.Permanent(fmt.Errorf("refund for %s/%s has no captured payment: %w", provider, fact.ProviderPaymentID, ErrPaymentNotFound))
		}
		return pay, nil
	})
	if err != nil {
		return nil, err
	}
	res := &RefundResult{OrderID: pay.OrderID, PaymentID: pay.ID}

	pack, err := workflow.Do(ctx, r.runner, refundWorkflow, "fetch_pack", func(ctx context.Context) (*repository.SessionPack, error) {
		return r.repo.GetPackByPaymentID(ctx, pay.ID)
	})
	if err != nil {
		return nil, err
	}

	if pack == nil {
		log.Warn("refunded payment has no session pack", "payment_id", pay.ID)
	} else {
		res.PackID = pack.ID
		if err := r.releaseSeat(ctx, pack.ID, res); err != nil {
			return nil, err
		}
		changed, err := workflow.Do(ctx, r.runner, refundWorkflow, "mark_pack_refunded", func(ctx context.Context) (bool, error) {
			return r.repo.MarkPackRefunded(ctx, pack.ID)
		})
		if err != nil {
			return nil, err
		}
		res.AlreadyRefunded = !changed
	}

	refund, err := workflow.Do(ctx, r.runner, refundWorkflow, "fetch_refund", func(ctx context.Context) (*payment.Refund, error) {
		refund, err := r.gateway.GetRefund(ctx, fact.RefundID)
		if errors.Is(err, payment.ErrNotFound) {
			return nil, workflow.Permanent(fmt.Errorf("refund %s: %w", fact.RefundID, ErrRefundNotFound))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get refund %s: %w", fact.RefundID, err)
		}
		return refund, nil
	})
	if err != nil {
		return nil, err
	}
	res.RefundedAmountCents = refund.AmountCents

	err = workflow.Exec(ctx, r.runner, refundWorkflow, "mark_payment_refunded", func(ctx context.Context) error {
		return r.repo.MarkPaymentRefunded(ctx, pay.ID, refund.AmountCents)
	})
	if err != nil {
		return nil, err
	}

	refundedAt := r.now()
	err = workflow.Exec(ctx, r.runner, refundWorkflow, "mark_order_refunded", func(ctx context.Context) error {
		return r.repo.MarkOrderRefunded(ctx, pay.OrderID, refundedAt)
	})
	if err != nil {
		return nil, err
	}

	log.Info("payment refunded",
		"payment_id", pay.ID, "pack_id", res.PackID, "amount_cents", refund.AmountCents, "already_refunded", res.AlreadyRefunded)
	return res, nil
}

func (r *Refunder) releaseSeat(ctx context.Context, packID string, res *RefundResult) error {
	return workflow.Exec(ctx, r.runner, refundWorkflow, "release_seat", func(ctx context.Context) error {
		seat, err := r.repo.GetSeatByPackID(ctx, packID)
		if err != nil {
			return err
		}
		if seat == nil {
			return nil
		}
		res.SeatID = seat.ID
		released, err := r.repo.ReleaseSeat(ctx, seat.ID, r.now())
		if err != nil {
			return err
		}
		if released {
			metrics.SeatsReleased.WithLabelValues("refund").Inc()
		}
		return nil
	})
}
