// Package entitlement turns payment and session facts into pack, seat and
// order state. Every workflow here may be re-run from the top after a partial
// failure; each step either checks for its own effect or is keyed on a
// natural key so that re-execution never duplicates rows.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/foxseedlab/mentorpack/internal/metrics"
	"github.com/foxseedlab/mentorpack/internal/notify"
	"github.com/foxseedlab/mentorpack/internal/payment"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/foxseedlab/mentorpack/internal/workflow"
)

const (
	provisioningWorkflow = "provisioning"

	defaultOrderFetchAttempts = 5
	defaultOrderFetchInterval = 500 * time.Millisecond
)

var errOrderNotVisible = errors.New("order not visible yet")

type PaymentCompleted struct {
	CheckoutID string `json:"checkoutId"`
	OrderID    string `json:"orderId"`
	UserID     string `json:"userId"`
	ProductID  string `json:"productId"`
	Provider   string `json:"provider"`
}

type ProvisionResult struct {
	OrderID            string `json:"orderId"`
	PaymentID          string `json:"paymentId"`
	PackID             string `json:"packId"`
	SeatID             string `json:"seatId"`
	AlreadyProvisioned bool   `json:"alreadyProvisioned"`
}

type Provisioner struct {
	repo               repository.Repository
	gateway            payment.Gateway
	sink               notify.Sink
	runner             *workflow.Runner
	defaultProvider    string
	orderFetchAttempts uint
	orderFetchInterval time.Duration
	now                func() time.Time
}

func NewProvisioner(repo repository.Repository, gateway payment.Gateway, sink notify.Sink, runner *workflow.Runner, defaultProvider string, orderFetchAttempts int) *Provisioner {
	attempts := uint(defaultOrderFetchAttempts)
	if orderFetchAttempts > 0 {
		attempts = uint(orderFetchAttempts)
	}
	return &Provisioner{
		repo:               repo,
		gateway:            gateway,
		sink:               sink,
		runner:             runner,
		defaultProvider:    defaultProvider,
		orderFetchAttempts: attempts,
		orderFetchInterval: defaultOrderFetchInterval,
		now:                time.Now,
	}
}

func (p *Provisioner) Run(ctx context.Context, fact PaymentCompleted) (*ProvisionResult, error) {
	if fact.OrderID == "" || fact.CheckoutID == "" {
		return nil, workflow.Permanent(fmt.Errorf("payment completed fact needs orderId and checkoutId: %w", ErrOrderNotFound))
	}
	log := slog.With("workflow", provisioningWorkflow, "order_id", fact.OrderID, "checkout_id", fact.CheckoutID)

	order, err := workflow.Do(ctx, p.runner, provisioningWorkflow, "fetch_order", func(ctx context.Context) (*repository.Order, error) {
		return p.fetchOrder(ctx, fact.OrderID)
	})
	if err != nil {
		return nil, err
	}
	if order.Status == repository.OrderStatusRefunded {
		return nil, workflow.Permanent(fmt.Errorf("order %s: %w", order.ID, ErrOrderRefunded))
	}

	if order.Status == repository.OrderStatusPaid {
		res, err := workflow.Do(ctx, p.runner, provisioningWorkflow, "check_provisioned", func(ctx context.Context) (*ProvisionResult, error) {
			return p.existingProvision(ctx, order.ID)
		})
		if err != nil {
			return nil, err
		}
		if res != nil {
			log.Info("order already provisioned", "pack_id", res.PackID)
			return res, nil
		}
		log.Warn("order is paid but provisioning is incomplete, resuming")
	}

	tx, err := workflow.Do(ctx, p.runner, provisioningWorkflow, "fetch_transaction", func(ctx context.Context) (*payment.Transaction, error) {
		tx, err := p.gateway.GetCheckout(ctx, fact.CheckoutID)
		if errors.Is(err, payment.ErrNotFound) {
			return nil, workflow.Permanent(fmt.Errorf("checkout %s: %w", fact.CheckoutID, ErrCheckoutNotFound))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get checkout %s: %w", fact.CheckoutID, err)
		}
		return tx, nil
	})
	if err != nil {
		return nil, err
	}

	paidAt := tx.PaidAt
	if paidAt.IsZero() {
		paidAt = p.now()
	}
	err = workflow.Exec(ctx, p.runner, provisioningWorkflow, "mark_order_paid", func(ctx context.Context) error {
		return p.repo.MarkOrderPaid(ctx, repository.MarkOrderPaidInput{
			OrderID:       order.ID,
			AmountCents:   tx.AmountCents,
			DiscountCents: tx.DiscountCents,
			DiscountCode:  tx.DiscountCode,
			Currency:      tx.Currency,
			PaidAt:        paidAt,
		})
	})
	if err != nil {
		return nil, err
	}

	provider := fact.Provider
	if provider == "" {
		provider = order.Provider
	}
	if provider == "" {
		provider = p.defaultProvider
	}
	providerPaymentID := tx.ProviderPaymentID
	if providerPaymentID == "" {
		providerPaymentID = fact.CheckoutID
	}
	pay, err := workflow.Do(ctx, p.runner, provisioningWorkflow, "create_payment", func(ctx context.Context) (*repository.Payment, error) {
		pay, _, err := p.repo.CreatePaymentIfAbsent(ctx, repository.CreatePaymentInput{
			OrderID:           order.ID,
			Provider:          provider,
			ProviderPaymentID: providerPaymentID,
			AmountCents:       tx.AmountCents,
		})
		return pay, err
	})
	if err != nil {
		return nil, err
	}

	productID := fact.ProductID
	if productID == "" {
		productID = order.ProductID
	}
	product, err := workflow.Do(ctx, p.runner, provisioningWorkflow, "resolve_product", func(ctx context.Context) (*repository.Product, error) {
		product, err := p.repo.GetProduct(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("failed to get product %s: %w", productID, err)
		}
		if product == nil {
			return nil, workflow.Permanent(fmt.Errorf("product %q: %w", productID, ErrProductNotFound))
		}
		return product, nil
	})
	if err != nil {
		return nil, err
	}

	userID := order.UserID
	if userID == "" {
		userID = fact.UserID
	}
	purchasedAt := p.now()
	pack, err := workflow.Do(ctx, p.runner, provisioningWorkflow, "create_pack", func(ctx context.Context) (*repository.SessionPack, error) {
		pack, created, err := p.repo.CreatePackIfAbsent(ctx, repository.CreatePackInput{
			UserID:        userID,
			MentorID:      product.MentorID,
			PaymentID:     pay.ID,
			TotalSessions: product.SessionsPerPack,
			PurchasedAt:   purchasedAt,
			ExpiresAt:     purchasedAt.AddDate(0, 0, product.ValidityDays),
		})
		if err == nil && !created {
			log.Info("reusing existing session pack", "pack_id", pack.ID)
		}
		return pack, err
	})
	if err != nil {
		return nil, err
	}

	seat, err := workflow.Do(ctx, p.runner, provisioningWorkflow, "create_seat", func(ctx context.Context) (*repository.SeatReservation, error) {
		seat, created, err := p.repo.CreateSeatIfAbsent(ctx, repository.CreateSeatInput{
			MentorID:      pack.MentorID,
			UserID:        pack.UserID,
			SessionPackID: pack.ID,
			SeatExpiresAt: pack.ExpiresAt,
		})
		if err != nil {
			return nil, err
		}
		if created {
			p.warnIfOverCapacity(ctx, pack.MentorID)
		}
		return seat, nil
	})
	if err != nil {
		return nil, err
	}

	emitFact(ctx, p.runner, p.sink, provisioningWorkflow, notify.Fact{
		Type:       notify.FactOnboardingEligible,
		DedupeKey:  notify.OnboardingDedupeKey(order.ID),
		UserID:     pack.UserID,
		OccurredAt: p.now(),
		Payload: map[string]any{
			"orderId":       order.ID,
			"sessionPackId": pack.ID,
			"provider":      provider,
		},
	})

	log.Info("order provisioned", "payment_id", pay.ID, "pack_id", pack.ID, "seat_id", seat.ID)
	return &ProvisionResult{
		OrderID:   order.ID,
		PaymentID: pay.ID,
		PackID:    pack.ID,
		SeatID:    seat.ID,
	}, nil
}

// fetchOrder tolerates the order row not being visible right after checkout.
// A store error ends the inner loop and is left transient for the runner.
func (p *Provisioner) fetchOrder(ctx context.Context, orderID string) (*repository.Order, error) {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.orderFetchInterval > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.orderFetchInterval
		b = exp
	}
	order, err := backoff.Retry(ctx, func() (*repository.Order, error) {
		order, err := p.repo.GetOrder(ctx, orderID)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to get order %s: %w", orderID, err))
		}
		if order == nil {
			return nil, errOrderNotVisible
		}
		return order, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.orderFetchAttempts),
		backoff.WithMaxElapsedTime(0),
	)
	var wrapped *backoff.PermanentError
	if errors.As(err, &wrapped) {
		err = wrapped.Unwrap()
	}
	if errors.Is(err, errOrderNotVisible) {
		return nil, workflow.Permanent(fmt.Errorf("order %s after %d reads: %w", orderID, p.orderFetchAttempts, ErrOrderNotFound))
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// existingProvision returns the provisioned rows for a paid order, or nil
// when any of them is still missing.
func (p *Provisioner) existingProvision(ctx context.Context, orderID string) (*ProvisionResult, error) {
	pay, err := p.repo.GetPaymentByOrderID(ctx, orderID)
	if err != nil || pay == nil {
		return nil, err
	}
	pack, err := p.repo.GetPackByPaymentID(ctx, pay.ID)
	if err != nil || pack == nil {
		return nil, err
	}
	seat, err := p.repo.GetSeatByPackID(ctx, pack.ID)
	if err != nil || seat == nil {
		return nil, err
	}
	return &ProvisionResult{
		OrderID:            orderID,
		PaymentID:          pay.ID,
		PackID:             pack.ID,
		SeatID:             seat.ID,
		AlreadyProvisioned: true,
	}, nil
}

// warnIfOverCapacity only reports: the payment is already captured, so the
// seat is kept even when the mentor is over capacity.
func (p *Provisioner) warnIfOverCapacity(ctx context.Context, mentorID string) {
	mentor, err := p.repo.GetMentor(ctx, mentorID)
	if err != nil || mentor == nil || mentor.MaxActiveStudents <= 0 {
		return
	}
	active, err := p.repo.CountActiveSeats(ctx, mentorID)
	if err != nil {
		slog.Warn("failed to count active seats", "mentor_id", mentorID, "error", err)
		return
	}
	if active > mentor.MaxActiveStudents {
		metrics.CapacityExceeded.Inc()
		slog.Warn("mentor over capacity after provisioning",
			"mentor_id", mentorID, "active_seats", active, "max_active_students", mentor.MaxActiveStudents)
	}
}
