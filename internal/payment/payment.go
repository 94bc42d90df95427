package payment

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the gateway has no record of the object.
var ErrNotFound = errors.New("payment: not found at gateway")

// Transaction is the gateway's authoritative view of a completed checkout.
type Transaction struct {
	CheckoutID        string
	ProviderPaymentID string
	OrderID           string
	Status            string
	AmountCents       int64
	DiscountCents     int64
	DiscountCode      string
	Currency          string
	PaidAt            time.Time
}

type Refund struct {
	RefundID    string
	ChargeID    string
	AmountCents int64
	Currency    string
}

type Gateway interface {
	GetCheckout(ctx context.Context, checkoutID string) (*Transaction, error)
	GetRefund(ctx context.Context, refundID string) (*Refund, error)
}
