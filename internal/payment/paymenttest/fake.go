// Package paymenttest provides an in-memory payment.Gateway for tests.
package paymenttest

import (
	"context"
	"sync"

	"github.com/foxseedlab/mentorpack/internal/payment"
)

type Gateway struct {
	mu        sync.Mutex
	checkouts map[string]payment.Transaction
	refunds   map[string]payment.Refund

	// CheckoutErr, when set, is returned by GetCheckout.
	CheckoutErr error
	// RefundErr, when set, is returned by GetRefund.
	RefundErr error
}

var _ payment.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		checkouts: make(map[string]payment.Transaction),
		refunds:   make(map[string]payment.Refund),
	}
}

func (g *Gateway) PutCheckout(tx payment.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts[tx.CheckoutID] = tx
}

func (g *Gateway) PutRefund(r payment.Refund) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds[r.RefundID] = r
}

func (g *Gateway) GetCheckout(_ context.Context, checkoutID string) (*payment.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CheckoutErr != nil {
		return nil, g.CheckoutErr
	}
	tx, ok := g.checkouts[checkoutID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return &tx, nil
}

func (g *Gateway) GetRefund(_ context.Context, refundID string) (*payment.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}
	r, ok := g.refunds[refundID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return &r, nil
}
