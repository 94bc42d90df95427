package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foxseedlab/mentorpack/internal/payment"
)

const requestTimeout = 15 * time.Second

// HTTPGateway reads checkout and refund records from the payment provider's
// REST API.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPGateway(baseURL, token string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

type checkoutResponse struct {
	ID            string    `json:"id"`
	PaymentID     string    `json:"payment_id"`
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	AmountCents   int64     `json:"amount_cents"`
	DiscountCents int64     `json:"discount_cents"`
	DiscountCode  string    `json:"discount_code"`
	Currency      string    `json:"currency"`
	PaidAt        time.Time `json:"paid_at"`
}

type refundResponse struct {
	ID          string `json:"id"`
	ChargeID    string `json:"charge_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

func (g *HTTPGateway) GetCheckout(ctx context.Context, checkoutID string) (*payment.Transaction, error) {
	var body checkoutResponse
	if err := g.get(ctx, "/checkouts/"+url.PathEscape(checkoutID), &body); err != nil {
		return nil, fmt.Errorf("get checkout %s: %w", checkoutID, err)
	}
	return &payment.Transaction{
		CheckoutID:        body.ID,
		ProviderPaymentID: body.PaymentID,
		OrderID:           body.OrderID,
		Status:            body.Status,
		AmountCents:       body.AmountCents,
		DiscountCents:     body.DiscountCents,
		DiscountCode:      body.DiscountCode,
		Currency:          body.Currency,
		PaidAt:            body.PaidAt,
	}, nil
}

func (g *HTTPGateway) GetRefund(ctx context.Context, refundID string) (*payment.Refund, error) {
	var body refundResponse
	if err := g.get(ctx, "/refunds/"+url.PathEscape(refundID), &body); err != nil {
		return nil, fmt.Errorf("get refund %s: %w", refundID, err)
	}
	return &payment.Refund{
		RefundID:    body.ID,
		ChargeID:    body.ChargeID,
		AmountCents: body.AmountCents,
		Currency:    body.Currency,
	}, nil
}

func (g *HTTPGateway) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return payment.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
