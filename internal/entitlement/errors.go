package entitlement

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderRefunded      = errors.New("order already refunded")
	ErrCheckoutNotFound   = errors.New("checkout not found at payment gateway")
	ErrProductNotFound    = errors.New("product not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrRefundNotFound     = errors.New("refund not found at payment gateway")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvariantViolation = errors.New("invariant violation")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrOrderNotFound, "ORDER_NOT_FOUND"},
	{ErrOrderRefunded, "ORDER_REFUNDED"},
	{ErrCheckoutNotFound, "CHECKOUT_NOT_FOUND"},
	{ErrProductNotFound, "PRODUCT_NOT_FOUND"},
	{ErrPaymentNotFound, "PAYMENT_NOT_FOUND"},
	{ErrRefundNotFound, "REFUND_NOT_FOUND"},
	{ErrSessionNotFound, "SESSION_NOT_FOUND"},
	{ErrInvariantViolation, "INVARIANT_VIOLATION"},
}

// ErrorCode returns the machine-readable code for a workflow failure, or
// an empty string when err carries none.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}
