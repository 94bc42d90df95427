package httpapi

import (
	"errors"

	"github.com/foxseedlab/mentorpack/internal/booking"
	"github.com/foxseedlab/mentorpack/internal/entitlement"
	"github.com/foxseedlab/mentorpack/internal/workflow"
	"github.com/gofiber/fiber/v2"
)

const (
	codeInvalidRequest     = "INVALID_REQUEST"
	codeUnauthenticated    = "UNAUTHENTICATED"
	codeNotFound           = "NOT_FOUND"
	codePermanentFailure   = "PERMANENT_FAILURE"
	codeTemporarilyUnavail = "TEMPORARILY_UNAVAILABLE"
	codeInternal           = "INTERNAL"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestError is a failure detected before any service is called.
type requestError struct {
	status  int
	code    string
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func badRequest(message string) error {
	return &requestError{status: fiber.StatusBadRequest, code: codeInvalidRequest, message: message}
}

func unauthenticated(message string) error {
	return &requestError{status: fiber.StatusUnauthorized, code: codeUnauthenticated, message: message}
}

var kindStatus = map[booking.Kind]int{
	booking.KindValidation: fiber.StatusBadRequest,
	booking.KindNotFound:   fiber.StatusNotFound,
	booking.KindConflict:   fiber.StatusConflict,
	booking.KindInvariant:  fiber.StatusInternalServerError,
}

// classifyDomain maps service errors. Permanent workflow failures get a 4xx
// so the sender stops redelivering; anything else is transient and gets 503.
func classifyDomain(err error) (int, string, string) {
	var bookingErr *booking.Error
	if errors.As(err, &bookingErr) {
		status, ok := kindStatus[bookingErr.Kind()]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		return status, string(bookingErr.Code), bookingErr.Message
	}
	if workflow.IsPermanent(err) {
		code := entitlement.ErrorCode(err)
		if code == "" {
			code = codePermanentFailure
		}
		return fiber.StatusUnprocessableEntity, code, err.Error()
	}
	return fiber.StatusServiceUnavailable, codeTemporarilyUnavail, "temporarily unavailable, retry later"
}

func httpCode(status int) string {
	switch {
	case status == fiber.StatusNotFound:
		return codeNotFound
	case status == fiber.StatusUnauthorized:
		return codeUnauthenticated
	case status >= fiber.StatusInternalServerError:
		return codeInternal
	default:
		return codeInvalidRequest
	}
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorBody{Error: errorDetail{Code: code, Message: message}})
}
