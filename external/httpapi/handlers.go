package httpapi

import (
	"strings"
	"time"

	"github.com/foxseedlab/mentorpack/internal/booking"
	"github.com/foxseedlab/mentorpack/internal/entitlement"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/gofiber/fiber/v2"
)

type availabilityRequest struct {
	Start       string `query:"start" validate:"required"`
	End         string `query:"end" validate:"required"`
	SlotMinutes int    `query:"slotMinutes" validate:"gte=0"`
}

type bookSessionRequest struct {
	PackID      string `json:"packId" validate:"required"`
	ScheduledAt string `json:"scheduledAt" validate:"required"`
}

type sessionResponse struct {
	ID              string    `json:"id"`
	MentorID        string    `json:"mentorId"`
	StudentID       string    `json:"studentId"`
	SessionPackID   string    `json:"sessionPackId"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	DurationMinutes int       `json:"durationMinutes"`
	Status          string    `json:"status"`
	CalendarEventID string    `json:"calendarEventId,omitempty"`
}

type paymentCompletedRequest struct {
	CheckoutID string `json:"checkoutId" validate:"required"`
	OrderID    string `json:"orderId" validate:"required"`
	UserID     string `json:"userId"`
	ProductID  string `json:"productId"`
	Provider   string `json:"provider"`
}

type paymentRefundedRequest struct {
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"providerPaymentId" validate:"required"`
	RefundID          string `json:"refundId" validate:"required"`
	ChargeID          string `json:"chargeId"`
}

type sessionCompletedRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

func newSessionResponse(s *repository.Session) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		MentorID:        s.MentorID,
		StudentID:       s.StudentID,
		SessionPackID:   s.SessionPackID,
		ScheduledAt:     s.ScheduledAt.UTC(),
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		CalendarEventID: s.CalendarEventID,
	}
}

func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, badRequest(field + " must be a valid RFC3339 timestamp")
	}
	return t, nil
}

func (s *Server) bindBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return badRequest("invalid request body")
	}
	if err := s.validate.Struct(out); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

func (s *Server) getAvailability(c *fiber.Ctx) error {
	var req availabilityRequest
	if err := c.QueryParser(&req); err != nil {
		return badRequest("invalid query parameters")
	}
	if err := s.validate.Struct(&req); err != nil {
		return badRequest(err.Error())
	}
	start, err := parseTime("start", req.Start)
	if err != nil {
		return err
	}
	end, err := parseTime("end", req.End)
	if err != nil {
		return err
	}

	res, err := s.services.Availability.Compute(c.UserContext(), booking.AvailabilityQuery{
		MentorID:    c.Params("mentorID"),
		Start:       start,
		End:         end,
		SlotMinutes: req.SlotMinutes,
	})
	if err != nil {
		return err
	}
	if res.Slots == nil {
		res.Slots = []booking.Slot{}
	}
	return c.JSON(res)
}

func (s *Server) getCapacity(c *fiber.Ctx) error {
	capacity, err := s.services.Booking.MentorCapacity(c.UserContext(), c.Params("mentorID"))
	if err != nil {
		return err
	}
	return c.JSON(capacity)
}

func (s *Server) postSession(c *fiber.Ctx) error {
	var req bookSessionRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	scheduledAt, err := parseTime("scheduledAt", req.ScheduledAt)
	if err != nil {
		return err
	}

	res, err := s.services.Booking.Book(c.UserContext(), booking.BookRequest{
		UserID:      userID(c),
		PackID:      req.PackID,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if res.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"session": newSessionResponse(res.Session),
		"created": res.Created,
	})
}

func (s *Server) postPaymentCompleted(c *fiber.Ctx) error {
	var req paymentCompletedRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	res, err := s.services.Provisioning.Run(c.UserContext(), entitlement.PaymentCompleted(req))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) postPaymentRefunded(c *fiber.Ctx) error {
	var req paymentRefundedRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	res, err := s.services.Refunds.Run(c.UserContext(), entitlement.PaymentRefunded(req))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) postSessionCompleted(c *fiber.Ctx) error {
	var req sessionCompletedRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	res, err := s.services.Completions.MarkCompleted(c.UserContext(), req.SessionID)
	if err != nil {
		return err
	}
	return c.JSON(res)
}
