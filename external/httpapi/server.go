package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/foxseedlab/mentorpack/internal/booking"
	"github.com/foxseedlab/mentorpack/internal/entitlement"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

type availabilityService interface {
	Compute(ctx context.Context, q booking.AvailabilityQuery) (*booking.AvailabilityResult, error)
}

type bookingService interface {
	Book(ctx context.Context, req booking.BookRequest) (*booking.BookResult, error)
	MentorCapacity(ctx context.Context, mentorID string) (*booking.Capacity, error)
}

type provisioningService interface {
	Run(ctx context.Context, fact entitlement.PaymentCompleted) (*entitlement.ProvisionResult, error)
}

type refundService interface {
	Run(ctx context.Context, fact entitlement.PaymentRefunded) (*entitlement.RefundResult, error)
}

type completionService interface {
	MarkCompleted(ctx context.Context, sessionID string) (*entitlement.CompletionResult, error)
}

type Services struct {
	Availability availabilityService
	Booking      bookingService
	Provisioning provisioningService
	Refunds      refundService
	Completions  completionService
}

type Options struct {
	FactsToken     string
	MetricsEnabled bool
	// AccessLog enables the fiber request logger.
	AccessLog bool
}

type Server struct {
	app      *fiber.App
	services Services
	validate *validator.Validate
}

func NewServer(services Services, opts Options) *Server {
	s := &Server{
		services: services,
		validate: validator.New(),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "mentorpack",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	if opts.AccessLog {
		s.app.Use(logger.New())
	}

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if opts.MetricsEnabled {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	v1 := s.app.Group("/v1")
	v1.Get("/mentors/:mentorID/availability", s.getAvailability)
	v1.Get("/mentors/:mentorID/capacity", s.getCapacity)
	v1.Post("/sessions", requireUser, s.postSession)

	facts := v1.Group("/facts", requireBearer(opts.FactsToken))
	facts.Post("/payment-completed", s.postPaymentCompleted)
	facts.Post("/payment-refunded", s.postPaymentRefunded)
	facts.Post("/session-completed", s.postSessionCompleted)

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	slog.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// handleError renders every error as {"error": {"code", "message"}}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, code, message := classify(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}
	return writeError(c, status, code, message)
}

func classify(err error) (int, string, string) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, httpCode(fiberErr.Code), fiberErr.Message
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.status, reqErr.code, reqErr.message
	}
	return classifyDomain(err)
}
