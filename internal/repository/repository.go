package repository

import (
	"context"
	"errors"
	"time"
)

// ErrSlotTaken is returned by CreateSession when the mentor already has a
// scheduled session at the same start time.
var ErrSlotTaken = errors.New("repository: mentor slot already taken")

type MarkOrderPaidInput struct {
	OrderID       string
	AmountCents   int64
	DiscountCents int64
	DiscountCode  string
	Currency      string
	PaidAt        time.Time
}

type CreatePaymentInput struct {
	OrderID           string
	Provider          string
	ProviderPaymentID string
	AmountCents       int64
}

type CreatePackInput struct {
	UserID        string
	MentorID      string
	PaymentID     string
	TotalSessions int
	PurchasedAt   time.Time
	ExpiresAt     time.Time
}

type CreateSeatInput struct {
	MentorID      string
	UserID        string
	SessionPackID string
	SeatExpiresAt time.Time
}

type CreateSessionInput struct {
	MentorID        string
	StudentID       string
	SessionPackID   string
	ScheduledAt     time.Time
	DurationMinutes int
	CalendarEventID string
}

type RecordOrphanedEventInput struct {
	CalendarID string
	EventID    string
	Reason     string
}

// Getters return (nil, nil) when the row does not exist.

type MentorRepository interface {
	GetMentor(ctx context.Context, mentorID string) (*Mentor, error)
	CountActiveSeats(ctx context.Context, mentorID string) (int, error)
}

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	MarkOrderPaid(ctx context.Context, input MarkOrderPaidInput) error
	MarkOrderRefunded(ctx context.Context, orderID string, at time.Time) error
}

type PaymentRepository interface {
	// CreatePaymentIfAbsent inserts a completed payment keyed by
	// (provider, provider payment id) or returns the existing row.
	CreatePaymentIfAbsent(ctx context.Context, input CreatePaymentInput) (*Payment, bool, error)
	GetPaymentByProviderID(ctx context.Context, provider, providerPaymentID string) (*Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error)
	MarkPaymentRefunded(ctx context.Context, paymentID string, refundedAmountCents int64) error
}

type PackRepository interface {
	GetPack(ctx context.Context, packID string) (*SessionPack, error)
	GetPackByPaymentID(ctx context.Context, paymentID string) (*SessionPack, error)
	// CreatePackIfAbsent inserts a pack keyed by payment id or returns the existing row.
	CreatePackIfAbsent(ctx context.Context, input CreatePackInput) (*SessionPack, bool, error)
	// DebitPackForSession applies the completion debit of a session to its
	// pack at most once, as a single atomic update (see DebitBalance). The
	// bool reports whether the debit was applied by this call.
	DebitPackForSession(ctx context.Context, sessionID string, at time.Time) (*SessionPack, bool, error)
	MarkPackDepleted(ctx context.Context, packID string) error
	// MarkPackRefunded forces remaining sessions to zero. The bool is false
	// when the pack was already refunded.
	MarkPackRefunded(ctx context.Context, packID string) (bool, error)
	ExpireLapsedPacks(ctx context.Context, now time.Time) (int64, error)
	// ListLapsedPacksHoldingSeats returns expired or depleted packs past
	// their expiry whose seat is not yet released.
	ListLapsedPacksHoldingSeats(ctx context.Context, now time.Time) ([]SessionPack, error)
}

type SeatRepository interface {
	GetSeatByPackID(ctx context.Context, packID string) (*SeatReservation, error)
	// CreateSeatIfAbsent inserts a seat keyed by pack id or returns the existing row.
	CreateSeatIfAbsent(ctx context.Context, input CreateSeatInput) (*SeatReservation, bool, error)
	// EnterGrace moves an active seat to grace. An existing grace deadline is kept.
	EnterGrace(ctx context.Context, packID string, endsAt time.Time) (*SeatReservation, error)
	// ReleaseSeat is idempotent; the bool reports whether this call released it.
	ReleaseSeat(ctx context.Context, seatID string, at time.Time) (bool, error)
	ListExpiredGraceSeats(ctx context.Context, now time.Time) ([]SeatReservation, error)
	ListGraceSeatsEndingBetween(ctx context.Context, from, until time.Time) ([]SeatReservation, error)
}

type SessionRepository interface {
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	FindScheduledSession(ctx context.Context, studentID, packID string, scheduledAt time.Time) (*Session, error)
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	// MarkSessionCompleted moves a scheduled session to completed and returns
	// it; an already completed session is returned unchanged.
	MarkSessionCompleted(ctx context.Context, sessionID string, at time.Time) (*Session, error)
	CountCompletedSessions(ctx context.Context, packID string) (int, error)
	HasScheduledSessions(ctx context.Context, packID string) (bool, error)
	CountScheduledSessions(ctx context.Context, packID string) (int, error)
}

type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

type OrphanedEventRepository interface {
	RecordOrphanedEvent(ctx context.Context, input RecordOrphanedEventInput) error
	ListUnresolvedOrphanedEvents(ctx context.Context, limit int) ([]OrphanedCalendarEvent, error)
	MarkOrphanedEventResolved(ctx context.Context, id string, at time.Time) error
	RecordOrphanedEventAttempt(ctx context.Context, id, lastError string) error
}

type Repository interface {
	MentorRepository
	OrderRepository
	PaymentRepository
	PackRepository
	SeatRepository
	SessionRepository
	ProductCatalog
	OrphanedEventRepository
}
