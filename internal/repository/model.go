package repository

import "time"

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusRefunded OrderStatus = "refunded"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusCanceled OrderStatus = "canceled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type PackStatus string

const (
	PackStatusActive   PackStatus = "active"
	PackStatusDepleted PackStatus = "depleted"
	PackStatusExpired  PackStatus = "expired"
	PackStatusRefunded PackStatus = "refunded"
)

type SeatStatus string

const (
	SeatStatusActive   SeatStatus = "active"
	SeatStatusGrace    SeatStatus = "grace"
	SeatStatusReleased SeatStatus = "released"
)

type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCanceled  SessionStatus = "canceled"
	SessionStatusNoShow    SessionStatus = "no_show"
)

// MinuteInterval is a [Start, End) range in minutes since local midnight.
type MinuteInterval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type WorkingHours map[time.Weekday][]MinuteInterval

type Mentor struct {
	ID                string
	DisplayName       string
	MaxActiveStudents int
	CalendarID        string
	Timezone          string
	WorkingHours      WorkingHours
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasWorkingHours reports whether the working-hours filter applies. Both a
// timezone and at least one interval are needed; otherwise slots are unfiltered.
func (m *Mentor) HasWorkingHours() bool {
	if m == nil || m.Timezone == "" {
		return false
	}
	for _, intervals := range m.WorkingHours {
		if len(intervals) > 0 {
			return true
		}
	}
	return false
}

type Order struct {
	ID            string
	UserID        string
	Provider      string
	ProductID     string
	Status        OrderStatus
	AmountCents   int64
	DiscountCents int64
	DiscountCode  string
	Currency      string
	PaidAt        *time.Time
	RefundedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Payment struct {
	ID                  string
	OrderID             string
	Provider            string
	ProviderPaymentID   string
	Status              PaymentStatus
	AmountCents         int64
	RefundedAmountCents int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type SessionPack struct {
	ID                string
	UserID            string
	MentorID          string
	PaymentID         string
	TotalSessions     int
	RemainingSessions int
	Status            PackStatus
	PurchasedAt       time.Time
	ExpiresAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type SeatReservation struct {
	ID                string
	MentorID          string
	UserID            string
	SessionPackID     string
	Status            SeatStatus
	SeatExpiresAt     time.Time
	GracePeriodEndsAt *time.Time
	ReleasedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Holding reports whether the seat counts against the mentor's capacity.
func (s *SeatReservation) Holding() bool {
	return s != nil && (s.Status == SeatStatusActive || s.Status == SeatStatusGrace)
}

type Session struct {
	ID              string
	MentorID        string
	StudentID       string
	SessionPackID   string
	ScheduledAt     time.Time
	DurationMinutes int
	Status          SessionStatus
	CalendarEventID string
	CompletedAt     *time.Time
	CanceledAt      *time.Time
	PackDebitedAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Product struct {
	ID              string
	MentorID        string
	Name            string
	SessionsPerPack int
	ValidityDays    int
}

type OrphanedCalendarEvent struct {
	ID         string
	CalendarID string
	EventID    string
	Reason     string
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
