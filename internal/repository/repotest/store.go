// Package repotest provides an in-memory repository.Repository for tests.
// It enforces the same uniqueness keys and conditional updates as the
// Postgres store.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	mentors  map[string]repository.Mentor
	orders   map[string]repository.Order
	payments map[string]repository.Payment
	packs    map[string]repository.SessionPack
	seats    map[string]repository.SeatReservation
	sessions map[string]repository.Session
	products map[string]repository.Product
	orphans  map[string]repository.OrphanedCalendarEvent

	// OrderHiddenReads makes GetOrder report the order as absent for the
	// first N reads, simulating replication lag right after checkout.
	OrderHiddenReads int
	// CreateSessionErr, when set, is returned by CreateSession.
	CreateSessionErr error

	orderReads int
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		mentors:  make(map[string]repository.Mentor),
		orders:   make(map[string]repository.Order),
		payments: make(map[string]repository.Payment),
		packs:    make(map[string]repository.SessionPack),
		seats:    make(map[string]repository.SeatReservation),
		sessions: make(map[string]repository.Session),
		products: make(map[string]repository.Product),
		orphans:  make(map[string]repository.OrphanedCalendarEvent),
	}
}

func (s *Store) PutMentor(m repository.Mentor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mentors[m.ID] = m
}

func (s *Store) PutOrder(o repository.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *Store) PutProduct(p repository.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) PutPack(p repository.SessionPack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.packs[p.ID] = p
}

func (s *Store) PutSeat(seat repository.SeatReservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seat.ID == "" {
		seat.ID = uuid.NewString()
	}
	s.seats[seat.ID] = seat
}

func (s *Store) PutSession(sess repository.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.sessions[sess.ID] = sess
}

func (s *Store) Payments() []repository.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	return out
}

func (s *Store) Packs() []repository.SessionPack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.SessionPack, 0, len(s.packs))
	for _, p := range s.packs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Seats() []repository.SeatReservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.SeatReservation, 0, len(s.seats))
	for _, seat := range s.seats {
		out = append(out, seat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Sessions() []repository.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (s *Store) OrphanedEvents() []repository.OrphanedCalendarEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.OrphanedCalendarEvent, 0, len(s.orphans))
	for _, o := range s.orphans {
		out = append(out, o)
	}
	return out
}

func (s *Store) SetSessionStatus(sessionID string, status repository.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[sessionID]
	sess.Status = status
	s.sessions[sessionID] = sess
}

func (s *Store) GetMentor(_ context.Context, mentorID string) (*repository.Mentor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mentors[mentorID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) CountActiveSeats(_ context.Context, mentorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, seat := range s.seats {
		if seat.MentorID == mentorID && seat.Holding() {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*repository.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderReads++
	if s.orderReads <= s.OrderHiddenReads {
		return nil, nil
	}
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) MarkOrderPaid(_ context.Context, input repository.MarkOrderPaidInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[input.OrderID]
	if !ok || o.Status == repository.OrderStatusRefunded {
		return nil
	}
	if o.PaidAt == nil {
		paidAt := input.PaidAt
		o.PaidAt = &paidAt
	}
	o.Status = repository.OrderStatusPaid
	o.AmountCents = input.AmountCents
	o.DiscountCents = input.DiscountCents
	o.DiscountCode = input.DiscountCode
	o.Currency = input.Currency
	s.orders[o.ID] = o
	return nil
}

func (s *Store) MarkOrderRefunded(_ context.Context, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil
	}
	o.Status = repository.OrderStatusRefunded
	o.RefundedAt = &at
	s.orders[o.ID] = o
	return nil
}

func (s *Store) CreatePaymentIfAbsent(_ context.Context, input repository.CreatePaymentInput) (*repository.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.Provider == input.Provider && p.ProviderPaymentID == input.ProviderPaymentID {
			return &p, false, nil
		}
	}
	p := repository.Payment{
		ID:                uuid.NewString(),
		OrderID:           input.OrderID,
		Provider:          input.Provider,
		ProviderPaymentID: input.ProviderPaymentID,
		Status:            repository.PaymentStatusCompleted,
		AmountCents:       input.AmountCents,
	}
	s.payments[p.ID] = p
	return &p, true, nil
}

func (s *Store) GetPaymentByProviderID(_ context.Context, provider, providerPaymentID string) (*repository.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.Provider == provider && p.ProviderPaymentID == providerPaymentID {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Store) GetPaymentByOrderID(_ context.Context, orderID string) (*repository.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Store) MarkPaymentRefunded(_ context.Context, paymentID string, refundedAmountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return nil
	}
	p.Status = repository.PaymentStatusRefunded
	p.RefundedAmountCents = refundedAmountCents
	s.payments[p.ID] = p
	return nil
}

func (s *Store) GetPack(_ context.Context, packID string) (*repository.SessionPack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packs[packID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) GetPackByPaymentID(_ context.Context, paymentID string) (*repository.SessionPack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packs {
		if p.PaymentID == paymentID {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Store) CreatePackIfAbsent(_ context.Context, input repository.CreatePackInput) (*repository.SessionPack, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.packs {
		if p.PaymentID == input.PaymentID {
			return &p, false, nil
		}
	}
	p := repository.SessionPack{
		ID:                uuid.NewString(),
		UserID:            input.UserID,
		MentorID:          input.MentorID,
		PaymentID:         input.PaymentID,
		TotalSessions:     input.TotalSessions,
		RemainingSessions: input.TotalSessions,
		Status:            repository.PackStatusActive,
		PurchasedAt:       input.PurchasedAt,
		ExpiresAt:         input.ExpiresAt,
	}
	s.packs[p.ID] = p
	return &p, true, nil
}

func (s *Store) DebitPackForSession(_ context.Context, sessionID string, at time.Time) (*repository.SessionPack, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	p, ok := s.packs[sess.SessionPackID]
	if !ok {
		return nil, false, nil
	}
	if sess.Status != repository.SessionStatusCompleted || sess.PackDebitedAt != nil {
		return &p, false, nil
	}
	sess.PackDebitedAt = &at
	s.sessions[sess.ID] = sess
	p.RemainingSessions, p.Status = repository.DebitBalance(p.RemainingSessions, p.Status)
	s.packs[p.ID] = p
	return &p, true, nil
}

func (s *Store) MarkPackDepleted(_ context.Context, packID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packs[packID]
	if !ok || p.Status != repository.PackStatusActive || p.RemainingSessions != 0 {
		return nil
	}
	p.Status = repository.PackStatusDepleted
	s.packs[p.ID] = p
	return nil
}

func (s *Store) MarkPackRefunded(_ context.Context, packID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packs[packID]
	if !ok || p.Status == repository.PackStatusRefunded {
		return false, nil
	}
	p.Status = repository.PackStatusRefunded
	p.RemainingSessions = 0
	s.packs[p.ID] = p
	return true, nil
}

func (s *Store) ExpireLapsedPacks(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.packs {
		if p.Status == repository.PackStatusActive && !p.ExpiresAt.After(now) {
			p.Status = repository.PackStatusExpired
			s.packs[id] = p
			n++
		}
	}
	return n, nil
}

func (s *Store) ListLapsedPacksHoldingSeats(_ context.Context, now time.Time) ([]repository.SessionPack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.SessionPack
	for _, p := range s.packs {
		if p.Status != repository.PackStatusExpired && p.Status != repository.PackStatusDepleted {
			continue
		}
		if p.ExpiresAt.After(now) {
			continue
		}
		for _, seat := range s.seats {
			if seat.SessionPackID == p.ID && seat.Status != repository.SeatStatusReleased {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *Store) GetSeatByPackID(_ context.Context, packID string) (*repository.SeatReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seat := range s.seats {
		if seat.SessionPackID == packID {
			return &seat, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateSeatIfAbsent(_ context.Context, input repository.CreateSeatInput) (*repository.SeatReservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seat := range s.seats {
		if seat.SessionPackID == input.SessionPackID {
			return &seat, false, nil
		}
	}
	seat := repository.SeatReservation{
		ID:            uuid.NewString(),
		MentorID:      input.MentorID,
		UserID:        input.UserID,
		SessionPackID: input.SessionPackID,
		Status:        repository.SeatStatusActive,
		SeatExpiresAt: input.SeatExpiresAt,
	}
	s.seats[seat.ID] = seat
	return &seat, true, nil
}

func (s *Store) EnterGrace(_ context.Context, packID string, endsAt time.Time) (*repository.SeatReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, seat := range s.seats {
		if seat.SessionPackID != packID {
			continue
		}
		if seat.Status == repository.SeatStatusActive {
			seat.Status = repository.SeatStatusGrace
			if seat.GracePeriodEndsAt == nil {
				seat.GracePeriodEndsAt = &endsAt
			}
			s.seats[id] = seat
		}
		return &seat, nil
	}
	return nil, nil
}

func (s *Store) ReleaseSeat(_ context.Context, seatID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, ok := s.seats[seatID]
	if !ok || seat.Status == repository.SeatStatusReleased {
		return false, nil
	}
	seat.Status = repository.SeatStatusReleased
	seat.ReleasedAt = &at
	s.seats[seatID] = seat
	return true, nil
}

func (s *Store) ListExpiredGraceSeats(_ context.Context, now time.Time) ([]repository.SeatReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.SeatReservation
	for _, seat := range s.seats {
		if seat.Status == repository.SeatStatusGrace && seat.GracePeriodEndsAt != nil && !seat.GracePeriodEndsAt.After(now) {
			out = append(out, seat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GracePeriodEndsAt.Before(*out[j].GracePeriodEndsAt) })
	return out, nil
}

func (s *Store) ListGraceSeatsEndingBetween(_ context.Context, from, until time.Time) ([]repository.SeatReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.SeatReservation
	for _, seat := range s.seats {
		if seat.Status != repository.SeatStatusGrace || seat.GracePeriodEndsAt == nil {
			continue
		}
		if seat.GracePeriodEndsAt.After(from) && !seat.GracePeriodEndsAt.After(until) {
			out = append(out, seat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GracePeriodEndsAt.Before(*out[j].GracePeriodEndsAt) })
	return out, nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *Store) FindScheduledSession(_ context.Context, studentID, packID string, scheduledAt time.Time) (*repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.StudentID == studentID && sess.SessionPackID == packID &&
			sess.ScheduledAt.Equal(scheduledAt) && sess.Status == repository.SessionStatusScheduled {
			return &sess, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateSession(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateSessionErr != nil {
		return nil, s.CreateSessionErr
	}
	for _, sess := range s.sessions {
		if sess.MentorID == input.MentorID && sess.ScheduledAt.Equal(input.ScheduledAt) &&
			sess.Status == repository.SessionStatusScheduled {
			return nil, repository.ErrSlotTaken
		}
	}
	sess := repository.Session{
		ID:              uuid.NewString(),
		MentorID:        input.MentorID,
		StudentID:       input.StudentID,
		SessionPackID:   input.SessionPackID,
		ScheduledAt:     input.ScheduledAt,
		DurationMinutes: input.DurationMinutes,
		Status:          repository.SessionStatusScheduled,
		CalendarEventID: input.CalendarEventID,
	}
	s.sessions[sess.ID] = sess
	return &sess, nil
}

func (s *Store) MarkSessionCompleted(_ context.Context, sessionID string, at time.Time) (*repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	if sess.Status == repository.SessionStatusScheduled {
		sess.Status = repository.SessionStatusCompleted
		sess.CompletedAt = &at
		s.sessions[sess.ID] = sess
	}
	return &sess, nil
}

func (s *Store) CountCompletedSessions(_ context.Context, packID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.SessionPackID == packID && sess.Status == repository.SessionStatusCompleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) HasScheduledSessions(_ context.Context, packID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.SessionPackID == packID && sess.Status == repository.SessionStatusScheduled {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountScheduledSessions(_ context.Context, packID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.SessionPackID == packID && sess.Status == repository.SessionStatusScheduled {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*repository.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) RecordOrphanedEvent(_ context.Context, input repository.RecordOrphanedEventInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orphans {
		if o.CalendarID == input.CalendarID && o.EventID == input.EventID {
			return nil
		}
	}
	o := repository.OrphanedCalendarEvent{
		ID:         uuid.NewString(),
		CalendarID: input.CalendarID,
		EventID:    input.EventID,
		Reason:     input.Reason,
	}
	s.orphans[o.ID] = o
	return nil
}

func (s *Store) ListUnresolvedOrphanedEvents(_ context.Context, limit int) ([]repository.OrphanedCalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.OrphanedCalendarEvent
	for _, o := range s.orphans {
		if o.ResolvedAt == nil {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkOrphanedEventResolved(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orphans[id]
	if !ok {
		return nil
	}
	o.ResolvedAt = &at
	s.orphans[id] = o
	return nil
}

func (s *Store) RecordOrphanedEventAttempt(_ context.Context, id, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orphans[id]
	if !ok {
		return nil
	}
	o.Attempts++
	o.LastError = lastError
	s.orphans[id] = o
	return nil
}
