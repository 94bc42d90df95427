package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/foxseedlab/mentorpack/internal/repository"
)

// CheckEligibility decides whether userID may book against pack. Checks run
// in a fixed order so the same state always yields the same code. Expiry is
// judged by the clock before status, since status may lag real time until
// the sweeper runs. It returns nil when booking is allowed.
func CheckEligibility(pack *repository.SessionPack, seat *repository.SeatReservation, userID string, scheduledAt *time.Time, now time.Time) *Error {
	if pack == nil || pack.UserID != userID {
		return newError(CodePackNotFound, "session pack not found")
	}
	if !now.Before(pack.ExpiresAt) {
		return newError(CodePackExpired, "session pack expired at %s", pack.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if scheduledAt != nil && !scheduledAt.Before(pack.ExpiresAt) {
		return newError(CodeScheduledAfterExpiration, "requested time is after the pack expires at %s", pack.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if pack.Status != repository.PackStatusActive {
		return newError(CodePackNotActive, "session pack is %s", pack.Status)
	}
	if pack.RemainingSessions <= 0 {
		return newError(CodeNoRemainingSessions, "no sessions remaining in pack")
	}
	if seat == nil || seat.Status != repository.SeatStatusActive {
		return newError(CodeSeatNotActive, "no active seat for this pack")
	}
	return nil
}

type EligibilityStore interface {
	GetPack(ctx context.Context, packID string) (*repository.SessionPack, error)
	GetSeatByPackID(ctx context.Context, packID string) (*repository.SeatReservation, error)
}

// Eligibility is the state a successful check was made against.
type Eligibility struct {
	Pack *repository.SessionPack
	Seat *repository.SeatReservation
}

type Validator struct {
	store EligibilityStore
	now   func() time.Time
}

func NewValidator(store EligibilityStore) *Validator {
	return &Validator{store: store, now: time.Now}
}

// Validate loads the pack and seat and runs CheckEligibility. An ineligible
// request yields a *Error; store failures are returned wrapped.
func (v *Validator) Validate(ctx context.Context, packID, userID string, scheduledAt *time.Time) (*Eligibility, error) {
	pack, err := v.store.GetPack(ctx, packID)
	if err != nil {
		return nil, fmt.Errorf("load pack %s: %w", packID, err)
	}
	var seat *repository.SeatReservation
	if pack != nil && pack.UserID == userID {
		seat, err = v.store.GetSeatByPackID(ctx, packID)
		if err != nil {
			return nil, fmt.Errorf("load seat of pack %s: %w", packID, err)
		}
	}
	if bookingErr := CheckEligibility(pack, seat, userID, scheduledAt, v.now()); bookingErr != nil {
		return nil, bookingErr
	}
	return &Eligibility{Pack: pack, Seat: seat}, nil
}
