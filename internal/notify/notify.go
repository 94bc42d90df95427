// Package notify defines the outbound facts the engine emits for downstream
// delivery (email, chat, CRM). Delivery is at-least-once; consumers dedupe on
// Fact.DedupeKey.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/mentorpack/internal/metrics"
)

type FactType string

const (
	FactOnboardingEligible FactType = "onboarding_eligible"
	FactRenewalReminder    FactType = "renewal_reminder"
	FactFinalGraceWarning  FactType = "final_grace_warning"
)

type Fact struct {
	Type       FactType       `json:"type"`
	DedupeKey  string         `json:"dedupeKey"`
	UserID     string         `json:"userId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type Sink interface {
	Send(ctx context.Context, fact Fact) error
}

func OnboardingDedupeKey(orderID string) string {
	return "onboarding:order:" + orderID
}

func RenewalDedupeKey(packID string, sessionNumber int) string {
	return fmt.Sprintf("renewal:pack:%s:%d", packID, sessionNumber)
}

// GraceWarningDedupeKey buckets by hour so repeated sweeps in the same hour
// collapse downstream.
func GraceWarningDedupeKey(seatID string, at time.Time) string {
	return fmt.Sprintf("grace-warning:seat:%s:%s", seatID, at.UTC().Truncate(time.Hour).Format("2006010215"))
}

// MultiSink fans a fact out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, fact Fact) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, fact); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.FactsEmitted.WithLabelValues(string(fact.Type), outcome).Inc()
	return err
}

type LogSink struct{}

func (LogSink) Send(_ context.Context, fact Fact) error {
	slog.Info("fact emitted", "type", fact.Type, "dedupe_key", fact.DedupeKey, "user_id", fact.UserID, "payload", fact.Payload)
	return nil
}
