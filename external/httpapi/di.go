package httpapi

import (
	"github.com/foxseedlab/mentorpack/internal/booking"
	"github.com/foxseedlab/mentorpack/internal/config"
	"github.com/foxseedlab/mentorpack/internal/entitlement"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		orchestrator := do.MustInvoke[*booking.Orchestrator](i)
		completions := do.MustInvoke[*entitlement.CompletionHandler](i)
		return NewServer(Services{
			Availability: do.MustInvoke[*booking.AvailabilityCalculator](i),
			Booking:      orchestrator,
			Provisioning: do.MustInvoke[*entitlement.Provisioner](i),
			Refunds:      do.MustInvoke[*entitlement.Refunder](i),
			Completions:  completions,
		}, Options{
			FactsToken:     cfg.FactsToken,
			MetricsEnabled: cfg.MetricsEnabled,
			AccessLog:      cfg.IsDevelopment(),
		}), nil
	})
}
