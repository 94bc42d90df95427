package booking

import (
	"github.com/foxseedlab/mentorpack/internal/calendar"
	"github.com/foxseedlab/mentorpack/internal/config"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*AvailabilityCalculator, error) {
		repo := do.MustInvoke[repository.Repository](i)
		cal := do.MustInvoke[calendar.Service](i)
		return NewAvailabilityCalculator(repo, cal), nil
	})
	do.Provide(injector, func(i do.Injector) (*Orchestrator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		cal := do.MustInvoke[calendar.Service](i)
		return NewOrchestrator(repo, cal, cfg.SessionDuration()), nil
	})
}
