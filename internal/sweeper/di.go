package sweeper

import (
	"github.com/foxseedlab/mentorpack/internal/calendar"
	"github.com/foxseedlab/mentorpack/internal/config"
	"github.com/foxseedlab/mentorpack/internal/notify"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/foxseedlab/mentorpack/internal/workflow"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Sweeper, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return New(
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[calendar.Service](i),
			do.MustInvoke[notify.Sink](i),
			do.MustInvoke[*workflow.Runner](i),
			Options{GraceWarningWindow: cfg.GraceWarningWindow()},
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*Scheduler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		s := do.MustInvoke[*Sweeper](i)
		return NewScheduler(s.Jobs(cfg.SweepInterval)...), nil
	})
}
