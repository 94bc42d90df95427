package workflow

import (
	"github.com/foxseedlab/mentorpack/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Runner, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewRunner(RunnerConfig{
			MaxAttempts: cfg.WorkflowMaxAttempts,
			StepTimeout: cfg.WorkflowStepTimeout,
		}), nil
	})
}
