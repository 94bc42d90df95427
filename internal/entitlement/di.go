package entitlement

import (
	"github.com/foxseedlab/mentorpack/internal/config"
	"github.com/foxseedlab/mentorpack/internal/notify"
	"github.com/foxseedlab/mentorpack/internal/payment"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/foxseedlab/mentorpack/internal/workflow"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Provisioner, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewProvisioner(
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[payment.Gateway](i),
			do.MustInvoke[notify.Sink](i),
			do.MustInvoke[*workflow.Runner](i),
			cfg.PaymentProvider,
			cfg.ProvisionOrderFetchAttempts,
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*Refunder, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewRefunder(
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[payment.Gateway](i),
			do.MustInvoke[*workflow.Runner](i),
			cfg.PaymentProvider,
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*CompletionHandler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewCompletionHandler(
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[notify.Sink](i),
			do.MustInvoke[*workflow.Runner](i),
			cfg.GracePeriod(),
		), nil
	})
}
