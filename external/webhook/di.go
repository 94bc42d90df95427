package webhook

import (
	"github.com/foxseedlab/mentorpack/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*HTTPSender, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPSender(c.NotifyWebhookURL), nil
	})
}
