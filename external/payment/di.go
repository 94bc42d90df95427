package payment

import (
	"github.com/foxseedlab/mentorpack/internal/config"
	"github.com/foxseedlab/mentorpack/internal/payment"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (payment.Gateway, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPGateway(c.PaymentGatewayURL, c.PaymentGatewayToken), nil
	})
}
