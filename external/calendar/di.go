package calendar

import (
	"context"

	"github.com/foxseedlab/mentorpack/internal/calendar"
	"github.com/foxseedlab/mentorpack/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (calendar.Service, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewGoogleCalendar(context.Background(), c.GoogleCalendarCredentialsJSON)
	})
}
