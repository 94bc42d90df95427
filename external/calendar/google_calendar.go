package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/auth/credentials"
	"github.com/foxseedlab/mentorpack/internal/calendar"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GoogleCalendar struct {
	service *gcal.Service
}

// NewGoogleCalendar authenticates with a service account JSON key.
func NewGoogleCalendar(ctx context.Context, credentialsJSON string) (calendar.Service, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(credentialsJSON),
		Scopes:          []string{gcal.CalendarScope},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	return NewGoogleCalendarWithOptions(ctx, option.WithAuthCredentials(creds))
}

func NewGoogleCalendarWithOptions(ctx context.Context, opts ...option.ClientOption) (*GoogleCalendar, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &GoogleCalendar{service: svc}, nil
}

func (g *GoogleCalendar) QueryBusy(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.BusyWindow, error) {
	resp, err := g.service.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: start.UTC().Format(time.RFC3339),
		TimeMax: end.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("query free/busy of %s: %w", calendarID, err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, nil
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("free/busy of %s: %s", calendarID, cal.Errors[0].Reason)
	}

	windows := make([]calendar.BusyWindow, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		if p == nil {
			continue
		}
		windows = append(windows, calendar.BusyWindow{
			Start: parseTime(p.Start),
			End:   parseTime(p.End),
		})
	}
	return windows, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, calendarID string, input calendar.EventInput) (string, error) {
	ev := &gcal.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Start:       &gcal.EventDateTime{DateTime: input.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: input.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	if len(input.Metadata) > 0 {
		ev.ExtendedProperties = &gcal.EventExtendedProperties{Private: input.Metadata}
	}
	created, err := g.service.Events.Insert(calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event into %s: %w", calendarID, err)
	}
	slog.Debug("calendar event created", "calendar_id", calendarID, "event_id", created.Id)
	return created.Id, nil
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := g.service.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	if isGone(err) {
		return calendar.ErrEventNotFound
	}
	return fmt.Errorf("delete event %s from %s: %w", eventID, calendarID, err)
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
