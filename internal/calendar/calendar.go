package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrEventNotFound is returned by DeleteEvent when the event is already gone.
var ErrEventNotFound = errors.New("calendar: event not found")

// BusyWindow is an occupied [Start, End) range. Either bound may be zero
// when the provider returned an unparsable value.
type BusyWindow struct {
	Start time.Time
	End   time.Time
}

type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	// Metadata is stored as private extended properties on the event.
	Metadata map[string]string
}

type Service interface {
	QueryBusy(ctx context.Context, calendarID string, start, end time.Time) ([]BusyWindow, error)
	CreateEvent(ctx context.Context, calendarID string, input EventInput) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}
