package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foxseedlab/mentorpack/internal/calendar"
	"google.golang.org/api/option"
)

func newTestCalendar(t *testing.T, handler http.HandlerFunc) *GoogleCalendar {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	g, err := NewGoogleCalendarWithOptions(context.Background(),
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("failed to create calendar: %v", err)
	}
	return g
}

func TestQueryBusy_ParsesWindows(t *testing.T) {
	g := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/freeBusy" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["timeMin"] != "2026-03-02T09:00:00Z" {
			t.Fatalf("unexpected timeMin: %v", req["timeMin"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"calendars":{"cal-1":{"busy":[
			{"start":"2026-03-02T10:00:00Z","end":"2026-03-02T11:00:00Z"},
			{"start":"garbage","end":"2026-03-02T12:00:00Z"}
		]}}}`))
	})

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	windows, err := g.QueryBusy(context.Background(), "cal-1", start, start.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if !windows[0].Start.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", windows[0].Start)
	}
	if !windows[1].Start.IsZero() {
		t.Fatalf("expected zero start for unparsable value, got %s", windows[1].Start)
	}
}

func TestCreateEvent_SendsMetadata(t *testing.T) {
	g := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/calendars/cal-1/events" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var ev struct {
			ExtendedProperties struct {
				Private map[string]string `json:"private"`
			} `json:"extendedProperties"`
		}
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if ev.ExtendedProperties.Private["sessionPackId"] != "pack-1" {
			t.Fatalf("missing private metadata: %+v", ev.ExtendedProperties.Private)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-1"}`))
	})

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	id, err := g.CreateEvent(context.Background(), "cal-1", calendar.EventInput{
		Summary:  "Mentoring session",
		Start:    start,
		End:      start.Add(time.Hour),
		Metadata: map[string]string{"sessionPackId": "pack-1", "studentId": "user-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "evt-1" {
		t.Fatalf("expected evt-1, got %q", id)
	}
}

func TestDeleteEvent_MapsGoneToNotFound(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		g := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				t.Fatalf("unexpected method: %s", r.Method)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
		})
		err := g.DeleteEvent(context.Background(), "cal-1", "evt-1")
		if !errors.Is(err, calendar.ErrEventNotFound) {
			t.Fatalf("status %d: expected ErrEventNotFound, got %v", status, err)
		}
	}
}

func TestDeleteEvent_PropagatesServerErrors(t *testing.T) {
	g := newTestCalendar(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	err := g.DeleteEvent(context.Background(), "cal-1", "evt-1")
	if err == nil || errors.Is(err, calendar.ErrEventNotFound) {
		t.Fatalf("expected a plain error, got %v", err)
	}
}
