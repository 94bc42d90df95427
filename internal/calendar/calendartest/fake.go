// Package calendartest provides an in-memory calendar.Service for tests.
package calendartest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foxseedlab/mentorpack/internal/calendar"
)

type Fake struct {
	mu sync.Mutex

	busy    map[string][]calendar.BusyWindow
	events  map[string]calendar.EventInput
	nextID  int
	deletes []string

	QueryErr  error
	CreateErr error
	// DeleteErr, when set, is returned by DeleteEvent and the event is kept.
	DeleteErr error
}

var _ calendar.Service = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		busy:   make(map[string][]calendar.BusyWindow),
		events: make(map[string]calendar.EventInput),
	}
}

func (f *Fake) SetBusy(calendarID string, windows ...calendar.BusyWindow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy[calendarID] = windows
}

func (f *Fake) Events() map[string]calendar.EventInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]calendar.EventInput, len(f.events))
	for k, v := range f.events {
		out[k] = v
	}
	return out
}

func (f *Fake) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *Fake) QueryBusy(_ context.Context, calendarID string, _, _ time.Time) ([]calendar.BusyWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	return append([]calendar.BusyWindow(nil), f.busy[calendarID]...), nil
}

func (f *Fake) CreateEvent(_ context.Context, _ string, input calendar.EventInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("evt-%d", f.nextID)
	f.events[id] = input
	return id, nil
}

func (f *Fake) DeleteEvent(_ context.Context, _ string, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, eventID)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.events[eventID]; !ok {
		return calendar.ErrEventNotFound
	}
	delete(f.events, eventID)
	return nil
}

// PutEvent registers an event created elsewhere, e.g. an orphan.
func (f *Fake) PutEvent(eventID string, input calendar.EventInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[eventID] = input
}
