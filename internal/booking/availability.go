package booking

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/foxseedlab/mentorpack/internal/calendar"
	"github.com/foxseedlab/mentorpack/internal/repository"
)

const (
	DefaultSlotMinutes = 60
	MinSlotMinutes     = 15
	MaxSlotMinutes     = 180
	MaxWindow          = 31 * 24 * time.Hour
	MaxSlots           = 500

	minutesPerDay = 24 * 60
)

type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type AvailabilityQuery struct {
	MentorID    string
	Start       time.Time
	End         time.Time
	SlotMinutes int
}

type AvailabilityResult struct {
	Slots     []Slot `json:"slots"`
	Truncated bool   `json:"truncated"`
}

// NormalizeBusy drops malformed windows, then sorts and merges overlapping
// or touching windows into a minimal disjoint ascending set.
func NormalizeBusy(raw []calendar.BusyWindow) []calendar.BusyWindow {
	valid := make([]calendar.BusyWindow, 0, len(raw))
	for _, w := range raw {
		if w.Start.IsZero() || w.End.IsZero() || !w.End.After(w.Start) {
			continue
		}
		valid = append(valid, w)
	}
	slices.SortFunc(valid, func(a, b calendar.BusyWindow) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	merged := make([]calendar.BusyWindow, 0, len(valid))
	for _, w := range valid {
		if n := len(merged); n > 0 && !w.Start.After(merged[n-1].End) {
			if w.End.After(merged[n-1].End) {
				merged[n-1].End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// firstSlotStart rounds start up to the next multiple of slot counted from
// the Unix epoch.
func firstSlotStart(start time.Time, slot time.Duration) time.Time {
	n := start.UnixNano()
	size := slot.Nanoseconds()
	rem := n % size
	if rem < 0 {
		rem += size
	}
	if rem != 0 {
		n += size - rem
	}
	return time.Unix(0, n).UTC()
}

// ComputeSlots walks slot boundaries from the first aligned boundary at or
// after start up to end-slot, skipping slots that overlap busy. busy must be
// normalized. accept, when non-nil, applies an extra filter. Collection stops
// at limit and the second result reports whether it did.
func ComputeSlots(start, end time.Time, slot time.Duration, busy []calendar.BusyWindow, accept func(Slot) bool, limit int) ([]Slot, bool) {
	slots := make([]Slot, 0)
	if slot <= 0 || !end.After(start) {
		return slots, false
	}
	i := 0
	for t := firstSlotStart(start, slot); !t.Add(slot).After(end); t = t.Add(slot) {
		s := Slot{Start: t, End: t.Add(slot)}
		for i < len(busy) && !busy[i].End.After(s.Start) {
			i++
		}
		if i < len(busy) && busy[i].Start.Before(s.End) {
			continue
		}
		if accept != nil && !accept(s) {
			continue
		}
		if len(slots) == limit {
			return slots, true
		}
		slots = append(slots, s)
	}
	return slots, false
}

// WithinWorkingHours reports whether slot lies inside one working interval
// of its local weekday. Slots crossing local midnight are rejected.
func WithinWorkingHours(slot Slot, loc *time.Location, hours repository.WorkingHours) bool {
	local := slot.Start.In(loc)
	startMin := local.Hour()*60 + local.Minute()
	endMin := startMin + int(slot.End.Sub(slot.Start)/time.Minute)
	if endMin > minutesPerDay {
		return false
	}
	for _, iv := range hours[local.Weekday()] {
		if iv.Start <= startMin && endMin <= iv.End {
			return true
		}
	}
	return false
}

// workingHoursFilter returns nil when the filter does not apply. A mentor
// without both timezone and hours, or with an unknown timezone, is
// deliberately left unfiltered.
func workingHoursFilter(mentor *repository.Mentor) func(Slot) bool {
	if !mentor.HasWorkingHours() {
		return nil
	}
	loc, err := time.LoadLocation(mentor.Timezone)
	if err != nil {
		slog.Warn("mentor timezone cannot be loaded; showing unfiltered slots",
			"mentor_id", mentor.ID, "timezone", mentor.Timezone, "error", err)
		return nil
	}
	return func(s Slot) bool {
		return WithinWorkingHours(s, loc, mentor.WorkingHours)
	}
}

type AvailabilityStore interface {
	GetMentor(ctx context.Context, mentorID string) (*repository.Mentor, error)
}

type AvailabilityCalculator struct {
	store    AvailabilityStore
	calendar calendar.Service
}

func NewAvailabilityCalculator(store AvailabilityStore, cal calendar.Service) *AvailabilityCalculator {
	return &AvailabilityCalculator{store: store, calendar: cal}
}

func (q *AvailabilityQuery) validate() *Error {
	if q.Start.IsZero() || q.End.IsZero() || !q.End.After(q.Start) {
		return newError(CodeInvalidTimeRange, "end must be after start")
	}
	if q.End.Sub(q.Start) > MaxWindow {
		return newError(CodeInvalidTimeRange, "window must not exceed %d days", int(MaxWindow/(24*time.Hour)))
	}
	if q.SlotMinutes == 0 {
		q.SlotMinutes = DefaultSlotMinutes
	}
	if q.SlotMinutes < MinSlotMinutes || q.SlotMinutes > MaxSlotMinutes {
		return newError(CodeInvalidSlotSize, "slot size must be between %d and %d minutes", MinSlotMinutes, MaxSlotMinutes)
	}
	return nil
}

// Compute lists open slots for a mentor. It is read-only and takes no locks.
func (c *AvailabilityCalculator) Compute(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error) {
	if bookingErr := q.validate(); bookingErr != nil {
		return nil, bookingErr
	}
	mentor, err := c.store.GetMentor(ctx, q.MentorID)
	if err != nil {
		return nil, fmt.Errorf("load mentor %s: %w", q.MentorID, err)
	}
	if mentor == nil {
		return nil, newError(CodeMentorNotFound, "mentor %s not found", q.MentorID)
	}
	if mentor.CalendarID == "" {
		return nil, newError(CodeCalendarNotConnected, "mentor has no connected calendar")
	}

	raw, err := c.calendar.QueryBusy(ctx, mentor.CalendarID, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("query busy windows: %w", err)
	}
	busy := NormalizeBusy(raw)
	slot := time.Duration(q.SlotMinutes) * time.Minute
	slots, truncated := ComputeSlots(q.Start, q.End, slot, busy, workingHoursFilter(mentor), MaxSlots)
	return &AvailabilityResult{Slots: slots, Truncated: truncated}, nil
}
