package booking

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/foxseedlab/mentorpack/internal/calendar"
	"github.com/foxseedlab/mentorpack/internal/calendar/calendartest"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/foxseedlab/mentorpack/internal/repository/repotest"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func slotStarts(slots []Slot) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start)
	}
	return out
}

func TestComputeSlots_MergedBusySuppressesSlot(t *testing.T) {
	busy := NormalizeBusy([]calendar.BusyWindow{
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(10, 30), End: at(10, 45)},
	})
	slots, truncated := ComputeSlots(at(9, 0), at(12, 0), time.Hour, busy, nil, MaxSlots)
	if truncated {
		t.Fatal("did not expect truncation")
	}
	want := []time.Time{at(9, 0), at(11, 0)}
	if got := slotStarts(slots); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestComputeSlots_DeterministicForShuffledInput(t *testing.T) {
	a := []calendar.BusyWindow{
		{Start: at(13, 0), End: at(14, 0)},
		{Start: at(9, 30), End: at(10, 0)},
		{Start: at(10, 0), End: at(10, 15)},
	}
	b := []calendar.BusyWindow{a[2], a[0], a[1]}

	first, _ := ComputeSlots(at(8, 0), at(16, 0), 30*time.Minute, NormalizeBusy(a), nil, MaxSlots)
	second, _ := ComputeSlots(at(8, 0), at(16, 0), 30*time.Minute, NormalizeBusy(b), nil, MaxSlots)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output, got %v and %v", first, second)
	}
	for i := 1; i < len(first); i++ {
		if !first[i-1].Start.Before(first[i].Start) {
			t.Fatalf("slots not ascending at %d", i)
		}
	}
}

func TestNormalizeBusy(t *testing.T) {
	got := NormalizeBusy([]calendar.BusyWindow{
		{Start: at(12, 0), End: at(13, 0)},
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(10, 0), End: at(10, 30)},
		{Start: at(11, 0), End: at(11, 0)},
		{Start: at(11, 30), End: at(11, 0)},
		{End: at(15, 0)},
	})
	want := []calendar.BusyWindow{
		{Start: at(9, 0), End: at(10, 30)},
		{Start: at(12, 0), End: at(13, 0)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestComputeSlots_RoundsStartUpToSlotBoundary(t *testing.T) {
	slots, _ := ComputeSlots(at(9, 10), at(11, 0), 30*time.Minute, nil, nil, MaxSlots)
	want := []time.Time{at(9, 30), at(10, 0), at(10, 30)}
	if got := slotStarts(slots); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestComputeSlots_Truncates(t *testing.T) {
	start := at(0, 0)
	slots, truncated := ComputeSlots(start, start.Add(MaxWindow), 15*time.Minute, nil, nil, MaxSlots)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if len(slots) != MaxSlots {
		t.Fatalf("expected %d slots, got %d", MaxSlots, len(slots))
	}
}

func TestWithinWorkingHours(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	hours := repository.WorkingHours{
		time.Monday: {{Start: 9 * 60, End: 12 * 60}},
	}

	tests := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{name: "first local hour", start: at(14, 0), want: true},
		{name: "last fitting hour", start: at(16, 0), want: true},
		{name: "ends after interval", start: at(16, 30), want: false},
		{name: "before interval", start: at(13, 0), want: false},
		{name: "other weekday", start: at(14, 0).Add(24 * time.Hour), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := Slot{Start: tt.start, End: tt.start.Add(time.Hour)}
			if got := WithinWorkingHours(slot, ny, hours); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWithinWorkingHours_RejectsSlotCrossingMidnight(t *testing.T) {
	hours := repository.WorkingHours{
		time.Monday:  {{Start: 0, End: 24 * 60}},
		time.Tuesday: {{Start: 0, End: 24 * 60}},
	}
	crossing := Slot{Start: at(23, 30), End: at(23, 30).Add(time.Hour)}
	if WithinWorkingHours(crossing, time.UTC, hours) {
		t.Fatal("expected slot crossing midnight to be rejected")
	}
	endsAtMidnight := Slot{Start: at(23, 0), End: at(23, 0).Add(time.Hour)}
	if !WithinWorkingHours(endsAtMidnight, time.UTC, hours) {
		t.Fatal("expected slot ending at midnight to be accepted")
	}
}

func newCalculator(t *testing.T, mentor repository.Mentor) (*AvailabilityCalculator, *calendartest.Fake) {
	t.Helper()
	store := repotest.New()
	store.PutMentor(mentor)
	cal := calendartest.New()
	return NewAvailabilityCalculator(store, cal), cal
}

func TestCompute_AppliesWorkingHours(t *testing.T) {
	calc, _ := newCalculator(t, repository.Mentor{
		ID:           "mentor-1",
		CalendarID:   "cal-1",
		Timezone:     "UTC",
		WorkingHours: repository.WorkingHours{time.Monday: {{Start: 10 * 60, End: 12 * 60}}},
	})
	res, err := calc.Compute(context.Background(), AvailabilityQuery{MentorID: "mentor-1", Start: at(8, 0), End: at(14, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Time{at(10, 0), at(11, 0)}
	if got := slotStarts(res.Slots); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCompute_FailsOpenOnUnknownTimezone(t *testing.T) {
	calc, cal := newCalculator(t, repository.Mentor{
		ID:           "mentor-1",
		CalendarID:   "cal-1",
		Timezone:     "Mars/Olympus_Mons",
		WorkingHours: repository.WorkingHours{time.Monday: {{Start: 10 * 60, End: 11 * 60}}},
	})
	cal.SetBusy("cal-1", calendar.BusyWindow{Start: at(9, 0), End: at(10, 0)})
	res, err := calc.Compute(context.Background(), AvailabilityQuery{MentorID: "mentor-1", Start: at(8, 0), End: at(11, 0), SlotMinutes: 60})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Time{at(8, 0), at(10, 0)}
	if got := slotStarts(res.Slots); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCompute_NoWorkingHoursMeansUnfiltered(t *testing.T) {
	calc, _ := newCalculator(t, repository.Mentor{ID: "mentor-1", CalendarID: "cal-1", Timezone: "UTC"})
	res, err := calc.Compute(context.Background(), AvailabilityQuery{MentorID: "mentor-1", Start: at(0, 0), End: at(3, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(res.Slots))
	}
}

func TestCompute_Validation(t *testing.T) {
	calc, _ := newCalculator(t, repository.Mentor{ID: "mentor-1", CalendarID: "cal-1"})
	tests := []struct {
		name  string
		query AvailabilityQuery
		want  Code
	}{
		{name: "end before start", query: AvailabilityQuery{MentorID: "mentor-1", Start: at(10, 0), End: at(9, 0)}, want: CodeInvalidTimeRange},
		{name: "window too long", query: AvailabilityQuery{MentorID: "mentor-1", Start: at(0, 0), End: at(0, 0).Add(MaxWindow + time.Hour)}, want: CodeInvalidTimeRange},
		{name: "slot too small", query: AvailabilityQuery{MentorID: "mentor-1", Start: at(9, 0), End: at(10, 0), SlotMinutes: 10}, want: CodeInvalidSlotSize},
		{name: "slot too large", query: AvailabilityQuery{MentorID: "mentor-1", Start: at(9, 0), End: at(10, 0), SlotMinutes: 181}, want: CodeInvalidSlotSize},
		{name: "unknown mentor", query: AvailabilityQuery{MentorID: "mentor-404", Start: at(9, 0), End: at(10, 0)}, want: CodeMentorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Compute(context.Background(), tt.query)
			var bookingErr *Error
			if !errors.As(err, &bookingErr) {
				t.Fatalf("expected booking error, got %v", err)
			}
			if bookingErr.Code != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, bookingErr.Code)
			}
		})
	}
}

func TestCompute_CalendarFailureIsNotABookingError(t *testing.T) {
	calc, cal := newCalculator(t, repository.Mentor{ID: "mentor-1", CalendarID: "cal-1"})
	cal.QueryErr = errors.New("calendar timeout")
	_, err := calc.Compute(context.Background(), AvailabilityQuery{MentorID: "mentor-1", Start: at(9, 0), End: at(10, 0)})
	var bookingErr *Error
	if err == nil || errors.As(err, &bookingErr) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}
