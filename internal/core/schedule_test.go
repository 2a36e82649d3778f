package core

import (
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScheduleOccurrences(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		from, to time.Time
		want     []time.Time
	}{
		{
			name:     "monthly on the 5th",
			schedule: Schedule{DayOfMonth: 5, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryMonth{}},
			from:     day(2025, time.January, 1),
			to:       day(2025, time.April, 30),
			want: []time.Time{
				day(2025, time.January, 5),
				day(2025, time.February, 5),
				day(2025, time.March, 5),
				day(2025, time.April, 5),
			},
		},
		{
			name:     "every three months",
			schedule: Schedule{DayOfMonth: 1, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryNMonths{N: 3}},
			from:     day(2025, time.January, 1),
			to:       day(2025, time.December, 31),
			want: []time.Time{
				day(2025, time.January, 1),
				day(2025, time.April, 1),
				day(2025, time.July, 1),
				day(2025, time.October, 1),
			},
		},
		{
			name:     "day 31 clamps to short months",
			schedule: Schedule{DayOfMonth: 31, StartingMonth: 0, ReferenceYear: 2024, Recurrence: EveryMonth{}},
			from:     day(2024, time.January, 1),
			to:       day(2024, time.May, 31),
			want: []time.Time{
				day(2024, time.January, 31),
				day(2024, time.February, 29),
				day(2024, time.March, 31),
				day(2024, time.April, 30),
				day(2024, time.May, 31),
			},
		},
		{
			name:     "clamping does not drift",
			schedule: Schedule{DayOfMonth: 31, StartingMonth: 1, ReferenceYear: 2025, Recurrence: EveryMonth{}},
			from:     day(2025, time.January, 1),
			to:       day(2025, time.March, 31),
			want: []time.Time{
				day(2025, time.February, 28),
				day(2025, time.March, 31),
			},
		},
		{
			name:     "yearly on a leap day",
			schedule: Schedule{DayOfMonth: 29, StartingMonth: 1, ReferenceYear: 2024, Recurrence: EveryYear{}},
			from:     day(2024, time.January, 1),
			to:       day(2028, time.December, 31),
			want: []time.Time{
				day(2024, time.February, 29),
				day(2025, time.February, 28),
				day(2026, time.February, 28),
				day(2027, time.February, 28),
				day(2028, time.February, 29),
			},
		},
		{
			name:     "weekly",
			schedule: Schedule{DayOfMonth: 1, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryWeek{}},
			from:     day(2025, time.January, 1),
			to:       day(2025, time.January, 31),
			want: []time.Time{
				day(2025, time.January, 1),
				day(2025, time.January, 8),
				day(2025, time.January, 15),
				day(2025, time.January, 22),
				day(2025, time.January, 29),
			},
		},
		{
			name:     "fortnightly",
			schedule: Schedule{DayOfMonth: 1, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryFortnight{}},
			from:     day(2025, time.January, 1),
			to:       day(2025, time.February, 28),
			want: []time.Time{
				day(2025, time.January, 1),
				day(2025, time.January, 15),
				day(2025, time.January, 29),
				day(2025, time.February, 12),
				day(2025, time.February, 26),
			},
		},
		{
			name:     "weekly range starting mid cycle",
			schedule: Schedule{DayOfMonth: 1, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryWeek{}},
			from:     day(2025, time.January, 10),
			to:       day(2025, time.January, 20),
			want:     []time.Time{day(2025, time.January, 15)},
		},
		{
			name:     "custom range starting mid cycle",
			schedule: Schedule{DayOfMonth: 1, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryNMonths{N: 3}},
			from:     day(2025, time.February, 15),
			to:       day(2025, time.August, 1),
			want: []time.Time{
				day(2025, time.April, 1),
				day(2025, time.July, 1),
			},
		},
		{
			name:     "nothing before the anchor",
			schedule: Schedule{DayOfMonth: 10, StartingMonth: 9, ReferenceYear: 2025, Recurrence: EveryMonth{}},
			from:     day(2025, time.January, 1),
			to:       day(2025, time.December, 31),
			want: []time.Time{
				day(2025, time.October, 10),
				day(2025, time.November, 10),
				day(2025, time.December, 10),
			},
		},
		{
			name:     "range entirely before the anchor",
			schedule: Schedule{DayOfMonth: 1, StartingMonth: 5, ReferenceYear: 2025, Recurrence: EveryWeek{}},
			from:     day(2025, time.January, 1),
			to:       day(2025, time.May, 31),
			want:     nil,
		},
		{
			name:     "inverted range",
			schedule: Schedule{DayOfMonth: 1, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryMonth{}},
			from:     day(2025, time.June, 1),
			to:       day(2025, time.January, 1),
			want:     nil,
		},
		{
			name:     "bounds are inclusive by day",
			schedule: Schedule{DayOfMonth: 5, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryMonth{}},
			from:     time.Date(2025, time.March, 5, 18, 30, 0, 0, time.UTC),
			to:       time.Date(2025, time.April, 5, 0, 0, 1, 0, time.UTC),
			want: []time.Time{
				day(2025, time.March, 5),
				day(2025, time.April, 5),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.schedule.Between(tt.from, tt.to)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("occurrences mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScheduleOccurrencesProperties(t *testing.T) {
	recurrences := []Recurrence{EveryWeek{}, EveryFortnight{}, EveryMonth{}, EveryYear{}, EveryNMonths{N: 5}}
	from := day(2023, time.March, 17)
	to := day(2027, time.November, 2)

	for _, rec := range recurrences {
		for _, dom := range []int{1, 15, 28, 29, 30, 31} {
			s := Schedule{DayOfMonth: dom, StartingMonth: 1, ReferenceYear: 2024, Recurrence: rec}
			got := s.Between(from, to)
			if len(got) == 0 {
				t.Fatalf("%s day %d: no occurrences", rec, dom)
			}
			anchor := s.Anchor()
			for i, d := range got {
				if d.Before(from) || d.After(to) || d.Before(anchor) {
					t.Fatalf("%s day %d: %s outside range", rec, dom, d.Format(time.DateOnly))
				}
				if i > 0 && !d.After(got[i-1]) {
					t.Fatalf("%s day %d: not strictly increasing at %d", rec, dom, i)
				}
				if stepMonths(rec) > 0 {
					want := dom
					if last := DaysIn(d.Year(), d.Month()); want > last {
						want = last
					}
					if d.Day() != want {
						t.Fatalf("%s day %d: got day %d in %s", rec, dom, d.Day(), d.Month())
					}
				}
			}
		}
	}
}

func TestScheduleOccurrencesRestartable(t *testing.T) {
	s := Schedule{DayOfMonth: 12, StartingMonth: 3, ReferenceYear: 2025, Recurrence: EveryFortnight{}}
	seq := s.Occurrences(day(2025, time.January, 1), day(2025, time.December, 31))

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second pass differs (-first +second):\n%s", diff)
	}
}

func TestScheduleOccurrencesEarlyBreak(t *testing.T) {
	s := Schedule{DayOfMonth: 1, StartingMonth: 0, ReferenceYear: 2000, Recurrence: EveryWeek{}}
	var got []time.Time
	for d := range s.Occurrences(day(2000, time.January, 1), day(9999, time.December, 31)) {
		got = append(got, d)
		if len(got) == 3 {
			break
		}
	}
	want := []time.Time{day(2000, time.January, 1), day(2000, time.January, 8), day(2000, time.January, 15)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("early break mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduleNext(t *testing.T) {
	s := Schedule{DayOfMonth: 5, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryMonth{}}

	tests := []struct {
		at   time.Time
		want time.Time
	}{
		{day(2024, time.June, 1), day(2025, time.January, 5)},
		{day(2025, time.January, 5), day(2025, time.January, 5)},
		{day(2025, time.February, 6), day(2025, time.March, 5)},
		{day(2026, time.December, 31), day(2027, time.January, 5)},
	}
	for _, tt := range tests {
		got, ok := s.Next(tt.at)
		if !ok || !got.Equal(tt.want) {
			t.Errorf("Next(%s) = %s, %v; want %s", tt.at.Format(time.DateOnly), got.Format(time.DateOnly), ok, tt.want.Format(time.DateOnly))
		}
	}

	if _, ok := (Schedule{}).Next(day(2025, time.January, 1)); ok {
		t.Error("schedule without recurrence should have no next occurrence")
	}
}

func TestScheduleValidate(t *testing.T) {
	valid := Schedule{DayOfMonth: 5, StartingMonth: 0, ReferenceYear: 2025, Recurrence: EveryMonth{}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Schedule)
		field  string
	}{
		{"day zero", func(s *Schedule) { s.DayOfMonth = 0 }, "dayOfMonth"},
		{"day 32", func(s *Schedule) { s.DayOfMonth = 32 }, "dayOfMonth"},
		{"month 12", func(s *Schedule) { s.StartingMonth = 12 }, "startingMonth"},
		{"no year", func(s *Schedule) { s.ReferenceYear = 0 }, "referenceYear"},
		{"no recurrence", func(s *Schedule) { s.Recurrence = nil }, "recurringType"},
		{"custom zero", func(s *Schedule) { s.Recurrence = EveryNMonths{} }, "customRecurringMonths"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestScheduleOccurrencesFarFromAnchor(t *testing.T) {
	tests := []struct {
		name       string
		recurrence Recurrence
		step       int64
		from, to   time.Time
	}{
		{"weekly four centuries on", EveryWeek{}, 7, day(2400, time.January, 1), day(2400, time.January, 31)},
		{"fortnightly three centuries on", EveryFortnight{}, 14, day(2330, time.June, 1), day(2330, time.July, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Schedule{DayOfMonth: 5, StartingMonth: 0, ReferenceYear: 2025, Recurrence: tt.recurrence}
			got := s.Between(tt.from, tt.to)

			span := int64(tt.to.Sub(tt.from).Hours()/24) + 1
			if n := int64(len(got)); n < span/tt.step || n > span/tt.step+1 {
				t.Fatalf("got %d occurrences in %d days, want about %d", n, span, span/tt.step)
			}
			anchor := s.Anchor()
			for i, d := range got {
				if d.Before(tt.from) || d.After(tt.to) {
					t.Errorf("occurrence %v outside [%v, %v]", d, tt.from, tt.to)
				}
				if gap := (d.Unix() - anchor.Unix()) / 86400; gap%tt.step != 0 {
					t.Errorf("occurrence %v is %d days from anchor, not a multiple of %d", d, gap, tt.step)
				}
				if i > 0 && (d.Unix()-got[i-1].Unix())/86400 != tt.step {
					t.Errorf("gap between %v and %v is not %d days", got[i-1], d, tt.step)
				}
			}
		})
	}
}
