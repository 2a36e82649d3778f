package core

import (
	"fmt"
	"iter"
	"slices"
	"time"
)

// Schedule is the canonical recurrence record of a transaction.
type Schedule struct {
	DayOfMonth    int // 1-31, clamped to the month length
	StartingMonth int // 0-11
	ReferenceYear int
	Recurrence    Recurrence
}

// Validate checks the invariants a stored schedule must satisfy.
func (s Schedule) Validate() error {
	if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
		return invalid("dayOfMonth", ErrOutOfRange, fmt.Sprint(s.DayOfMonth))
	}
	if s.StartingMonth < 0 || s.StartingMonth > 11 {
		return invalid("startingMonth", ErrOutOfRange, fmt.Sprint(s.StartingMonth))
	}
	if s.ReferenceYear < 1 || s.ReferenceYear > 9999 {
		return invalid("referenceYear", ErrOutOfRange, fmt.Sprint(s.ReferenceYear))
	}
	if s.Recurrence == nil {
		return invalid("recurringType", ErrMissingField, "")
	}
	if r, ok := s.Recurrence.(EveryNMonths); ok && r.N < 1 {
		return invalid("customRecurringMonths", ErrMissingField, fmt.Sprint(r.N))
	}
	return nil
}

// Type returns the variant of the schedule's recurrence.
func (s Schedule) Type() RecurringType {
	if s.Recurrence == nil {
		return ""
	}
	return s.Recurrence.Type()
}

// CustomMonths returns the interval of a custom schedule and 0 otherwise.
func (s Schedule) CustomMonths() int {
	if r, ok := s.Recurrence.(EveryNMonths); ok {
		return r.N
	}
	return 0
}

// Anchor is the first occurrence: DayOfMonth of StartingMonth in
// ReferenceYear, clamped to the month length.
func (s Schedule) Anchor() time.Time {
	return clampedDate(s.ReferenceYear, s.StartingMonth, s.DayOfMonth)
}

// String describes the schedule, e.g. "every month on day 5 from January 2025".
func (s Schedule) String() string {
	rule := "never"
	if s.Recurrence != nil {
		rule = s.Recurrence.String()
	}
	return fmt.Sprintf("%s on day %d from %s %d", rule, s.DayOfMonth,
		time.Month(s.StartingMonth+1), s.ReferenceYear)
}

// Occurrences yields, in strictly increasing order, every date on which the
// schedule recurs within [rangeStart, rangeEnd]. Bounds are compared by
// calendar day in their own location; yielded dates are UTC midnights.
// The sequence is lazy and can be ranged over any number of times.
func (s Schedule) Occurrences(rangeStart, rangeEnd time.Time) iter.Seq[time.Time] {
	from := truncateDay(rangeStart)
	to := truncateDay(rangeEnd)

	return func(yield func(time.Time) bool) {
		if s.Recurrence == nil || to.Before(from) {
			return
		}
		if days := stepDays(s.Recurrence); days > 0 {
			s.dayStepped(days, from, to, yield)
			return
		}
		if months := stepMonths(s.Recurrence); months > 0 {
			s.monthStepped(months, from, to, yield)
		}
	}
}

// Between collects Occurrences into a slice.
func (s Schedule) Between(rangeStart, rangeEnd time.Time) []time.Time {
	return slices.Collect(s.Occurrences(rangeStart, rangeEnd))
}

// Next returns the first occurrence on or after t.
func (s Schedule) Next(t time.Time) (time.Time, bool) {
	if s.Recurrence == nil {
		return time.Time{}, false
	}
	if anchor := s.Anchor(); truncateDay(t).Before(anchor) {
		return anchor, true
	}
	// Consecutive occurrences are never more than one step plus a month apart.
	horizon := truncateDay(t).AddDate(0, stepMonths(s.Recurrence)+1, 14)
	for d := range s.Occurrences(t, horizon) {
		return d, true
	}
	return time.Time{}, false
}

func (s Schedule) dayStepped(step int, from, to time.Time, yield func(time.Time) bool) {
	d := s.Anchor()
	if from.After(d) {
		// Unix seconds, not Duration, which overflows past ~292 years.
		elapsed := int((from.Unix() - d.Unix()) / 86400)
		k := (elapsed + step - 1) / step
		d = d.AddDate(0, 0, k*step)
	}
	for ; !d.After(to); d = d.AddDate(0, 0, step) {
		if d.Before(from) {
			continue
		}
		if !yield(d) {
			return
		}
	}
}

func (s Schedule) monthStepped(step int, from, to time.Time, yield func(time.Time) bool) {
	offset := 0
	if from.After(s.Anchor()) {
		elapsed := (from.Year()-s.ReferenceYear)*12 + int(from.Month()) - 1 - s.StartingMonth
		offset = (elapsed / step) * step
	}
	for ; ; offset += step {
		d := clampedDate(s.ReferenceYear, s.StartingMonth+offset, s.DayOfMonth)
		if d.After(to) {
			return
		}
		if d.Before(from) {
			continue
		}
		if !yield(d) {
			return
		}
	}
}

// clampedDate returns day of the zero-based month (which may exceed 11) of
// year, clamped to the last day of that month.
func clampedDate(year, month0, day int) time.Time {
	first := time.Date(year, time.Month(month0+1), 1, 0, 0, 0, 0, time.UTC)
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in month of year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
