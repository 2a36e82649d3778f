package services

import (
	"fmt"

	"expensecal/internal/core"
)

// LeadTime decides how many days before an occurrence its reminder is sent.
type LeadTime interface {
	Days(s core.Schedule) int
}

// FixedLead sends reminders a fixed number of days ahead.
type FixedLead int

func (f FixedLead) Days(core.Schedule) int { return max(int(f), 0) }

// FractionLead sends reminders a fraction of the recurrence period ahead,
// never less than Min nor more than Max days.
type FractionLead struct {
	Divisor  int
	Min, Max int
}

func (f FractionLead) Days(s core.Schedule) int {
	period := 30
	switch r := s.Recurrence.(type) {
	case core.EveryWeek:
		period = 7
	case core.EveryFortnight:
		period = 14
	case core.EveryYear:
		period = 365
	case core.EveryNMonths:
		period = 30 * r.N
	}
	d := period / max(f.Divisor, 1)
	return min(max(d, f.Min), f.Max)
}

// LeadTimes maps each recurring type to its reminder strategy.
type LeadTimes map[core.RecurringType]LeadTime

// DefaultLeadTimes returns the reminder strategies with lookahead days for
// monthly schedules. Short cycles get short notice, yearly ones at least
// two weeks.
func DefaultLeadTimes(lookahead int) LeadTimes {
	return LeadTimes{
		core.Weekly:      FixedLead(min(lookahead, 1)),
		core.Fortnightly: FixedLead(min(lookahead, 2)),
		core.Monthly:     FixedLead(lookahead),
		core.Custom:      FractionLead{Divisor: 4, Min: lookahead, Max: 30},
		core.Yearly:      FixedLead(max(lookahead, 14)),
	}
}

// For returns the strategy for t.
func (l LeadTimes) For(t core.RecurringType) (LeadTime, error) {
	lt, ok := l[t]
	if !ok {
		return nil, fmt.Errorf("no lead time for recurring type %q", t)
	}
	return lt, nil
}
