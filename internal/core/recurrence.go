package core

import (
	"fmt"
	"strings"
)

// RecurringType names a recurrence variant as it appears in forms and storage.
type RecurringType string

const (
	Weekly      RecurringType = "weekly"
	Fortnightly RecurringType = "fortnightly"
	Monthly     RecurringType = "monthly"
	Yearly      RecurringType = "yearly"
	Custom      RecurringType = "custom"
)

// RecurringTypes lists the variants in the order the dialog offers them.
func RecurringTypes() []RecurringType {
	return []RecurringType{Weekly, Fortnightly, Monthly, Yearly, Custom}
}

// ParseRecurringType matches s case-insensitively against the known variants.
func ParseRecurringType(s string) (RecurringType, error) {
	t := RecurringType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case Weekly, Fortnightly, Monthly, Yearly, Custom:
		return t, nil
	default:
		return "", ErrUnknownVariant
	}
}

// Label returns the display name of the variant.
func (t RecurringType) Label() string {
	return Category(t).Label()
}

// Recurrence is the sum type of recurrence rules. The concrete types are
// EveryWeek, EveryFortnight, EveryMonth, EveryYear and EveryNMonths.
type Recurrence interface {
	Type() RecurringType
	String() string
	recurrence()
}

type (
	// EveryWeek repeats every 7 days from the anchor date.
	EveryWeek struct{}
	// EveryFortnight repeats every 14 days from the anchor date.
	EveryFortnight struct{}
	// EveryMonth repeats on the day of month every month.
	EveryMonth struct{}
	// EveryYear repeats on the day of month once a year.
	EveryYear struct{}
	// EveryNMonths repeats on the day of month every N months.
	EveryNMonths struct {
		N int
	}
)

func (EveryWeek) Type() RecurringType      { return Weekly }
func (EveryFortnight) Type() RecurringType { return Fortnightly }
func (EveryMonth) Type() RecurringType     { return Monthly }
func (EveryYear) Type() RecurringType      { return Yearly }
func (EveryNMonths) Type() RecurringType   { return Custom }

func (EveryWeek) String() string      { return "every week" }
func (EveryFortnight) String() string { return "every 2 weeks" }
func (EveryMonth) String() string     { return "every month" }
func (EveryYear) String() string      { return "every year" }
func (r EveryNMonths) String() string {
	if r.N == 1 {
		return "every month"
	}
	return fmt.Sprintf("every %d months", r.N)
}

func (EveryWeek) recurrence()      {}
func (EveryFortnight) recurrence() {}
func (EveryMonth) recurrence()     {}
func (EveryYear) recurrence()      {}
func (EveryNMonths) recurrence()   {}

// NewRecurrence builds the rule for t. customMonths is only consulted for
// Custom, where it must be at least 1.
func NewRecurrence(t RecurringType, customMonths int) (Recurrence, error) {
	switch t {
	case Weekly:
		return EveryWeek{}, nil
	case Fortnightly:
		return EveryFortnight{}, nil
	case Monthly:
		return EveryMonth{}, nil
	case Yearly:
		return EveryYear{}, nil
	case Custom:
		if customMonths < 1 {
			return nil, ErrMissingField
		}
		return EveryNMonths{N: customMonths}, nil
	default:
		return nil, ErrUnknownVariant
	}
}

// stepDays returns the day interval for day-stepped rules, 0 otherwise.
func stepDays(r Recurrence) int {
	switch r.(type) {
	case EveryWeek:
		return 7
	case EveryFortnight:
		return 14
	default:
		return 0
	}
}

// stepMonths returns the month interval for month-stepped rules, 0 otherwise.
func stepMonths(r Recurrence) int {
	switch r := r.(type) {
	case EveryMonth:
		return 1
	case EveryYear:
		return 12
	case EveryNMonths:
		return r.N
	default:
		return 0
	}
}
