package core

import "strings"

// Draft is the immutable state of the add expense form. Transitions go
// through Apply, which returns a new Draft and leaves the receiver untouched.
type Draft struct {
	Title         string
	Amount        string
	Category      string
	DayOfMonth    string
	RecurringType string
	CustomMonths  string
	StartingMonth string
	Logo          string
}

// NewDraft returns the dialog defaults.
func NewDraft() Draft {
	return Draft{
		Amount:        "1.00",
		Category:      string(DefaultCategory),
		DayOfMonth:    "1",
		RecurringType: string(Monthly),
		CustomMonths:  "0",
		StartingMonth: "0",
	}
}

// Action is a single form transition.
type Action interface {
	apply(Draft) Draft
}

type (
	SetTitle         string
	SetAmount        string
	SetCategory      string
	SetDayOfMonth    string
	SetRecurringType string
	SetCustomMonths  string
	SetStartingMonth string
	SetLogo          string
	ClearLogo        struct{}
	Reset            struct{}
)

func (a SetTitle) apply(d Draft) Draft         { d.Title = string(a); return d }
func (a SetAmount) apply(d Draft) Draft        { d.Amount = string(a); return d }
func (a SetCategory) apply(d Draft) Draft      { d.Category = string(a); return d }
func (a SetCustomMonths) apply(d Draft) Draft  { d.CustomMonths = string(a); return d }
func (a SetStartingMonth) apply(d Draft) Draft { d.StartingMonth = string(a); return d }
func (a SetLogo) apply(d Draft) Draft          { d.Logo = string(a); return d }
func (ClearLogo) apply(d Draft) Draft          { d.Logo = ""; return d }
func (Reset) apply(Draft) Draft                { return NewDraft() }

// An empty day falls back to "1", as the dialog's input does.
func (a SetDayOfMonth) apply(d Draft) Draft {
	d.DayOfMonth = string(a)
	if strings.TrimSpace(d.DayOfMonth) == "" {
		d.DayOfMonth = "1"
	}
	return d
}

func (a SetRecurringType) apply(d Draft) Draft {
	d.RecurringType = string(a)
	return d
}

// Apply runs the actions in order.
func (d Draft) Apply(actions ...Action) Draft {
	for _, a := range actions {
		if a != nil {
			d = a.apply(d)
		}
	}
	return d
}

// ShowsCustomMonths reports whether the custom interval field is visible.
func (d Draft) ShowsCustomMonths() bool {
	return strings.EqualFold(strings.TrimSpace(d.RecurringType), string(Custom))
}

// Input converts the draft into a submission for Normalize. The custom
// interval is only carried when the custom variant is selected.
func (d Draft) Input() TransactionInput {
	in := TransactionInput{
		Title:         d.Title,
		Amount:        d.Amount,
		Category:      d.Category,
		DayOfMonth:    d.DayOfMonth,
		RecurringType: d.RecurringType,
		StartingMonth: d.StartingMonth,
		Logo:          d.Logo,
	}
	if d.ShowsCustomMonths() {
		in.CustomRecurringMonths = d.CustomMonths
	}
	return in
}
