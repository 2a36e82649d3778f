// Package core holds the expense domain model: transactions and their
// validation, recurrence schedules and occurrence dates, money amounts,
// categories and the add expense form draft.
package core

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxTitleLength = 200

// maxCustomMonths bounds custom intervals to a century.
const maxCustomMonths = 1200

// TransactionInput holds the raw text fields of an add expense submission.
type TransactionInput struct {
	Title                 string `json:"title"`
	Amount                string `json:"amount"`
	Category              string `json:"category"`
	DayOfMonth            string `json:"dayOfMonth"`
	RecurringType         string `json:"recurringType"`
	CustomRecurringMonths string `json:"customRecurringMonths"`
	StartingMonth         string `json:"startingMonth"`
	Logo                  string `json:"logo"`

	// ReferenceYear anchors the schedule; zero means the year of submission.
	ReferenceYear int `json:"referenceYear,omitempty"`
}

// Transaction is a normalized recurring expense.
type Transaction struct {
	ID        int64
	Title     string
	Amount    Money
	Category  Category
	Schedule  Schedule
	LogoURL   string
	CreatedAt time.Time
}

// Normalize validates in and converts it to a Transaction anchored to the
// current year when in.ReferenceYear is zero.
func Normalize(in TransactionInput) (Transaction, error) {
	return NormalizeAt(in, time.Now())
}

// NormalizeAt is Normalize with an explicit submission time. Fields are
// checked in a fixed order and the first failure is returned as a
// *ValidationError; nothing is partially applied.
func NormalizeAt(in TransactionInput, now time.Time) (Transaction, error) {
	var t Transaction

	t.Title = strings.TrimSpace(in.Title)
	if t.Title == "" {
		return Transaction{}, invalid("title", ErrMissingField, "")
	}
	if len(t.Title) > maxTitleLength {
		return Transaction{}, invalid("title", ErrOutOfRange, truncateRunes(t.Title, 20)+"…")
	}

	cents, err := ParseAmountToCents(in.Amount)
	if err != nil {
		return Transaction{}, invalid("amount", err, in.Amount)
	}
	t.Amount = Money{Cents: cents}

	if t.Category, err = ParseCategory(in.Category); err != nil {
		return Transaction{}, invalid("category", err, in.Category)
	}

	day, err := parseIntField("dayOfMonth", in.DayOfMonth, 1, 31)
	if err != nil {
		return Transaction{}, err
	}

	rt, err := ParseRecurringType(in.RecurringType)
	if err != nil {
		return Transaction{}, invalid("recurringType", err, in.RecurringType)
	}

	customMonths := 0
	if rt == Custom {
		raw := strings.TrimSpace(in.CustomRecurringMonths)
		if raw == "" {
			return Transaction{}, invalid("customRecurringMonths", ErrMissingField, "")
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Transaction{}, invalid("customRecurringMonths", ErrInvalidNumber, raw)
		}
		if n < 1 {
			return Transaction{}, invalid("customRecurringMonths", ErrMissingField, raw)
		}
		if n > maxCustomMonths {
			return Transaction{}, invalid("customRecurringMonths", ErrOutOfRange, raw)
		}
		customMonths = n
	}
	rec, err := NewRecurrence(rt, customMonths)
	if err != nil {
		return Transaction{}, invalid("recurringType", err, in.RecurringType)
	}

	month, err := parseIntField("startingMonth", in.StartingMonth, 0, 11)
	if err != nil {
		return Transaction{}, err
	}

	if t.LogoURL, err = normalizeLogo(in.Logo); err != nil {
		return Transaction{}, invalid("logo", err, in.Logo)
	}

	year := in.ReferenceYear
	if year == 0 {
		year = now.Year()
	}
	t.Schedule = Schedule{
		DayOfMonth:    day,
		StartingMonth: month,
		ReferenceYear: year,
		Recurrence:    rec,
	}
	if err := t.Schedule.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Validate checks a Transaction that did not come through NormalizeAt,
// for example one loaded from storage.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return invalid("title", ErrMissingField, "")
	}
	if err := t.Amount.Validate(); err != nil {
		return invalid("amount", err, t.Amount.String())
	}
	if !t.Category.Valid() {
		return invalid("category", ErrUnknownVariant, string(t.Category))
	}
	return t.Schedule.Validate()
}

// Occurrences yields the dates of t within [start, end].
func (t Transaction) Occurrences(start, end time.Time) []time.Time {
	return t.Schedule.Between(start, end)
}

func parseIntField(field, raw string, lo, hi int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid(field, ErrMissingField, "")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(field, ErrInvalidNumber, raw)
	}
	if n < lo || n > hi {
		return 0, invalid(field, ErrOutOfRange, raw)
	}
	return n, nil
}

func normalizeLogo(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
