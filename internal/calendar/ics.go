package calendar

import (
	"fmt"
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"expensecal/internal/core"
)

const productID = "-//expensecal//recurring expenses//EN"

// Rule converts a schedule into an RFC 5545 recurrence rule anchored at the
// schedule's first occurrence. Days past the 28th select the last available
// day up to DayOfMonth, which matches the clamping of Schedule.Occurrences.
func Rule(s core.Schedule) (*rrule.RRule, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	opt := rrule.ROption{
		Dtstart:  s.Anchor(),
		Interval: 1,
	}
	switch r := s.Recurrence.(type) {
	case core.EveryWeek:
		opt.Freq = rrule.WEEKLY
	case core.EveryFortnight:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
	case core.EveryMonth:
		opt.Freq = rrule.MONTHLY
		setMonthDay(&opt, s.DayOfMonth)
	case core.EveryNMonths:
		opt.Freq = rrule.MONTHLY
		opt.Interval = r.N
		setMonthDay(&opt, s.DayOfMonth)
	case core.EveryYear:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{s.StartingMonth + 1}
		setMonthDay(&opt, s.DayOfMonth)
	default:
		return nil, fmt.Errorf("unsupported recurrence %T", r)
	}
	return rrule.NewRRule(opt)
}

func setMonthDay(opt *rrule.ROption, day int) {
	if day <= 28 {
		opt.Bymonthday = []int{day}
		return
	}
	for d := 28; d <= day; d++ {
		opt.Bymonthday = append(opt.Bymonthday, d)
	}
	opt.Bysetpos = []int{-1}
}

// EventUID returns the stable iCalendar UID of a transaction.
func EventUID(id int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("expensecal:transaction:"+strconv.FormatInt(id, 10))).String()
}

// ICS builds a feed with one recurring all-day event per transaction.
// Transactions whose schedule cannot be expressed are skipped and returned
// as errors alongside the calendar.
func ICS(txs []core.Transaction, stamp time.Time) (*ical.Calendar, []error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Recurring expenses")

	var errs []error
	for _, tx := range txs {
		rule, err := Rule(tx.Schedule)
		if err != nil {
			errs = append(errs, fmt.Errorf("transaction %d: %w", tx.ID, err))
			continue
		}
		anchor := tx.Schedule.Anchor()

		ev := cal.AddEvent(EventUID(tx.ID))
		ev.SetDtStampTime(stamp.UTC())
		if !tx.CreatedAt.IsZero() {
			ev.SetCreatedTime(tx.CreatedAt.UTC())
		}
		ev.SetAllDayStartAt(anchor)
		ev.SetAllDayEndAt(anchor.AddDate(0, 0, 1))
		ev.SetSummary(fmt.Sprintf("%s (%s)", tx.Title, tx.Amount))
		ev.SetDescription(fmt.Sprintf("%s, %s, %s", tx.Amount, tx.Category.Label(), tx.Schedule))
		ev.SetProperty(ical.ComponentPropertyCategories, tx.Category.Label())
		ev.AddRrule(rule.OrigOptions.RRuleString())
		if tx.LogoURL != "" {
			ev.SetURL(tx.LogoURL)
		}
	}
	return cal, errs
}

// WriteICS serializes the feed of txs to w.
func WriteICS(w io.Writer, txs []core.Transaction, stamp time.Time) ([]error, error) {
	cal, skipped := ICS(txs, stamp)
	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return skipped, fmt.Errorf("write calendar: %w", err)
	}
	return skipped, nil
}
