package calendar

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"expensecal/internal/core"
)

// Day is one cell of the month grid.
type Day struct {
	Date    time.Time
	InMonth bool
	Today   bool
	Entries []Entry
	Total   core.Money
}

// Week is a Monday to Sunday row of the grid.
type Week [7]Day

// CategoryTotal is the sum of a category's entries within the month.
type CategoryTotal struct {
	Category core.Category
	Total    core.Money
	Count    int
}

// MonthView is the rendered state of a calendar month.
type MonthView struct {
	Year       int
	Month      time.Month
	Weeks      []Week
	Total      core.Money
	ByCategory []CategoryTotal
}

// GridRange returns the first and last day shown by the grid of month: the
// Monday on or before the 1st through the Sunday on or after the last day.
func GridRange(year int, month time.Month) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(year, month, core.DaysIn(year, month), 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, 0, -mondayOffset(first.Weekday()))
	end := last.AddDate(0, 0, 6-mondayOffset(last.Weekday()))
	return start, end
}

// Month lays out entries on the grid of month. Entries outside the grid are
// ignored; entries on leading or trailing days of neighbouring months are
// shown but not counted in the month totals.
func Month(year int, month time.Month, entries []Entry, today time.Time) MonthView {
	start, end := GridRange(year, month)
	view := MonthView{Year: year, Month: month}
	todayKey := today.Format(time.DateOnly)

	byDay := make(map[string][]Entry)
	for _, e := range entries {
		if e.Date.Before(start) || e.Date.After(end) {
			continue
		}
		k := e.Date.Format(time.DateOnly)
		byDay[k] = append(byDay[k], e)
	}

	totals := make(map[core.Category]*CategoryTotal)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 7) {
		var w Week
		for i := range w {
			date := d.AddDate(0, 0, i)
			key := date.Format(time.DateOnly)
			cell := Day{
				Date:    date,
				InMonth: date.Month() == month,
				Today:   key == todayKey,
				Entries: byDay[key],
				Total:   Total(byDay[key]),
			}
			if cell.InMonth {
				view.Total.Cents += cell.Total.Cents
				for _, e := range cell.Entries {
					ct, ok := totals[e.Category]
					if !ok {
						ct = &CategoryTotal{Category: e.Category}
						totals[e.Category] = ct
					}
					ct.Total.Cents += e.AmountCents
					ct.Count++
				}
			}
			w[i] = cell
		}
		view.Weeks = append(view.Weeks, w)
	}

	for _, ct := range totals {
		view.ByCategory = append(view.ByCategory, *ct)
	}
	slices.SortFunc(view.ByCategory, func(a, b CategoryTotal) int {
		if c := cmp.Compare(b.Total.Cents, a.Total.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return view
}

// Prev returns the year and month before the view.
func (v MonthView) Prev() (int, time.Month) {
	t := time.Date(v.Year, v.Month-1, 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

// Next returns the year and month after the view.
func (v MonthView) Next() (int, time.Month) {
	t := time.Date(v.Year, v.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

// Title formats the view as "January 2025".
func (v MonthView) Title() string {
	return fmt.Sprintf("%s %d", v.Month, v.Year)
}

func mondayOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
