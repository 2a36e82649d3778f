// Package calendar turns normalized transactions into dated entries for
// month grids, JSON listings and iCalendar feeds.
package calendar

import (
	"cmp"
	"context"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"expensecal/internal/core"
)

// parallelThreshold is the transaction count above which Expand fans out.
const parallelThreshold = 64

// Entry is a single dated occurrence of a transaction.
type Entry struct {
	Date          time.Time     `json:"date"`
	AmountCents   int64         `json:"amountCents"`
	Title         string        `json:"title"`
	Category      core.Category `json:"category"`
	TransactionID int64         `json:"transactionId"`
	LogoURL       string        `json:"logoUrl,omitempty"`
}

// Amount returns the entry amount as Money.
func (e Entry) Amount() core.Money {
	return core.Money{Cents: e.AmountCents}
}

// Expand merges the occurrences of txs within [start, end] ordered by date,
// then title, then transaction id.
func Expand(ctx context.Context, txs []core.Transaction, start, end time.Time) ([]Entry, error) {
	if len(txs) <= parallelThreshold {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return sortEntries(expandAll(txs, start, end)), nil
	}

	parts := make([][]Entry, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range txs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = expandOne(txs[i], start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sortEntries(slices.Concat(parts...)), nil
}

// Upcoming returns the entries of txs falling within days days of from,
// from included.
func Upcoming(txs []core.Transaction, from time.Time, days int) []Entry {
	if days < 1 {
		return nil
	}
	return sortEntries(expandAll(txs, from, from.AddDate(0, 0, days-1)))
}

func expandAll(txs []core.Transaction, start, end time.Time) []Entry {
	var out []Entry
	for _, tx := range txs {
		out = append(out, expandOne(tx, start, end)...)
	}
	return out
}

func expandOne(tx core.Transaction, start, end time.Time) []Entry {
	var out []Entry
	for d := range tx.Schedule.Occurrences(start, end) {
		out = append(out, Entry{
			Date:          d,
			AmountCents:   tx.Amount.Cents,
			Title:         tx.Title,
			Category:      tx.Category,
			TransactionID: tx.ID,
			LogoURL:       tx.LogoURL,
		})
	}
	return out
}

func sortEntries(entries []Entry) []Entry {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return cmp.Compare(a.TransactionID, b.TransactionID)
	})
	return entries
}

// Total sums the amounts of entries.
func Total(entries []Entry) core.Money {
	var cents int64
	for _, e := range entries {
		cents += e.AmountCents
	}
	return core.Money{Cents: cents}
}
