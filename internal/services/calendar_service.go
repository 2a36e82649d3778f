package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"expensecal/internal/cache"
	"expensecal/internal/calendar"
	"expensecal/internal/core"
)

// MaxRangeDays bounds the ranges accepted by CalendarService.Occurrences.
const MaxRangeDays = 366 * 5

var ErrRangeTooLarge = errors.New("date range too large")

// TransactionLister is the read side of the store.
type TransactionLister interface {
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
}

// CalendarService expands stored transactions into calendar views. Month
// expansions are cached until Invalidate is called or the TTL expires.
type CalendarService struct {
	store  TransactionLister
	months *cache.LRUCache[[]calendar.Entry]
	now    func() time.Time
}

func NewCalendarService(store TransactionLister, cacheSize int, ttl time.Duration) *CalendarService {
	return &CalendarService{
		store:  store,
		months: cache.NewLRUCache[[]calendar.Entry](cacheSize, ttl),
		now:    time.Now,
	}
}

// Cache exposes the month cache so it can be registered for cleanup.
func (s *CalendarService) Cache() *cache.LRUCache[[]calendar.Entry] {
	return s.months
}

// Month returns the grid for the given month with occurrences placed on
// their days.
func (s *CalendarService) Month(ctx context.Context, year int, month time.Month) (calendar.MonthView, error) {
	if month < time.January || month > time.December {
		return calendar.MonthView{}, fmt.Errorf("month %d: %w", month, core.ErrOutOfRange)
	}
	key := fmt.Sprintf("%04d-%02d", year, month)
	entries, err := s.months.GetOrLoad(key, func() ([]calendar.Entry, error) {
		start, end := calendar.GridRange(year, month)
		return s.expand(ctx, start, end)
	})
	if err != nil {
		return calendar.MonthView{}, err
	}
	return calendar.Month(year, month, entries, s.now()), nil
}

// Occurrences lists every occurrence in [from, to].
func (s *CalendarService) Occurrences(ctx context.Context, from, to time.Time) ([]calendar.Entry, error) {
	if to.Before(from) {
		return nil, nil
	}
	if to.Sub(from) > MaxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%s to %s: %w", from.Format(time.DateOnly), to.Format(time.DateOnly), ErrRangeTooLarge)
	}
	return s.expand(ctx, from, to)
}

// Upcoming lists the occurrences in the days starting at from.
func (s *CalendarService) Upcoming(ctx context.Context, from time.Time, days int) ([]calendar.Entry, error) {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return calendar.Upcoming(txs, from, days), nil
}

// WriteICS writes every stored transaction as a recurring iCalendar event.
func (s *CalendarService) WriteICS(ctx context.Context, w io.Writer) error {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	skipped, err := calendar.WriteICS(w, txs, s.now())
	for _, e := range skipped {
		slog.WarnContext(ctx, "Transaction left out of calendar export", "error", e)
	}
	return err
}

// Invalidate drops every cached month.
func (s *CalendarService) Invalidate() {
	s.months.Clear()
}

func (s *CalendarService) expand(ctx context.Context, from, to time.Time) ([]calendar.Entry, error) {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return calendar.Expand(ctx, txs, from, to)
}
