package memory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"expensecal/internal/core"
)

// SeedFile is the name of the optional seed file read by NewFromFiles.
const SeedFile = "seed_transactions.yaml"

// Store keeps transactions, reminders and exported rows in memory. It backs
// the memory data backend and stands in for the sheet in tests.
type Store struct {
	mu        sync.Mutex
	nextID    int64
	items     map[int64]core.Transaction
	deleted   map[int64]bool
	reminders map[string]struct{}
	rows      []Row
	now       func() time.Time
}

// Row is a transaction exported through Append.
type Row struct {
	Ref         string
	Transaction core.Transaction
}

func New(seed ...core.Transaction) *Store {
	s := &Store{
		items:     make(map[int64]core.Transaction),
		deleted:   make(map[int64]bool),
		reminders: make(map[string]struct{}),
		now:       time.Now,
	}
	for _, tx := range seed {
		if _, err := s.CreateTransaction(context.Background(), tx); err != nil {
			slog.Warn("Skipping invalid seed transaction", "title", tx.Title, "error", err)
		}
	}
	return s
}

type seedEntry struct {
	Title         string `yaml:"title"`
	Amount        string `yaml:"amount"`
	Category      string `yaml:"category"`
	DayOfMonth    string `yaml:"day_of_month"`
	RecurringType string `yaml:"recurring_type"`
	CustomMonths  string `yaml:"custom_months"`
	StartingMonth string `yaml:"starting_month"`
	ReferenceYear int    `yaml:"reference_year"`
	Logo          string `yaml:"logo"`
}

// NewFromFiles builds a store seeded from base/seed_transactions.yaml. A
// missing file yields an empty store; invalid entries are logged and skipped.
func NewFromFiles(base string) *Store {
	data, err := os.ReadFile(filepath.Join(base, SeedFile))
	if err != nil {
		return New()
	}
	seed, err := ParseSeed(data, time.Now())
	if err != nil {
		slog.Warn("Failed to parse seed file", "path", filepath.Join(base, SeedFile), "error", err)
	}
	return New(seed...)
}

// ParseSeed decodes a YAML list of transaction inputs and normalizes them.
// Entries that fail validation are dropped and reported in the error.
func ParseSeed(data []byte, now time.Time) ([]core.Transaction, error) {
	var entries []seedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	var (
		out  []core.Transaction
		errs []error
	)
	for i, e := range entries {
		tx, err := core.NormalizeAt(core.TransactionInput{
			Title:                 e.Title,
			Amount:                e.Amount,
			Category:              e.Category,
			DayOfMonth:            e.DayOfMonth,
			RecurringType:         e.RecurringType,
			CustomRecurringMonths: e.CustomMonths,
			StartingMonth:         e.StartingMonth,
			Logo:                  e.Logo,
			ReferenceYear:         e.ReferenceYear,
		}, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed entry %d: %w", i, err))
			continue
		}
		out = append(out, tx)
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("%d invalid seed entries, first: %w", len(errs), errs[0])
	}
	return out, nil
}

// CreateTransaction stores tx under the next ID.
func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	tx.ID = s.nextID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now().UTC().Truncate(time.Second)
	}
	s.items[tx.ID] = tx
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.items[id]
	if !ok || s.deleted[id] {
		return core.Transaction{}, core.ErrNotFound
	}
	return tx, nil
}

// ListTransactions returns the active transactions ordered by ID.
func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.items))
	for id, tx := range s.items {
		if !s.deleted[id] {
			out = append(out, tx)
		}
	}
	slices.SortFunc(out, func(a, b core.Transaction) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) SoftDeleteTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.items[id]
	if !ok || s.deleted[id] {
		return core.Transaction{}, core.ErrNotFound
	}
	s.deleted[id] = true
	return tx, nil
}

// RecordReminder reports whether the reminder for id on date is new.
func (s *Store) RecordReminder(_ context.Context, id int64, date time.Time) (bool, error) {
	key := fmt.Sprintf("%d@%s", id, date.Format(time.DateOnly))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[key]; ok {
		return false, nil
	}
	s.reminders[key] = struct{}{}
	return true, nil
}

// ReleaseReminder forgets a recorded reminder.
func (s *Store) ReleaseReminder(_ context.Context, id int64, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reminders, fmt.Sprintf("%d@%s", id, date.Format(time.DateOnly)))
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Append records an exported row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := fmt.Sprintf("mem:%d", len(s.rows)+1)
	s.rows = append(s.rows, Row{Ref: ref, Transaction: tx})
	return ref, nil
}

// Remove drops every exported row of transaction id.
func (s *Store) Remove(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.rows)
	s.rows = slices.DeleteFunc(s.rows, func(r Row) bool { return r.Transaction.ID == id })
	if len(s.rows) == before {
		return core.ErrNotFound
	}
	return nil
}

// Rows returns a copy of the exported rows.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows)
}
