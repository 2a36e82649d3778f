package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expensecal/internal/core"
	"expensecal/internal/sheets"
)

// SyncPublisher announces stored changes to the sheet sync worker.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, id, version int64) error
	PublishTransactionDelete(ctx context.Context, id int64, title string) error
}

// TransactionService orchestrates transaction changes across the store and
// the message broker.
type TransactionService struct {
	store     sheets.TransactionStore
	publisher SyncPublisher
	onChange  []func()
	now       func() time.Time
}

// NewTransactionService builds the service. publisher may be nil, in which
// case changes stay local. onChange callbacks run after every successful
// create or delete.
func NewTransactionService(store sheets.TransactionStore, publisher SyncPublisher, onChange ...func()) *TransactionService {
	return &TransactionService{
		store:     store,
		publisher: publisher,
		onChange:  onChange,
		now:       time.Now,
	}
}

// Create normalizes in, stores the transaction and queues it for sync.
// Validation failures are returned unwrapped so callers can inspect them.
func (s *TransactionService) Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	tx, err := core.NormalizeAt(in, s.now())
	if err != nil {
		return core.Transaction{}, err
	}

	saved, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"id", saved.ID,
		"title", saved.Title,
		"amount", saved.Amount.String(),
		"category", string(saved.Category),
		"schedule", saved.Schedule.String())

	// New transactions start at version 1.
	if s.publisher != nil {
		if err := s.publisher.PublishTransactionSync(ctx, saved.ID, 1); err != nil {
			slog.ErrorContext(ctx, "Failed to publish sync message", "id", saved.ID, "error", err)
		}
	} else {
		slog.DebugContext(ctx, "No publisher configured, skipping sync message", "id", saved.ID)
	}

	s.changed()
	return saved, nil
}

// Delete soft deletes a transaction and returns it as it was.
func (s *TransactionService) Delete(ctx context.Context, id int64) (core.Transaction, error) {
	if id <= 0 {
		return core.Transaction{}, fmt.Errorf("delete transaction %d: %w", id, core.ErrNotFound)
	}
	tx, err := s.store.SoftDeleteTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction %d: %w", id, err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishTransactionDelete(ctx, tx.ID, tx.Title); err != nil {
			slog.ErrorContext(ctx, "Failed to publish delete message", "id", tx.ID, "error", err)
		}
	}

	s.changed()
	return tx, nil
}

func (s *TransactionService) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) List(ctx context.Context) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// IsNotFound reports whether err means the transaction does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}

func (s *TransactionService) changed() {
	for _, fn := range s.onChange {
		fn()
	}
}
