package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"expensecal/internal/amqp"
	"expensecal/internal/core"
	"expensecal/internal/sheets/memory"
)

var submittedAt = time.Date(2025, time.January, 10, 9, 30, 0, 0, time.UTC)

func input(title, day, recurring string) core.TransactionInput {
	return core.TransactionInput{
		Title:         title,
		Amount:        "15.49",
		Category:      "subscriptions",
		DayOfMonth:    day,
		RecurringType: recurring,
		StartingMonth: "0",
		ReferenceYear: 2025,
	}
}

func mustTransaction(t *testing.T, in core.TransactionInput) core.Transaction {
	t.Helper()
	tx, err := core.NormalizeAt(in, submittedAt)
	if err != nil {
		t.Fatalf("NormalizeAt(%+v): %v", in, err)
	}
	return tx
}

func seededStore(t *testing.T, ins ...core.TransactionInput) *memory.Store {
	t.Helper()
	var txs []core.Transaction
	for _, in := range ins {
		txs = append(txs, mustTransaction(t, in))
	}
	return memory.New(txs...)
}

type published struct {
	kind    string
	id      int64
	version int64
	title   string
	date    string
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	msgs []published
}

func (f *fakePublisher) record(p published) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, p)
	return nil
}

func (f *fakePublisher) PublishTransactionSync(_ context.Context, id, version int64) error {
	return f.record(published{kind: "sync", id: id, version: version})
}

func (f *fakePublisher) PublishTransactionDelete(_ context.Context, id int64, title string) error {
	return f.record(published{kind: "delete", id: id, title: title})
}

func (f *fakePublisher) PublishOccurrenceDue(_ context.Context, msg *amqp.OccurrenceDueMessage) error {
	return f.record(published{kind: "due", id: msg.TransactionID, title: msg.Title, date: msg.Date})
}

func (f *fakePublisher) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

var errBroker = errors.New("broker unavailable")
