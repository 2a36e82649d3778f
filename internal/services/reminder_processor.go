package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expensecal/internal/amqp"
	"expensecal/internal/calendar"
	"expensecal/internal/core"
	"expensecal/internal/sheets"
)

// DuePublisher announces occurrences that are coming up.
type DuePublisher interface {
	PublishOccurrenceDue(ctx context.Context, msg *amqp.OccurrenceDueMessage) error
}

// ReminderStore lists transactions and remembers which reminders went out.
type ReminderStore interface {
	TransactionLister
	sheets.ReminderLog
}

// ReminderProcessor announces each upcoming occurrence once, ahead of its
// date by the lead time of its recurring type.
type ReminderProcessor struct {
	store     ReminderStore
	publisher DuePublisher
	leads     LeadTimes
}

// NewReminderProcessor builds a processor. A nil publisher only logs the
// reminders it would send.
func NewReminderProcessor(store ReminderStore, publisher DuePublisher, leads LeadTimes) *ReminderProcessor {
	return &ReminderProcessor{store: store, publisher: publisher, leads: leads}
}

// ProcessResult summarizes a ProcessDue run.
type ProcessResult struct {
	Sent    int
	Skipped int
	Failed  int
}

// ProcessDue sends reminders for occurrences between now and each
// transaction's lead time. Reminders already sent are skipped; failed ones
// are released so the next run retries them.
func (p *ReminderProcessor) ProcessDue(ctx context.Context, now time.Time) (ProcessResult, error) {
	var res ProcessResult

	txs, err := p.store.ListTransactions(ctx)
	if err != nil {
		return res, fmt.Errorf("list transactions: %w", err)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		lead, err := p.leads.For(tx.Schedule.Type())
		if err != nil {
			slog.WarnContext(ctx, "Skipping transaction without lead time", "id", tx.ID, "error", err)
			res.Skipped++
			continue
		}

		for _, e := range calendar.Upcoming([]core.Transaction{tx}, today, lead.Days(tx.Schedule)+1) {
			switch sent, err := p.remind(ctx, e); {
			case err != nil:
				slog.ErrorContext(ctx, "Failed to send reminder",
					"transaction_id", e.TransactionID,
					"date", e.Date.Format(time.DateOnly),
					"error", err)
				res.Failed++
			case sent:
				res.Sent++
			default:
				res.Skipped++
			}
		}
	}

	slog.InfoContext(ctx, "Reminder run finished",
		"sent", res.Sent, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (p *ReminderProcessor) remind(ctx context.Context, e calendar.Entry) (bool, error) {
	fresh, err := p.store.RecordReminder(ctx, e.TransactionID, e.Date)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	msg := &amqp.OccurrenceDueMessage{
		TransactionID: e.TransactionID,
		Date:          e.Date.Format(time.DateOnly),
		Title:         e.Title,
		AmountCents:   e.AmountCents,
		Category:      string(e.Category),
	}

	if p.publisher == nil {
		slog.InfoContext(ctx, "Occurrence due",
			"transaction_id", msg.TransactionID,
			"date", msg.Date,
			"title", msg.Title,
			"amount", e.Amount().String())
		return true, nil
	}

	if err := p.publisher.PublishOccurrenceDue(ctx, msg); err != nil {
		if rerr := p.store.ReleaseReminder(ctx, e.TransactionID, e.Date); rerr != nil {
			slog.ErrorContext(ctx, "Failed to release reminder", "transaction_id", e.TransactionID, "error", rerr)
		}
		return false, fmt.Errorf("publish reminder: %w", err)
	}
	return true, nil
}
