package sheets

import (
	"context"
	"time"

	"expensecal/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionWriter exports a transaction to an external sheet.
	TransactionWriter interface {
		Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}

	// TransactionRemover removes an exported transaction from the sheet.
	TransactionRemover interface {
		Remove(ctx context.Context, id int64) error
	}

	// TransactionStore is the persistence the services depend on. It is
	// implemented by storage.SQLiteRepository and memory.Store.
	TransactionStore interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
		SoftDeleteTransaction(ctx context.Context, id int64) (core.Transaction, error)
	}

	// ReminderLog deduplicates occurrence reminders.
	ReminderLog interface {
		RecordReminder(ctx context.Context, id int64, date time.Time) (bool, error)
		ReleaseReminder(ctx context.Context, id int64, date time.Time) error
	}
)
