package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expensecal/internal/amqp"
	"expensecal/internal/core"
	"expensecal/internal/sheets"
	"expensecal/internal/storage"
)

// SyncStore is the storage side of the sheet sync.
type SyncStore interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	SyncStatus(ctx context.Context, id int64) (string, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// SyncWorker copies stored transactions to the sheet and removes deleted
// ones from it.
type SyncWorker struct {
	store     SyncStore
	sheet     sheets.TransactionWriter
	remover   sheets.TransactionRemover
	batchSize int
}

// NewSyncWorker builds a worker. remover may be nil, in which case delete
// messages are acknowledged without touching the sheet.
func NewSyncWorker(store SyncStore, sheet sheets.TransactionWriter, remover sheets.TransactionRemover, batchSize int) *SyncWorker {
	return &SyncWorker{
		store:     store,
		sheet:     sheet,
		remover:   remover,
		batchSize: max(batchSize, 1),
	}
}

// Handlers returns the AMQP handlers served by the worker.
func (w *SyncWorker) Handlers() amqp.Handlers {
	return amqp.Handlers{
		TransactionSync:   w.HandleSyncMessage,
		TransactionDelete: w.HandleDeleteMessage,
	}
}

// HandleSyncMessage appends the announced transaction to the sheet.
// Transactions already synced or deleted since are skipped.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version)

	status, err := w.store.SyncStatus(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Sync message for unknown transaction", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sync status: %w", err)
	}
	if status == storage.SyncSynced {
		slog.DebugContext(ctx, "Transaction already synced", "id", msg.ID)
		return nil
	}

	tx, err := w.store.GetTransaction(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.InfoContext(ctx, "Transaction deleted before sync", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	return w.syncToSheet(ctx, tx)
}

// HandleDeleteMessage removes a deleted transaction from the sheet. Rows
// that were never exported count as removed.
func (w *SyncWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.TransactionDeleteMessage) error {
	slog.InfoContext(ctx, "Processing delete message", "id", msg.ID, "title", msg.Title)

	if w.remover == nil {
		slog.WarnContext(ctx, "No sheet remover configured, skipping deletion", "id", msg.ID)
		return nil
	}

	err := w.remover.Remove(ctx, msg.ID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		slog.InfoContext(ctx, "Transaction not present in sheet", "id", msg.ID)
		return nil
	case err != nil:
		return fmt.Errorf("remove transaction from sheet: %w", err)
	}

	slog.InfoContext(ctx, "Removed transaction from sheet",
		"id", msg.ID,
		"timestamp", msg.Timestamp)
	return nil
}

// ProcessPending syncs up to limit transactions still waiting for the sheet
// and returns how many were synced. It recovers from lost messages.
func (w *SyncWorker) ProcessPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.store.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	synced := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		tx, err := w.store.GetTransaction(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get transaction", "id", p.ID, "error", err)
			if err := w.store.MarkSyncError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "id", p.ID, "error", err)
			}
			continue
		}
		if err := w.syncToSheet(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", "id", p.ID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

// StartupSyncCheck drains a larger batch of pending transactions when the
// worker starts, covering downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.store.GetPendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending transactions for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}

	synced, err := w.ProcessPending(ctx, len(pending))
	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", len(pending)-synced)
	return err
}

func (w *SyncWorker) syncToSheet(ctx context.Context, tx core.Transaction) error {
	ref, err := w.sheet.Append(ctx, tx)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, tx.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", tx.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	// The row exists now; a failed status update only means a duplicate
	// append on the next pending sweep.
	if err := w.store.MarkSynced(ctx, tx.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced transaction",
		"id", tx.ID,
		"sheet_ref", ref,
		"title", tx.Title,
		"amount_cents", tx.Amount.Cents)
	return nil
}
