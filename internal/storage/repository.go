package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"expensecal/internal/core"

	_ "modernc.org/sqlite"
)

// Sync states of a stored transaction.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// PendingSync is the minimal data needed to queue a sync message.
type PendingSync struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

// CreateTransaction stores tx and returns it with its ID and creation time.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	now := r.now().UTC()
	s := tx.Schedule

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (
			title, amount_cents, category, day_of_month, recurring_type,
			custom_months, starting_month, reference_year, logo_url,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.Title, tx.Amount.Cents, string(tx.Category), s.DayOfMonth, string(s.Type()),
		s.CustomMonths(), s.StartingMonth, s.ReferenceYear, tx.LogoURL,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("read transaction id: %w", err)
	}

	tx.ID = id
	tx.CreatedAt = time.Unix(now.Unix(), 0).UTC()

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"title", tx.Title,
		"amount_cents", tx.Amount.Cents,
		"schedule", tx.Schedule.String())

	return tx, nil
}

const selectColumns = `
	id, title, amount_cents, category, day_of_month, recurring_type,
	custom_months, starting_month, reference_year, logo_url, created_at`

// GetTransaction returns an active transaction by ID.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE id = ? AND deleted_at IS NULL`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return tx, nil
}

// ListTransactions returns all active transactions ordered by ID.
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// SoftDeleteTransaction marks a transaction deleted and returns it as it
// was before deletion.
func (r *SQLiteRepository) SoftDeleteTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	tx, err := r.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	now := r.now().UTC().Unix()
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET deleted_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.Transaction{}, core.ErrNotFound
	}

	slog.InfoContext(ctx, "Transaction soft deleted", "id", id, "title", tx.Title)
	return tx, nil
}

// GetPendingSync returns active transactions not yet synced, oldest first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version, created_at FROM transactions
		WHERE sync_status = ? AND deleted_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`, SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	defer rows.Close()

	var out []PendingSync
	for rows.Next() {
		var p PendingSync
		var created int64
		if err := rows.Scan(&p.ID, &p.Version, &created); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced marks a transaction as successfully synced
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, SyncSynced); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a transaction as having sync errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, SyncError); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// SyncStatus returns the sync state of a transaction, deleted or not.
func (r *SQLiteRepository) SyncStatus(ctx context.Context, id int64) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT sync_status FROM transactions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrNotFound
	}
	return status, err
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ?, updated_at = ? WHERE id = ?`,
		status, r.now().UTC().Unix(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// RecordReminder stores that the occurrence of transaction id on date was
// announced. It reports false when the reminder had already been recorded.
func (r *SQLiteRepository) RecordReminder(ctx context.Context, id int64, date time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reminders (transaction_id, occurrence_date, created_at)
		VALUES (?, ?, ?)`, id, date.Format(time.DateOnly), r.now().UTC().Unix())
	if err != nil {
		return false, fmt.Errorf("record reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record reminder: %w", err)
	}
	return n == 1, nil
}

// ReleaseReminder forgets a recorded reminder so a later run announces it
// again.
func (r *SQLiteRepository) ReleaseReminder(ctx context.Context, id int64, date time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE transaction_id = ? AND occurrence_date = ?`,
		id, date.Format(time.DateOnly))
	if err != nil {
		return fmt.Errorf("release reminder: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx                    core.Transaction
		category, recurring   string
		customMonths, created int64
		day, month, year      int
	)
	if err := s.Scan(&tx.ID, &tx.Title, &tx.Amount.Cents, &category, &day, &recurring,
		&customMonths, &month, &year, &tx.LogoURL, &created); err != nil {
		return core.Transaction{}, err
	}
	rec, err := core.NewRecurrence(core.RecurringType(recurring), int(customMonths))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d recurrence %q: %w", tx.ID, recurring, err)
	}
	tx.Category = core.Category(category)
	tx.CreatedAt = time.Unix(created, 0).UTC()
	tx.Schedule = core.Schedule{
		DayOfMonth:    day,
		StartingMonth: month,
		ReferenceYear: year,
		Recurrence:    rec,
	}
	return tx, nil
}
