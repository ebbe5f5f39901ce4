// Package storage persists chat messages, confirmed expense records and the
// sync watermark in SQLite. All timezone normalization happens here: rows
// are written in UTC and come back in the repository's configured location.
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

	"gastos/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width UTC so that string comparison in SQL matches
// chronological order.
const timeLayout = "2006-01-02 15:04:05.000000000"

var ErrRecordNotFound = errors.New("expense record not found")

type Repository struct {
	db  *sql.DB
	loc *time.Location
}

func NewRepository(dbPath string, loc *time.Location) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// The chat listener writes concurrently with the pipeline process.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if loc == nil {
		loc = time.UTC
	}

	return &Repository{db: db, loc: loc}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (r *Repository) decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t.UTC().In(r.loc), nil
}

// AppendMessage stores one inbound chat message. A duplicate message_id is
// a no-op, not an error; the return value reports whether a row was
// actually inserted.
func (r *Repository) AppendMessage(ctx context.Context, msg core.ChatMessage) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (message_id, chat_id, author_name, author_id, text, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ChatID, msg.AuthorName, msg.AuthorID, msg.Text, r.encodeTime(msg.SentAt))
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		slog.DebugContext(ctx, "Duplicate chat message ignored", "message_id", msg.MessageID)
		return false, nil
	}

	slog.InfoContext(ctx, "Chat message stored",
		"message_id", msg.MessageID,
		"author", msg.AuthorName,
		"sent_at", msg.SentAt)
	return true, nil
}

// UnconsumedMessagesSince returns unconsumed messages sent strictly after t,
// oldest first. The ordering is stable (sent_at, then id) so repeated sync
// calls see the batch in the same order.
func (r *Repository) UnconsumedMessagesSince(ctx context.Context, t time.Time) ([]core.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, message_id, chat_id, author_name, author_id, text, sent_at, consumed
		 FROM messages
		 WHERE consumed = 0 AND sent_at > ?
		 ORDER BY sent_at ASC, id ASC`,
		r.encodeTime(t))
	if err != nil {
		return nil, fmt.Errorf("select unconsumed messages: %w", err)
	}
	defer rows.Close()

	var msgs []core.ChatMessage
	for rows.Next() {
		var (
			m        core.ChatMessage
			sentAt   string
			consumed int64
		)
		if err := rows.Scan(&m.ID, &m.MessageID, &m.ChatID, &m.AuthorName, &m.AuthorID, &m.Text, &sentAt, &consumed); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.SentAt, err = r.decodeTime(sentAt); err != nil {
			return nil, err
		}
		m.Consumed = consumed != 0
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// MessageStats returns total and unconsumed message counts.
func (r *Repository) MessageStats(ctx context.Context) (total, unconsumed int64, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN consumed = 0 THEN 1 ELSE 0 END), 0) FROM messages`,
	).Scan(&total, &unconsumed)
	if err != nil {
		return 0, 0, fmt.Errorf("count messages: %w", err)
	}
	return total, unconsumed, nil
}

// Watermark returns the cutoff up to which messages have been folded into
// the ledger.
func (r *Repository) Watermark(ctx context.Context) (time.Time, error) {
	var s string
	err := r.db.QueryRowContext(ctx,
		`SELECT last_synced_at FROM sync_control WHERE id = 1`).Scan(&s)
	if err != nil {
		return time.Time{}, fmt.Errorf("read watermark: %w", err)
	}
	return r.decodeTime(s)
}

// CommitBatch applies a confirmed review batch in one transaction: insert a
// ledger record per entry, mark each source message consumed, then advance
// the watermark to commitTime. Either all three effects land or none do.
//
// Entries whose source message already has a ledger record are skipped, so
// retrying a commit after a crash cannot duplicate records. The watermark
// never moves backwards.
func (r *Repository) CommitBatch(ctx context.Context, entries []core.CategorizedExpense, commitTime time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin commit transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, e := range entries {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM expenses WHERE source_message_id = ?`,
			e.SourceMessageID).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("check existing record for message %d: %w", e.SourceMessageID, err)
		}
		if exists > 0 {
			slog.WarnContext(ctx, "Skipping already-committed expense",
				"source_message_id", e.SourceMessageID)
			continue
		}

		expenseDate := e.SentAt
		if expenseDate.IsZero() {
			expenseDate = commitTime
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO expenses (expense_date, description, amount_cents, category, recorded_at, reported_by, source_message_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.encodeTime(expenseDate), e.Description, e.RawAmount.Cents, e.Category,
			r.encodeTime(commitTime), e.AuthorName, e.SourceMessageID)
		if err != nil {
			return 0, fmt.Errorf("insert expense record: %w", err)
		}
		inserted++

		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET consumed = 1 WHERE message_id = ?`,
			e.SourceMessageID); err != nil {
			return 0, fmt.Errorf("mark message %d consumed: %w", e.SourceMessageID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sync_control SET last_synced_at = ? WHERE id = 1 AND last_synced_at < ?`,
		r.encodeTime(commitTime), r.encodeTime(commitTime)); err != nil {
		return 0, fmt.Errorf("advance watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	slog.InfoContext(ctx, "Review batch committed",
		"entries", len(entries),
		"inserted", inserted,
		"watermark", commitTime)
	return inserted, nil
}

// ListRecords returns all ledger records, most recent expense first.
func (r *Repository) ListRecords(ctx context.Context) ([]core.ExpenseRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, expense_date, description, amount_cents, category, recorded_at, reported_by, source_message_id
		 FROM expenses
		 ORDER BY expense_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("select expense records: %w", err)
	}
	defer rows.Close()

	var records []core.ExpenseRecord
	for rows.Next() {
		var (
			rec                     core.ExpenseRecord
			expenseDate, recordedAt string
			sourceID                sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &expenseDate, &rec.Description, &rec.Amount.Cents,
			&rec.Category, &recordedAt, &rec.ReportedBy, &sourceID); err != nil {
			return nil, fmt.Errorf("scan expense record: %w", err)
		}
		if rec.ExpenseDate, err = r.decodeTime(expenseDate); err != nil {
			return nil, err
		}
		if rec.RecordedAt, err = r.decodeTime(recordedAt); err != nil {
			return nil, err
		}
		if sourceID.Valid {
			id := sourceID.Int64
			rec.SourceMessageID = &id
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expense records: %w", err)
	}
	return records, nil
}

// DeleteRecord removes one ledger record. The source message stays
// consumed, so a deleted expense does not resurface on the next sync.
func (r *Repository) DeleteRecord(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}

	slog.InfoContext(ctx, "Expense record deleted", "id", id)
	return nil
}

// CategoryTotals sums committed amounts grouped by category. Categories are
// not filtered here; the aggregation layer restricts them to the budget.
func (r *Repository) CategoryTotals(ctx context.Context) ([]core.CategoryAmount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, SUM(amount_cents) FROM expenses GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	var totals []core.CategoryAmount
	for rows.Next() {
		var t core.CategoryAmount
		if err := rows.Scan(&t.Name, &t.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}
	return totals, nil
}
