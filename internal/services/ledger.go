package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gastos/internal/core"
)

// Ingest appends one chat message coming from the transport listener.
// Duplicate message IDs are a no-op; the return value reports whether the
// message was new.
func (s *ReviewService) Ingest(ctx context.Context, msg core.ChatMessage) (bool, error) {
	if msg.MessageID == 0 {
		return false, fmt.Errorf("chat message has no message_id")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return false, fmt.Errorf("chat message has no text")
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = s.now()
	}
	return s.storage.AppendMessage(ctx, msg)
}

// ListRecords returns the ledger, most recent expense first.
func (s *ReviewService) ListRecords(ctx context.Context) ([]core.ExpenseRecord, error) {
	return s.storage.ListRecords(ctx)
}

// DeleteRecord removes one ledger record by ID. The record's source message
// stays consumed: a deleted expense cannot be re-synced automatically.
func (s *ReviewService) DeleteRecord(ctx context.Context, id int64) error {
	return s.storage.DeleteRecord(ctx, id)
}

// Balance aggregates committed amounts per budget category. Records with a
// category outside the budget are tolerated but excluded from the report.
func (s *ReviewService) Balance(ctx context.Context) (core.BalanceReport, error) {
	totals, err := s.storage.CategoryTotals(ctx)
	if err != nil {
		return core.BalanceReport{}, fmt.Errorf("aggregate ledger: %w", err)
	}
	return core.NewBalanceReport(s.budget, totals), nil
}

// Budget exposes the static budget for the review surface.
func (s *ReviewService) Budget() core.Budget {
	return s.budget
}

// MessageStats reports how much of the message stream is still pending.
func (s *ReviewService) MessageStats(ctx context.Context) (total, unconsumed int64, err error) {
	return s.storage.MessageStats(ctx)
}

// Watermark returns the last successful reconciliation cutoff.
func (s *ReviewService) Watermark(ctx context.Context) (time.Time, error) {
	return s.storage.Watermark(ctx)
}
