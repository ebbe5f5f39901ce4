package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gastos/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "gastos.db"), time.UTC)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testMessage(id int64, text string, sentAt time.Time) core.ChatMessage {
	return core.ChatMessage{
		MessageID:  id,
		ChatID:     -100,
		AuthorName: "Maria",
		AuthorID:   7,
		Text:       text,
		SentAt:     sentAt,
	}
}

func testEntry(sourceID int64, cents int64, category string, sentAt time.Time) core.CategorizedExpense {
	return core.CategorizedExpense{
		CandidateExpense: core.CandidateExpense{
			SourceMessageID: sourceID,
			AuthorName:      "Maria",
			Description:     "gasto de teste",
			Quantity:        1,
			UnitAmount:      core.Money{Cents: cents},
			RawAmount:       core.Money{Cents: cents},
			SentAt:          sentAt,
		},
		Category: category,
	}
}

func TestAppendMessageDeduplicates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sentAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	inserted, err := repo.AppendMessage(ctx, testMessage(100, "R$ 50,00 taxi", sentAt))
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if !inserted {
		t.Fatal("first insert reported as duplicate")
	}

	inserted, err = repo.AppendMessage(ctx, testMessage(100, "R$ 50,00 taxi", sentAt))
	if err != nil {
		t.Fatalf("duplicate AppendMessage: %v", err)
	}
	if inserted {
		t.Fatal("duplicate message_id inserted a second row")
	}

	total, unconsumed, err := repo.MessageStats(ctx)
	if err != nil {
		t.Fatalf("MessageStats: %v", err)
	}
	if total != 1 || unconsumed != 1 {
		t.Fatalf("stats = (%d, %d), want (1, 1)", total, unconsumed)
	}
}

func TestUnconsumedMessagesSince(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{0, time.Minute, 2 * time.Minute} {
		if _, err := repo.AppendMessage(ctx, testMessage(int64(200+i), "msg", base.Add(offset))); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	// Strictly-after semantics: the message at the cutoff is excluded.
	msgs, err := repo.UnconsumedMessagesSince(ctx, base)
	if err != nil {
		t.Fatalf("UnconsumedMessagesSince: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].MessageID != 201 || msgs[1].MessageID != 202 {
		t.Fatalf("order = %d, %d; want oldest first", msgs[0].MessageID, msgs[1].MessageID)
	}

	msgs, err = repo.UnconsumedMessagesSince(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("UnconsumedMessagesSince: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
}

func TestWatermarkSeed(t *testing.T) {
	repo := newTestRepo(t)

	wm, err := repo.Watermark(context.Background())
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !wm.Equal(want) {
		t.Fatalf("seed watermark = %v, want %v", wm, want)
	}
}

func TestCommitBatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sentAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	commitTime := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	for _, id := range []int64{300, 301} {
		if _, err := repo.AppendMessage(ctx, testMessage(id, "gasto", sentAt)); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	entries := []core.CategorizedExpense{
		testEntry(300, 50000, "Serviços", sentAt),
		testEntry(301, 30000, "Logística", sentAt),
	}
	inserted, err := repo.CommitBatch(ctx, entries, commitTime)
	if err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("inserted = %d, want 2", inserted)
	}

	// Source messages are consumed.
	_, unconsumed, err := repo.MessageStats(ctx)
	if err != nil {
		t.Fatalf("MessageStats: %v", err)
	}
	if unconsumed != 0 {
		t.Fatalf("unconsumed = %d, want 0", unconsumed)
	}

	// Watermark advanced to the commit time.
	wm, err := repo.Watermark(ctx)
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if !wm.Equal(commitTime) {
		t.Fatalf("watermark = %v, want %v", wm, commitTime)
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec.SourceMessageID == nil {
			t.Fatal("record missing source message link")
		}
		if !rec.RecordedAt.Equal(commitTime) {
			t.Fatalf("recorded_at = %v, want %v", rec.RecordedAt, commitTime)
		}
		if !rec.ExpenseDate.Equal(sentAt) {
			t.Fatalf("expense_date = %v, want message sent time %v", rec.ExpenseDate, sentAt)
		}
	}
}

func TestCommitBatchRetryIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sentAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, err := repo.AppendMessage(ctx, testMessage(400, "gasto", sentAt)); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	entries := []core.CategorizedExpense{testEntry(400, 10000, "Serviços", sentAt)}

	if _, err := repo.CommitBatch(ctx, entries, sentAt.Add(time.Hour)); err != nil {
		t.Fatalf("first CommitBatch: %v", err)
	}
	inserted, err := repo.CommitBatch(ctx, entries, sentAt.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("retried CommitBatch: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("retry inserted %d records, want 0", inserted)
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records after retry, want 1", len(records))
	}
}

func TestCommitBatchWatermarkNeverMovesBackwards(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sentAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, err := repo.AppendMessage(ctx, testMessage(500, "gasto", sentAt)); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	later := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	if _, err := repo.CommitBatch(ctx, []core.CategorizedExpense{testEntry(500, 1000, "Serviços", sentAt)}, later); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	earlier := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	if _, err := repo.CommitBatch(ctx, nil, earlier); err != nil {
		t.Fatalf("empty CommitBatch: %v", err)
	}

	wm, err := repo.Watermark(ctx)
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if !wm.Equal(later) {
		t.Fatalf("watermark = %v, moved backwards from %v", wm, later)
	}
}

func TestDeleteRecord(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sentAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, err := repo.AppendMessage(ctx, testMessage(600, "gasto", sentAt)); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := repo.CommitBatch(ctx, []core.CategorizedExpense{testEntry(600, 1000, "Serviços", sentAt)}, sentAt.Add(time.Hour)); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	records, err := repo.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if err := repo.DeleteRecord(ctx, records[0].ID); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if err := repo.DeleteRecord(ctx, records[0].ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("second delete error = %v, want ErrRecordNotFound", err)
	}

	// The deleted expense's source message stays consumed and does not
	// resurface on the next sync.
	msgs, err := repo.UnconsumedMessagesSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("UnconsumedMessagesSince: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("deleted record's message resurfaced: %d unconsumed", len(msgs))
	}
}

func TestCategoryTotals(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sentAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	entries := []core.CategorizedExpense{
		testEntry(700, 10000, "Serviços", sentAt),
		testEntry(701, 5000, "Serviços", sentAt),
		testEntry(702, 2500, "Materiais", sentAt),
	}
	for i, e := range entries {
		if _, err := repo.AppendMessage(ctx, testMessage(e.SourceMessageID, "gasto", sentAt.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	if _, err := repo.CommitBatch(ctx, entries, sentAt.Add(time.Hour)); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	totals, err := repo.CategoryTotals(ctx)
	if err != nil {
		t.Fatalf("CategoryTotals: %v", err)
	}
	got := make(map[string]int64, len(totals))
	for _, tot := range totals {
		got[tot.Name] = tot.Amount.Cents
	}
	if got["Serviços"] != 15000 || got["Materiais"] != 2500 {
		t.Fatalf("totals = %v", got)
	}
}

func TestTimezoneAppliedOnRead(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	repo, err := NewRepository(filepath.Join(t.TempDir(), "gastos.db"), loc)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	sentAt := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	if _, err := repo.AppendMessage(ctx, testMessage(800, "gasto", sentAt)); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := repo.UnconsumedMessagesSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("UnconsumedMessagesSince: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].SentAt.Location().String() != "America/Sao_Paulo" {
		t.Fatalf("location = %v, want America/Sao_Paulo", msgs[0].SentAt.Location())
	}
	if !msgs[0].SentAt.Equal(sentAt) {
		t.Fatalf("instant changed: %v != %v", msgs[0].SentAt, sentAt)
	}
}
