// Package services orchestrates the pipeline: watermark-gated sync from the
// message store, staged human review, transactional commit, and ledger
// reporting against the static budget.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gastos/internal/classify"
	"gastos/internal/core"
	"gastos/internal/extract"
	"gastos/internal/storage"
)

var (
	// ErrPendingBatch is returned by Sync when an uncommitted batch exists
	// and the caller did not ask to replace it. Replacing silently would
	// discard the reviewer's edits, so the surface above must confirm.
	ErrPendingBatch = errors.New("a review batch is already pending")

	ErrNoBatch    = errors.New("no pending review batch")
	ErrBatchToken = errors.New("review batch token mismatch")
	ErrIndexRange = errors.New("review entry index out of range")
)

// PendingBatch is the single-slot review stage: categorized candidates
// waiting for human confirmation. The token guards edit/commit/cancel calls
// against acting on a batch that has since been replaced.
type PendingBatch struct {
	Token    string
	SyncedAt time.Time
	Entries  []core.CategorizedExpense
}

// EntryPatch carries the editable fields of one staged entry. Nil fields
// are left untouched.
type EntryPatch struct {
	Description *string
	AmountCents *int64
	Category    *string
	ReportedBy  *string
}

// ReviewService owns the pending batch and drives sync/commit. The batch is
// explicit state passed back and forth by token, not ambient session data;
// a new sync replaces it wholesale.
type ReviewService struct {
	storage     *storage.Repository
	categorizer *classify.Categorizer
	budget      core.Budget
	now         func() time.Time

	mu      sync.Mutex
	pending *PendingBatch
}

func NewReviewService(repo *storage.Repository, categorizer *classify.Categorizer, budget core.Budget) *ReviewService {
	return &ReviewService{
		storage:     repo,
		categorizer: categorizer,
		budget:      budget,
		now:         time.Now,
	}
}

// Sync selects unconsumed messages past the watermark, extracts candidate
// expenses and categorizes them, staging the result as the new pending
// batch. Nothing is marked consumed and the watermark does not move; those
// effects belong to Commit. Calling Sync again before a commit re-selects
// the same messages.
//
// When a batch is already pending, Sync refuses unless replace is set; a
// replaced batch is gone, its source messages simply re-selected next time.
func (s *ReviewService) Sync(ctx context.Context, replace bool) (PendingBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil && !replace {
		return PendingBatch{}, ErrPendingBatch
	}

	watermark, err := s.storage.Watermark(ctx)
	if err != nil {
		return PendingBatch{}, fmt.Errorf("read watermark: %w", err)
	}

	msgs, err := s.storage.UnconsumedMessagesSince(ctx, watermark)
	if err != nil {
		return PendingBatch{}, fmt.Errorf("select messages: %w", err)
	}

	var candidates []core.CandidateExpense
	for _, m := range msgs {
		cand, ok := extract.Extract(m.Text, m.AuthorName, m.SentAt)
		if !ok {
			continue // most chat messages are not expense reports
		}
		cand.SourceMessageID = m.MessageID
		candidates = append(candidates, cand)
	}

	if s.pending != nil {
		slog.WarnContext(ctx, "Replacing uncommitted review batch",
			"token", s.pending.Token,
			"discarded_entries", len(s.pending.Entries))
	}

	if len(candidates) == 0 {
		s.pending = nil
		slog.InfoContext(ctx, "Sync found no new expenses",
			"messages_scanned", len(msgs),
			"watermark", watermark)
		return PendingBatch{SyncedAt: s.now()}, nil
	}

	batch := PendingBatch{
		Token:    uuid.NewString(),
		SyncedAt: s.now(),
		Entries:  s.categorizer.Categorize(ctx, candidates),
	}
	s.pending = &batch

	slog.InfoContext(ctx, "Sync staged review batch",
		"token", batch.Token,
		"messages_scanned", len(msgs),
		"entries", len(batch.Entries))
	return s.snapshotLocked(), nil
}

// Pending returns a copy of the current batch, if any.
func (s *ReviewService) Pending() (PendingBatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingBatch{}, false
	}
	return s.snapshotLocked(), true
}

// Edit patches one staged entry. Edits never touch the message store. The
// patch is applied to a copy and stored only if the result validates, so a
// rejected edit leaves the staged entry exactly as it was.
func (s *ReviewService) Edit(token string, index int, patch EntryPatch) (core.CategorizedExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTokenLocked(token); err != nil {
		return core.CategorizedExpense{}, err
	}
	if index < 0 || index >= len(s.pending.Entries) {
		return core.CategorizedExpense{}, ErrIndexRange
	}

	entry := s.pending.Entries[index]
	if patch.Description != nil {
		entry.Description = core.TruncateDescription(*patch.Description)
	}
	if patch.AmountCents != nil {
		entry.RawAmount = core.Money{Cents: *patch.AmountCents}
	}
	if patch.Category != nil {
		if !s.budget.Has(*patch.Category) {
			return core.CategorizedExpense{}, core.ErrUnknownCategory
		}
		entry.Category = *patch.Category
	}
	if patch.ReportedBy != nil {
		entry.AuthorName = *patch.ReportedBy
	}

	if err := entry.Validate(); err != nil {
		return core.CategorizedExpense{}, fmt.Errorf("invalid entry after edit: %w", err)
	}
	s.pending.Entries[index] = entry
	return entry, nil
}

// Commit makes the pending batch durable: records inserted, source messages
// consumed and the watermark advanced to the commit time, in one transaction.
// On success the slot is cleared; on failure the batch stays pending and
// the store is untouched, so the caller can retry.
func (s *ReviewService) Commit(ctx context.Context, token string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTokenLocked(token); err != nil {
		return 0, err
	}

	for i, e := range s.pending.Entries {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	inserted, err := s.storage.CommitBatch(ctx, s.pending.Entries, s.now())
	if err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	s.pending = nil
	return inserted, nil
}

// Cancel discards the pending batch. No persisted side effects: the source
// messages stay unconsumed and the next Sync re-selects them.
func (s *ReviewService) Cancel(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTokenLocked(token); err != nil {
		return err
	}
	s.pending = nil
	return nil
}

func (s *ReviewService) checkTokenLocked(token string) error {
	if s.pending == nil {
		return ErrNoBatch
	}
	if token != s.pending.Token {
		return ErrBatchToken
	}
	return nil
}

func (s *ReviewService) snapshotLocked() PendingBatch {
	snap := PendingBatch{
		Token:    s.pending.Token,
		SyncedAt: s.pending.SyncedAt,
		Entries:  make([]core.CategorizedExpense, len(s.pending.Entries)),
	}
	copy(snap.Entries, s.pending.Entries)
	return snap
}
