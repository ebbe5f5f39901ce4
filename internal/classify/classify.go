// Package classify assigns budget categories to candidate expenses by
// delegating batches to an external language model, with a deterministic
// fallback so the pipeline never blocks or drops expenses when the model
// misbehaves.
package classify

import (
	"context"
	"log/slog"
	"time"

	"gastos/internal/core"
)

// Entry is one element of the JSON batch exchanged with the classification
// service. ID echoes the entry's ordinal position in the request so the
// response can be correlated even if the service reorders or drops entries.
type Entry struct {
	ID          int     `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	InformedBy  string  `json:"informed_by"`
	Date        string  `json:"date,omitempty"`     // ISO-8601, request only
	Category    string  `json:"category,omitempty"` // response only
}

// Request is the full classification request: the ordered batch plus the
// fixed category set with per-category semantic hints.
type Request struct {
	Entries    []Entry
	Categories []core.BudgetCategory
}

// Classifier is the narrow boundary around the external model. The call is
// non-deterministic and may fail or return garbage; the Categorizer absorbs
// both. A rule-based implementation substitutes for it in tests.
type Classifier interface {
	Classify(ctx context.Context, req Request) ([]Entry, error)
}

// Categorizer batches candidates through a Classifier and guarantees one
// categorized expense per candidate, in input order, whatever the service
// does.
type Categorizer struct {
	classifier Classifier
	budget     core.Budget
	timeout    time.Duration
}

func NewCategorizer(classifier Classifier, budget core.Budget, timeout time.Duration) *Categorizer {
	return &Categorizer{
		classifier: classifier,
		budget:     budget,
		timeout:    timeout,
	}
}

// Categorize labels every candidate with a budget category. Output has the
// same length and order as the input. On any service or parse failure the
// whole batch gets the budget's fallback category, preserving each
// candidate's own description, amount and author; the human reviewer is
// expected to fix the categorization, not the pipeline.
func (c *Categorizer) Categorize(ctx context.Context, batch []core.CandidateExpense) []core.CategorizedExpense {
	if len(batch) == 0 {
		return nil
	}

	out := make([]core.CategorizedExpense, len(batch))
	for i, cand := range batch {
		out[i] = core.CategorizedExpense{
			CandidateExpense: cand,
			Category:         c.budget.Fallback,
		}
	}

	req := Request{
		Entries:    make([]Entry, len(batch)),
		Categories: c.budget.Categories,
	}
	for i, cand := range batch {
		req.Entries[i] = Entry{
			ID:          i,
			Description: cand.Description,
			Amount:      cand.RawAmount.Reais(),
			InformedBy:  cand.AuthorName,
			Date:        cand.SentAt.Format(time.RFC3339),
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.classifier.Classify(ctx, req)
	if err != nil {
		slog.WarnContext(ctx, "Classification failed, using fallback category",
			"fallback", c.budget.Fallback,
			"batch_size", len(batch),
			"error", err)
		return out
	}

	// Re-attach by echoed id; position is only the tiebreaker for entries
	// that come back without a usable id.
	used := make([]bool, len(batch))
	for pos, entry := range resp {
		idx := entry.ID
		if idx < 0 || idx >= len(batch) || used[idx] {
			idx = pos
		}
		if idx < 0 || idx >= len(batch) || used[idx] {
			continue
		}
		used[idx] = true
		out[idx].Category = c.normalize(ctx, entry.Category)
	}
	return out
}

// normalize coerces a model-supplied category onto the fixed set.
func (c *Categorizer) normalize(ctx context.Context, category string) string {
	if c.budget.Has(category) {
		return category
	}
	slog.WarnContext(ctx, "Model returned unknown category, using fallback",
		"category", category,
		"fallback", c.budget.Fallback)
	return c.budget.Fallback
}
