package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"gastos/internal/core"
)

func testBudget() core.Budget {
	return core.Budget{
		Total:    core.Money{Cents: 19000000},
		Fallback: "Serviços",
		Categories: []core.BudgetCategory{
			{Name: "Recursos Humanos", Amount: core.Money{Cents: 1430000}, Hint: "salários, pagamentos a pessoas"},
			{Name: "Materiais", Amount: core.Money{Cents: 110000}, Hint: "compras de materiais e insumos"},
			{Name: "Serviços", Amount: core.Money{Cents: 11710000}},
			{Name: "Logística", Amount: core.Money{Cents: 1950000}},
			{Name: "Despesas Administrativas", Amount: core.Money{Cents: 3800000}},
		},
	}
}

func testCandidates() []core.CandidateExpense {
	return []core.CandidateExpense{
		{
			AuthorName:  "Maria",
			Description: "Paguei R$ 500,00 para impressão de folders",
			Quantity:    1,
			UnitAmount:  core.Money{Cents: 50000},
			RawAmount:   core.Money{Cents: 50000},
			SentAt:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			AuthorName:  "João",
			Description: "frete 300 reais",
			Quantity:    1,
			UnitAmount:  core.Money{Cents: 30000},
			RawAmount:   core.Money{Cents: 30000},
			SentAt:      time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC),
		},
	}
}

// classifierFunc adapts a function to the Classifier interface.
type classifierFunc func(ctx context.Context, req Request) ([]Entry, error)

func (f classifierFunc) Classify(ctx context.Context, req Request) ([]Entry, error) {
	return f(ctx, req)
}

func TestCategorizeAppliesModelCategories(t *testing.T) {
	c := NewCategorizer(classifierFunc(func(ctx context.Context, req Request) ([]Entry, error) {
		if len(req.Entries) != 2 {
			t.Fatalf("request has %d entries, want 2", len(req.Entries))
		}
		return []Entry{
			{ID: 0, Category: "Serviços"},
			{ID: 1, Category: "Logística"},
		}, nil
	}), testBudget(), 0)

	out := c.Categorize(context.Background(), testCandidates())
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	if out[0].Category != "Serviços" || out[1].Category != "Logística" {
		t.Fatalf("categories = %q, %q", out[0].Category, out[1].Category)
	}
	// Everything but the category comes from the candidate, not the model.
	if out[0].Description != "Paguei R$ 500,00 para impressão de folders" {
		t.Fatalf("description overwritten: %q", out[0].Description)
	}
	if out[1].RawAmount.Cents != 30000 {
		t.Fatalf("amount overwritten: %d", out[1].RawAmount.Cents)
	}
}

func TestCategorizeFallsBackOnError(t *testing.T) {
	c := NewCategorizer(classifierFunc(func(ctx context.Context, req Request) ([]Entry, error) {
		return nil, errors.New("model unavailable")
	}), testBudget(), 0)

	out := c.Categorize(context.Background(), testCandidates())
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	for i, e := range out {
		if e.Category != "Serviços" {
			t.Fatalf("entry %d category = %q, want fallback Serviços", i, e.Category)
		}
	}
	if out[0].RawAmount.Cents != 50000 || out[1].RawAmount.Cents != 30000 {
		t.Fatal("fallback must preserve candidate amounts")
	}
}

func TestCategorizeReattachesByEchoedID(t *testing.T) {
	// The model reorders the batch; ids must drive the re-attachment.
	c := NewCategorizer(classifierFunc(func(ctx context.Context, req Request) ([]Entry, error) {
		return []Entry{
			{ID: 1, Category: "Logística"},
			{ID: 0, Category: "Materiais"},
		}, nil
	}), testBudget(), 0)

	out := c.Categorize(context.Background(), testCandidates())
	if out[0].Category != "Materiais" {
		t.Fatalf("entry 0 category = %q, want Materiais", out[0].Category)
	}
	if out[1].Category != "Logística" {
		t.Fatalf("entry 1 category = %q, want Logística", out[1].Category)
	}
}

func TestCategorizeCoercesUnknownCategory(t *testing.T) {
	c := NewCategorizer(classifierFunc(func(ctx context.Context, req Request) ([]Entry, error) {
		return []Entry{
			{ID: 0, Category: "Alimentação"}, // not in the budget
			{ID: 1, Category: "Materiais"},
		}, nil
	}), testBudget(), 0)

	out := c.Categorize(context.Background(), testCandidates())
	if out[0].Category != "Serviços" {
		t.Fatalf("unknown category mapped to %q, want fallback Serviços", out[0].Category)
	}
	if out[1].Category != "Materiais" {
		t.Fatalf("valid category lost: %q", out[1].Category)
	}
}

func TestCategorizeDroppedEntriesKeepFallback(t *testing.T) {
	// Model returns only one of two entries without a usable id.
	c := NewCategorizer(classifierFunc(func(ctx context.Context, req Request) ([]Entry, error) {
		return []Entry{{ID: -1, Category: "Logística"}}, nil
	}), testBudget(), 0)

	out := c.Categorize(context.Background(), testCandidates())
	// Bad id falls back to position 0.
	if out[0].Category != "Logística" {
		t.Fatalf("entry 0 category = %q, want Logística via position", out[0].Category)
	}
	if out[1].Category != "Serviços" {
		t.Fatalf("dropped entry category = %q, want fallback Serviços", out[1].Category)
	}
}

func TestCategorizeEmptyBatch(t *testing.T) {
	called := false
	c := NewCategorizer(classifierFunc(func(ctx context.Context, req Request) ([]Entry, error) {
		called = true
		return nil, nil
	}), testBudget(), 0)

	if out := c.Categorize(context.Background(), nil); out != nil {
		t.Fatalf("empty batch returned %v, want nil", out)
	}
	if called {
		t.Fatal("classifier must not be called for an empty batch")
	}
}

func TestCategorizeTimeout(t *testing.T) {
	c := NewCategorizer(classifierFunc(func(ctx context.Context, req Request) ([]Entry, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), testBudget(), 10*time.Millisecond)

	done := make(chan []core.CategorizedExpense, 1)
	go func() { done <- c.Categorize(context.Background(), testCandidates()) }()

	select {
	case out := <-done:
		for i, e := range out {
			if e.Category != "Serviços" {
				t.Fatalf("entry %d category = %q, want fallback after timeout", i, e.Category)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Categorize did not respect the timeout")
	}
}
