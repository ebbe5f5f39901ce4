package core

import (
	"errors"
	"strings"
	"time"
)

// MaxDescriptionLen caps expense descriptions, matching the truncation
// applied when a chat message becomes a candidate expense.
const MaxDescriptionLen = 200

type (
	// ChatMessage is one inbound group-chat message as stored by the
	// transport listener. Rows are append-only; only Consumed ever changes,
	// flipping to true once the message has been folded into a committed
	// batch.
	ChatMessage struct {
		ID         int64
		MessageID  int64 // transport-assigned, globally unique
		ChatID     int64
		AuthorName string
		AuthorID   int64
		Text       string
		SentAt     time.Time
		Consumed   bool
	}

	// CandidateExpense is a machine-extracted expense guess. It lives only
	// in memory between extraction and review.
	CandidateExpense struct {
		SourceMessageID int64
		AuthorName      string
		Description     string
		Quantity        int64
		UnitAmount      Money
		RawAmount       Money // UnitAmount * Quantity
		SentAt          time.Time
	}

	// CategorizedExpense is a candidate with a budget category attached.
	// Description, Amount, Category and AuthorName stay editable until the
	// batch is committed or discarded.
	CategorizedExpense struct {
		CandidateExpense
		Category string
	}

	// ExpenseRecord is a confirmed ledger entry. Records are immutable;
	// corrections are delete plus re-add.
	ExpenseRecord struct {
		ID              int64
		ExpenseDate     time.Time
		Description     string
		Amount          Money
		Category        string
		RecordedAt      time.Time
		ReportedBy      string
		SourceMessageID *int64
	}

	// BudgetCategory is one allocation line of the static budget. Hint is
	// the semantic guidance handed to the classifier for this category.
	BudgetCategory struct {
		Name   string
		Amount Money
		Hint   string
	}

	// Budget is the fixed category set and allocations, loaded once at
	// startup and read-only afterwards.
	Budget struct {
		Total      Money
		Fallback   string
		Categories []BudgetCategory
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrUnknownCategory  = errors.New("unknown category")
)

func (c CandidateExpense) Validate() error {
	if len(strings.TrimSpace(c.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(c.Description) > MaxDescriptionLen {
		return errors.New("description too long (max 200 characters)")
	}
	if c.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if err := c.UnitAmount.Validate(); err != nil {
		return err
	}
	if c.RawAmount.Cents != c.UnitAmount.Cents*c.Quantity {
		return errors.New("raw amount does not match unit amount times quantity")
	}
	return nil
}

func (e CategorizedExpense) Validate() error {
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	return e.RawAmount.Validate()
}

func (r ExpenseRecord) Validate() error {
	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(r.Description) > MaxDescriptionLen {
		return errors.New("description too long (max 200 characters)")
	}
	if r.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (b Budget) Validate() error {
	if len(b.Categories) == 0 {
		return errors.New("budget has no categories")
	}
	seen := make(map[string]bool, len(b.Categories))
	for _, c := range b.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return ErrEmptyCategory
		}
		if seen[c.Name] {
			return errors.New("duplicate budget category: " + c.Name)
		}
		seen[c.Name] = true
		if c.Amount.Cents < 0 {
			return ErrInvalidAmount
		}
	}
	if strings.TrimSpace(b.Fallback) == "" {
		return errors.New("empty fallback category")
	}
	if !seen[b.Fallback] {
		return ErrUnknownCategory
	}
	return nil
}

// Has reports whether name is one of the budget's categories.
func (b Budget) Has(name string) bool {
	for _, c := range b.Categories {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Names returns the category names in allocation order.
func (b Budget) Names() []string {
	names := make([]string, len(b.Categories))
	for i, c := range b.Categories {
		names[i] = c.Name
	}
	return names
}

// TruncateDescription trims text to the ledger's description limit. The
// matched amount substring is deliberately left in place; the reviewer sees
// the message verbatim and can edit it.
func TruncateDescription(text string) string {
	if len(text) <= MaxDescriptionLen {
		return text
	}
	// Cut on a rune boundary so multi-byte text stays valid.
	cut := MaxDescriptionLen
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut]
}
