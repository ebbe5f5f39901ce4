// Package extract turns free-text chat messages into candidate expenses.
//
// Most group-chat messages are not expense reports, so failing to match is
// the normal case and is never an error.
package extract

import (
	"regexp"
	"strings"
	"time"

	"gastos/internal/core"
)

// amountPattern accepts either a currency-prefixed numeral ("R$ 1.234,56",
// dot thousands, comma decimals) or a bare numeral followed by the currency
// word ("300 reais"). Group 1 holds the prefixed form, group 2 the suffixed
// form.
var amountPattern = regexp.MustCompile(`(?i)R\$?\s*(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)|(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)\s*(?:reais|real)`)

// quantityPattern matches an integer immediately followed by a unit noun
// ("5 unidades", "3 peças", "2x"). Singular, plural and the abbreviated
// forms used in the chat all match.
var quantityPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:unidades?|unid|un|peças?|itens?|item|x)`)

// Extract parses one message into a candidate expense. The boolean is false
// when the text carries no recognizable amount.
//
// Only the first amount-like substring is used; a message quoting two values
// ("paguei R$ 50,00 e R$ 30,00") attributes everything to the first. This is
// a known imprecision the human reviewer corrects, not something to
// second-guess here.
func Extract(text, author string, sentAt time.Time) (core.CandidateExpense, bool) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return core.CandidateExpense{}, false
	}

	numeral := m[1]
	if numeral == "" {
		numeral = m[2]
	}
	// Drop thousands dots, then let the comma become the decimal point.
	numeral = strings.ReplaceAll(numeral, ".", "")
	cents, err := core.ParseDecimalToCents(numeral)
	if err != nil {
		return core.CandidateExpense{}, false
	}

	quantity := int64(1)
	if qm := quantityPattern.FindStringSubmatch(text); qm != nil {
		if q, err := parseQuantity(qm[1]); err == nil {
			quantity = q
		}
	}

	unit := core.Money{Cents: cents}
	return core.CandidateExpense{
		AuthorName:  author,
		Description: core.TruncateDescription(text),
		Quantity:    quantity,
		UnitAmount:  unit,
		RawAmount:   unit.Times(quantity),
		SentAt:      sentAt,
	}, true
}

func parseQuantity(s string) (int64, error) {
	var q int64
	for _, r := range s {
		q = q*10 + int64(r-'0')
		if q > 1_000_000 {
			return 0, core.ErrInvalidQuantity
		}
	}
	if q < 1 {
		return 0, core.ErrInvalidQuantity
	}
	return q, nil
}
