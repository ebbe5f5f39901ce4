// Package core holds the domain types shared across the pipeline: chat
// messages, candidate and confirmed expenses, the static budget, and money
// handling in integer cents.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Money is a positive-or-zero amount in integer cents of a single currency
// (Brazilian reais in this deployment). All arithmetic stays in cents;
// floats appear only at the display and serialization edges.
type Money struct {
	Cents int64
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Times returns the amount multiplied by a whole quantity.
func (m Money) Times(quantity int64) Money {
	return Money{Cents: m.Cents * quantity}
}

// Reais returns the value in reais as a float64, for display and for the
// JSON exchanged with the classifier. Use cents for all calculations.
func (m Money) Reais() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount the way it appears in the source chat,
// e.g. "R$ 1.234,56".
func (m Money) String() string {
	whole := m.Cents / 100
	frac := m.Cents % 100
	if frac < 0 {
		frac = -frac
	}
	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
		b.WriteByte('-')
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return fmt.Sprintf("R$ %s,%02d", b.String(), frac)
}

// MoneyFromReais converts a decimal real amount to cents with half-up
// rounding, for values that arrive as float64 (budget file, classifier
// responses).
func MoneyFromReais(v float64) Money {
	if v >= 0 {
		return Money{Cents: int64(v*100 + 0.5)}
	}
	return Money{Cents: int64(v*100 - 0.5)}
}

// ParseDecimalToCents converts a plain decimal string to cents with half-up
// rounding on the third decimal place. It accepts both dot (12.34) and comma
// (12,34) decimal separators but no thousands separators; the extractor
// strips those before calling. Returns ErrInvalidAmount for anything that is
// not a positive decimal numeral.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafe = (1<<63 - 1) / 100
	if iv > maxSafe {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}
