package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// CategoryBalance is one budget line with its spend to date. Utilization is
// spent/allocated and is not clamped; overspent categories read above 100%.
type CategoryBalance struct {
	Name        string
	Allocated   Money
	Spent       Money
	Remaining   Money
	Utilization float64 // percent
}

// BalanceReport summarizes the ledger against the static budget. Only
// categories present in the budget contribute; records with a category
// outside the known set are tolerated but excluded.
type BalanceReport struct {
	ByCategory  []CategoryBalance
	Allocated   Money
	Spent       Money
	Remaining   Money
	Utilization float64 // percent
}

// NewBalanceReport folds per-category ledger totals into a report, keeping
// the budget's category order.
func NewBalanceReport(budget Budget, totals []CategoryAmount) BalanceReport {
	spentBy := make(map[string]int64, len(totals))
	for _, t := range totals {
		spentBy[t.Name] = t.Amount.Cents
	}

	report := BalanceReport{
		ByCategory: make([]CategoryBalance, 0, len(budget.Categories)),
		Allocated:  budget.Total,
	}
	var spent int64
	for _, c := range budget.Categories {
		s := spentBy[c.Name]
		spent += s
		cb := CategoryBalance{
			Name:      c.Name,
			Allocated: c.Amount,
			Spent:     Money{Cents: s},
			Remaining: Money{Cents: c.Amount.Cents - s},
		}
		if c.Amount.Cents > 0 {
			cb.Utilization = float64(s) / float64(c.Amount.Cents) * 100
		}
		report.ByCategory = append(report.ByCategory, cb)
	}
	report.Spent = Money{Cents: spent}
	report.Remaining = Money{Cents: budget.Total.Cents - spent}
	if budget.Total.Cents > 0 {
		report.Utilization = float64(spent) / float64(budget.Total.Cents) * 100
	}
	return report
}
