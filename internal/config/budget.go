package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"gastos/internal/core"
)

// budgetFile is the top-level TOML structure of the budget file.
type budgetFile struct {
	Total    float64          `toml:"total"`
	Fallback string           `toml:"fallback"`
	Category []budgetCategory `toml:"category"`
}

type budgetCategory struct {
	Name   string  `toml:"name"`
	Amount float64 `toml:"amount"`
	Hint   string  `toml:"hint"`
}

const defaultBudgetTOML = `# Orçamento do projeto.
# Cada [[category]] define uma linha do orçamento; "hint" orienta o
# classificador automático.

total = 190000.00
fallback = "Serviços"

[[category]]
name = "Recursos Humanos"
amount = 14300.00
hint = "salários, pagamentos a pessoas"

[[category]]
name = "Materiais"
amount = 1100.00
hint = "compras de itens, equipamentos"

[[category]]
name = "Serviços"
amount = 117100.00
hint = "contratações de terceiros, aluguéis, locações"

[[category]]
name = "Logística"
amount = 19500.00
hint = "transporte, alimentação, hospedagem"

[[category]]
name = "Despesas Administrativas"
amount = 38000.00
hint = "gestão, coordenação"
`

// LoadBudget loads the budget from the TOML file at path. If the file does
// not exist it is created with the default allocation first, so a fresh
// deployment starts with a usable budget.
func LoadBudget(path string) (core.Budget, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
			return core.Budget{}, fmt.Errorf("create budget dir: %w", mkErr)
		}
		if wErr := os.WriteFile(path, []byte(defaultBudgetTOML), 0644); wErr != nil {
			return core.Budget{}, fmt.Errorf("write default budget: %w", wErr)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return core.Budget{}, fmt.Errorf("read budget file: %w", err)
	}
	return ParseBudget(data)
}

// ParseBudget parses TOML bytes into a validated budget.
func ParseBudget(data []byte) (core.Budget, error) {
	var f budgetFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return core.Budget{}, fmt.Errorf("parse budget file: %w", err)
	}

	budget := core.Budget{
		Total:      core.MoneyFromReais(f.Total),
		Fallback:   f.Fallback,
		Categories: make([]core.BudgetCategory, len(f.Category)),
	}
	for i, c := range f.Category {
		budget.Categories[i] = core.BudgetCategory{
			Name:   c.Name,
			Amount: core.MoneyFromReais(c.Amount),
			Hint:   c.Hint,
		}
	}

	if err := budget.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("invalid budget: %w", err)
	}
	return budget, nil
}
