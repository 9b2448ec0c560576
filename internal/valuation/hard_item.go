package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/spigell/hh-market/internal/ai"
)

// HardItem is the source of a valuation's hard point: either a career level
// or a current salary. Only LevelItem and SalaryItem implement it.
type HardItem interface {
	hardItem()
}

// LevelItem values a resume by its career level.
type LevelItem struct {
	Level string
}

// SalaryItem values a resume by its current salary. Document is sent to the
// estimator to obtain the quality ratio.
type SalaryItem struct {
	Amount   decimal.Decimal
	Document ai.Document
}

func (LevelItem) hardItem()  {}
func (SalaryItem) hardItem() {}
