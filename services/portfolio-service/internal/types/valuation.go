package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals are the four rollup figures carried at every level of a valuation.
// A parent's Totals are always the sum of its children's.
type Totals struct {
	MarketValue decimal.Decimal `json:"market_value"`
	DaysChange  decimal.Decimal `json:"days_change"`
	BookValue   decimal.Decimal `json:"book_value"`
	TotalReturn decimal.Decimal `json:"total_return"`
}

// ZeroTotals returns Totals with every figure set to zero.
func ZeroTotals() Totals {
	return Totals{
		MarketValue: decimal.Zero,
		DaysChange:  decimal.Zero,
		BookValue:   decimal.Zero,
		TotalReturn: decimal.Zero,
	}
}

// Add returns t plus o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		MarketValue: t.MarketValue.Add(o.MarketValue),
		DaysChange:  t.DaysChange.Add(o.DaysChange),
		BookValue:   t.BookValue.Add(o.BookValue),
		TotalReturn: t.TotalReturn.Add(o.TotalReturn),
	}
}

// Equal compares every figure numerically.
func (t Totals) Equal(o Totals) bool {
	return t.MarketValue.Equal(o.MarketValue) &&
		t.DaysChange.Equal(o.DaysChange) &&
		t.BookValue.Equal(o.BookValue) &&
		t.TotalReturn.Equal(o.TotalReturn)
}

// LotValuation prices a single lot.
type LotValuation struct {
	LotID        string          `json:"lot_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	AcquiredDate time.Time       `json:"acquired_date"`
	Totals
}

type AssetValuation struct {
	AssetID  string          `json:"asset_id"`
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Change   decimal.Decimal `json:"change"`
	Quantity decimal.Decimal `json:"quantity"`
	LotCount int             `json:"lot_count"`
	// Priced is false when no usable quote was available and zero was substituted.
	Priced   bool            `json:"priced"`
	Lots     []LotValuation  `json:"lots"`
	Totals
}

type PortfolioValuation struct {
	PortfolioID string           `json:"portfolio_id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Assets      []AssetValuation `json:"assets"`
	Totals
}

// NetWorth is the full valuation tree for one user.
type NetWorth struct {
	UserID        string               `json:"user_id"`
	Portfolios    []PortfolioValuation `json:"portfolios"`
	SymbolsPriced int                  `json:"symbols_priced"`
	PricedAt      time.Time            `json:"priced_at"`
	Totals
}
