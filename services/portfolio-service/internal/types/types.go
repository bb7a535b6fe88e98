package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a tradable instrument, shared by reference between portfolios and lots.
type Asset struct {
	ID                  string    `json:"id"`
	Symbol              string    `json:"symbol"`
	AssetType           string    `json:"asset_type"`
	Exchange            string    `json:"exchange"`
	ShortName           string    `json:"short_name"`
	LongName            string    `json:"long_name"`
	DisplayName         string    `json:"display_name"`
	Currency            string    `json:"currency"`
	LongBusinessSummary string    `json:"long_business_summary"`
	CreatedAt           time.Time `json:"created_at"`
}

// Lot is one acquisition of an asset inside a portfolio.
//
// PortfolioName and AssetSymbol are snapshots taken when the lot is created;
// renaming the portfolio later does not rewrite them.
type Lot struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	PortfolioID   string          `json:"portfolio_id"`
	PortfolioName string          `json:"portfolio_name"`
	AssetID       string          `json:"asset_id"`
	AssetSymbol   string          `json:"asset_symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AcquiredDate  time.Time       `json:"acquired_date"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Portfolio is a named grouping of assets and lots owned by one user.
// AssetIDs and LotIDs are unordered sets of member references.
type Portfolio struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AssetIDs    []string  `json:"asset_ids"`
	LotIDs      []string  `json:"lot_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *Portfolio) HasAsset(assetID string) bool {
	return contains(p.AssetIDs, assetID)
}

func (p *Portfolio) HasLot(lotID string) bool {
	return contains(p.LotIDs, lotID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// CostBasis is quantity times unit price.
func CostBasis(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice)
}
