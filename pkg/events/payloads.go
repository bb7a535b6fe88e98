package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decimal amounts encode as JSON strings so no precision is lost in transit.

type PortfolioPayload struct {
	PortfolioID string   `json:"portfolio_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AssetIDs    []string `json:"asset_ids"`
}

type PortfolioRenamedPayload struct {
	PortfolioID        string `json:"portfolio_id"`
	OldName            string `json:"old_name,omitempty"`
	NewName            string `json:"new_name,omitempty"`
	OldDescription     string `json:"old_description,omitempty"`
	NewDescription     string `json:"new_description,omitempty"`
	NameChanged        bool   `json:"name_changed"`
	DescriptionChanged bool   `json:"description_changed"`
}

type PortfolioDeletedPayload struct {
	PortfolioID   string   `json:"portfolio_id"`
	Name          string   `json:"name"`
	RemovedLotIDs []string `json:"removed_lot_ids"`
}

type PortfolioAssetPayload struct {
	PortfolioID string `json:"portfolio_id"`
	AssetID     string `json:"asset_id"`
	Symbol      string `json:"symbol"`
}

type AssetCreatedPayload struct {
	AssetID   string `json:"asset_id"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	AssetType string `json:"asset_type"`
	Exchange  string `json:"exchange"`
}

type LotPayload struct {
	LotID        string          `json:"lot_id"`
	PortfolioID  string          `json:"portfolio_id"`
	AssetID      string          `json:"asset_id"`
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	AcquiredDate time.Time       `json:"acquired_date"`
	// Changed lists the fields an update touched; empty for add and delete.
	Changed []string `json:"changed,omitempty"`
}

type ReconcileCompletedPayload struct {
	DryRun            bool `json:"dry_run"`
	DanglingLotRefs   int  `json:"dangling_lot_refs"`
	MissingLotRefs    int  `json:"missing_lot_refs"`
	MissingAssetRefs  int  `json:"missing_asset_refs"`
	OrphanLots        int  `json:"orphan_lots"`
	PortfoliosScanned int  `json:"portfolios_scanned"`
	LotsScanned       int  `json:"lots_scanned"`
}
