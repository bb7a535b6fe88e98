package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResolveResult is returned by asset resolution. Created is false when the
// symbol was already known.
type ResolveResult struct {
	Asset   *Asset `json:"asset"`
	Created bool   `json:"created"`
}

type RenameResult struct {
	Portfolio          *Portfolio `json:"portfolio"`
	NameChanged        bool       `json:"name_changed"`
	DescriptionChanged bool       `json:"description_changed"`
	OldName            string     `json:"old_name"`
	NewName            string     `json:"new_name"`
	OldDescription     string     `json:"old_description"`
	NewDescription     string     `json:"new_description"`
}

// Changed reports whether the rename wrote anything.
func (r *RenameResult) Changed() bool {
	return r.NameChanged || r.DescriptionChanged
}

type AddAssetResult struct {
	Portfolio      *Portfolio `json:"portfolio"`
	Asset          *Asset     `json:"asset"`
	AlreadyPresent bool       `json:"already_present"`
	AssetCreated   bool       `json:"asset_created"`
}

type UpdateLotResult struct {
	Lot                 *Lot `json:"lot"`
	QuantityChanged     bool `json:"quantity_changed"`
	AcquiredDateChanged bool `json:"acquired_date_changed"`
	UnitPriceChanged    bool `json:"unit_price_changed"`
}

// ChangedFields names the fields the update touched.
func (r *UpdateLotResult) ChangedFields() []string {
	var fields []string
	if r.QuantityChanged {
		fields = append(fields, "quantity")
	}
	if r.AcquiredDateChanged {
		fields = append(fields, "acquired_date")
	}
	if r.UnitPriceChanged {
		fields = append(fields, "unit_price")
	}
	return fields
}

// RemoveLotsResult reports a bulk lot removal. FailedLotIDs is non-empty
// when some deletes failed; the lots already removed stay removed.
type RemoveLotsResult struct {
	RemovedCount  int      `json:"removed_count"`
	RemovedLotIDs []string `json:"removed_lot_ids"`
	FailedLotIDs  []string `json:"failed_lot_ids,omitempty"`
}

type DeletePortfolioResult struct {
	Portfolio     *Portfolio `json:"portfolio"`
	RemovedLotIDs []string   `json:"removed_lot_ids"`
	FailedLotIDs  []string   `json:"failed_lot_ids,omitempty"`
}

type RemovableResult struct {
	AssetID   string `json:"asset_id"`
	Removable bool   `json:"removable"`
}

// PortfolioListItem is one row of the portfolio list.
type PortfolioListItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AssetCount  int       `json:"asset_count"`
	LotCount    int       `json:"lot_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PortfolioDetail is a portfolio with its member assets and lots populated.
type PortfolioDetail struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Assets      []Asset   `json:"assets"`
	Lots        []Lot     `json:"lots"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type HistoryResult struct {
	Symbol string         `json:"symbol"`
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Points []HistoryPoint `json:"points"`
}

type HistoryPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Close     decimal.Decimal `json:"close"`
}

// ReconcileReport lists what a reconcile pass found and, unless DryRun, repaired.
type ReconcileReport struct {
	DryRun            bool           `json:"dry_run"`
	UsersScanned      int            `json:"users_scanned"`
	PortfoliosScanned int            `json:"portfolios_scanned"`
	LotsScanned       int            `json:"lots_scanned"`
	DanglingLotRefs   []PortfolioRef `json:"dangling_lot_refs"`
	MissingLotRefs    []PortfolioRef `json:"missing_lot_refs"`
	MissingAssetRefs  []PortfolioRef `json:"missing_asset_refs"`
	OrphanLots        []string       `json:"orphan_lots"`
	Errors            []string       `json:"errors,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	Duration          string         `json:"duration"`
}

// PortfolioRef names one membership reference: a lot or asset id in a portfolio.
type PortfolioRef struct {
	PortfolioID string `json:"portfolio_id"`
	ID          string `json:"id"`
}

// Repairs is the number of problems found.
func (r *ReconcileReport) Repairs() int {
	return len(r.DanglingLotRefs) + len(r.MissingLotRefs) + len(r.MissingAssetRefs) + len(r.OrphanLots)
}
