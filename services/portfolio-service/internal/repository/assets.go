package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

const assetColumns = `id, symbol, asset_type, exchange, short_name, long_name, display_name,
	currency, long_business_summary, created_at`

// AssetRepository handles asset database operations
type AssetRepository struct {
	db DB
}

func NewAssetRepository(db DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// CreateAsset relies on the unique index on upper(symbol): when another
// writer got there first the insert is skipped and their row is returned.
func (r *AssetRepository) CreateAsset(ctx context.Context, a *types.Asset) (*types.Asset, bool, error) {
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
		RETURNING id
	`, a.ID, a.Symbol, a.AssetType, a.Exchange, a.ShortName, a.LongName, a.DisplayName,
		a.Currency, a.LongBusinessSummary, a.CreatedAt,
	).Scan(&id)

	if err == nil {
		stored := *a
		return &stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create asset: %w", err)
	}

	existing, err := r.FindAssetBySymbol(ctx, a.Symbol)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *AssetRepository) GetAsset(ctx context.Context, id string) (*types.Asset, error) {
	row := r.db.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id)
	a, err := scanAsset(row)
	if err != nil {
		return nil, notFound(err, "asset")
	}
	return a, nil
}

func (r *AssetRepository) FindAssetBySymbol(ctx context.Context, symbol string) (*types.Asset, error) {
	row := r.db.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE upper(symbol) = upper($1)`, symbol)
	a, err := scanAsset(row)
	if err != nil {
		return nil, notFound(err, "asset")
	}
	return a, nil
}

// ListAssetsByIDs returns the assets that exist among ids, ordered by symbol.
// Unknown ids are skipped.
func (r *AssetRepository) ListAssetsByIDs(ctx context.Context, ids []string) ([]types.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+assetColumns+`
		FROM assets
		WHERE id = ANY($1)
		ORDER BY symbol ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []types.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *a)
	}

	return assets, rows.Err()
}

func scanAsset(row pgx.Row) (*types.Asset, error) {
	var a types.Asset
	err := row.Scan(
		&a.ID, &a.Symbol, &a.AssetType, &a.Exchange, &a.ShortName, &a.LongName,
		&a.DisplayName, &a.Currency, &a.LongBusinessSummary, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
