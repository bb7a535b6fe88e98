package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// Numerics are read back as text so no precision is lost on the way to decimal.
const lotColumns = `id, user_id, portfolio_id, portfolio_name, asset_id, asset_symbol,
	quantity::text, acquired_date, unit_price::text, cost_basis::text, created_at, updated_at`

// LotRepository handles lot database operations
type LotRepository struct {
	db DB
}

func NewLotRepository(db DB) *LotRepository {
	return &LotRepository{db: db}
}

func (r *LotRepository) CreateLot(ctx context.Context, l *types.Lot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO lots (id, user_id, portfolio_id, portfolio_name, asset_id, asset_symbol,
			quantity, acquired_date, unit_price, cost_basis, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, l.ID, l.UserID, l.PortfolioID, l.PortfolioName, l.AssetID, l.AssetSymbol,
		l.Quantity.String(), l.AcquiredDate, l.UnitPrice.String(), l.CostBasis.String(),
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create lot: %w", err)
	}

	return nil
}

func (r *LotRepository) GetLot(ctx context.Context, id string) (*types.Lot, error) {
	row := r.db.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id)
	l, err := scanLot(row)
	if err != nil {
		return nil, notFound(err, "lot")
	}
	return l, nil
}

func (r *LotRepository) UpdateLot(ctx context.Context, l *types.Lot) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE lots
		SET quantity = $2, acquired_date = $3, unit_price = $4, cost_basis = $5, updated_at = $6
		WHERE id = $1
	`, l.ID, l.Quantity.String(), l.AcquiredDate, l.UnitPrice.String(), l.CostBasis.String(), l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *LotRepository) DeleteLot(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM lots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *LotRepository) ListLots(ctx context.Context, f LotFilter) ([]types.Lot, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("user_id", f.UserID)
	add("portfolio_id", f.PortfolioID)
	add("asset_id", f.AssetID)

	query := `SELECT ` + lotColumns + ` FROM lots`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY asset_symbol ASC, acquired_date DESC, id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	defer rows.Close()

	var lots []types.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, *l)
	}

	return lots, rows.Err()
}

func (r *LotRepository) CountLotsByAsset(ctx context.Context, assetID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM lots WHERE asset_id = $1`, assetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count lots: %w", err)
	}
	return n, nil
}

func scanLot(row pgx.Row) (*types.Lot, error) {
	var (
		l                          types.Lot
		quantity, price, costBasis string
	)
	err := row.Scan(
		&l.ID, &l.UserID, &l.PortfolioID, &l.PortfolioName, &l.AssetID, &l.AssetSymbol,
		&quantity, &l.AcquiredDate, &price, &costBasis, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if l.Quantity, err = parseDecimal(quantity, "quantity"); err != nil {
		return nil, err
	}
	if l.UnitPrice, err = parseDecimal(price, "unit_price"); err != nil {
		return nil, err
	}
	if l.CostBasis, err = parseDecimal(costBasis, "cost_basis"); err != nil {
		return nil, err
	}
	return &l, nil
}
