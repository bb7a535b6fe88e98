package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

const portfolioColumns = `id, user_id, name, description, asset_ids, lot_ids, created_at, updated_at`

// PortfolioRepository handles portfolio database operations
type PortfolioRepository struct {
	db DB
}

func NewPortfolioRepository(db DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

func (r *PortfolioRepository) CreatePortfolio(ctx context.Context, p *types.Portfolio) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO portfolios (`+portfolioColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.UserID, p.Name, p.Description, nonNil(p.AssetIDs), nonNil(p.LotIDs), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	return nil
}

func (r *PortfolioRepository) GetPortfolio(ctx context.Context, id string) (*types.Portfolio, error) {
	row := r.db.QueryRow(ctx, `SELECT `+portfolioColumns+` FROM portfolios WHERE id = $1`, id)
	p, err := scanPortfolio(row)
	if err != nil {
		return nil, notFound(err, "portfolio")
	}
	return p, nil
}

func (r *PortfolioRepository) FindPortfolioByName(ctx context.Context, userID, name string) (*types.Portfolio, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+portfolioColumns+`
		FROM portfolios WHERE user_id = $1 AND name = $2
	`, userID, name)
	p, err := scanPortfolio(row)
	if err != nil {
		return nil, notFound(err, "portfolio")
	}
	return p, nil
}

func (r *PortfolioRepository) ListPortfolios(ctx context.Context, userID string) ([]types.Portfolio, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+portfolioColumns+`
		FROM portfolios WHERE user_id = $1
		ORDER BY name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []types.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}

	return portfolios, rows.Err()
}

func (r *PortfolioRepository) UpdatePortfolioDetails(ctx context.Context, id, name, description string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE portfolios SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
	`, id, name, description)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PortfolioRepository) DeletePortfolio(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Membership edits run as single statements so two writers touching the same
// array never overwrite each other.

func (r *PortfolioRepository) AddPortfolioAsset(ctx context.Context, portfolioID, assetID string) (bool, error) {
	return r.addMember(ctx, "asset_ids", portfolioID, assetID)
}

func (r *PortfolioRepository) RemovePortfolioAsset(ctx context.Context, portfolioID, assetID string) error {
	return r.removeMember(ctx, "asset_ids", portfolioID, assetID)
}

func (r *PortfolioRepository) AddPortfolioLot(ctx context.Context, portfolioID, lotID string) (bool, error) {
	return r.addMember(ctx, "lot_ids", portfolioID, lotID)
}

func (r *PortfolioRepository) RemovePortfolioLot(ctx context.Context, portfolioID, lotID string) error {
	return r.removeMember(ctx, "lot_ids", portfolioID, lotID)
}

// column is always one of the two array column names above, never user input.
func (r *PortfolioRepository) addMember(ctx context.Context, column, portfolioID, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`
		UPDATE portfolios SET %[1]s = array_append(%[1]s, $2), updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(%[1]s))
	`, column), portfolioID, id)
	if err != nil {
		return false, fmt.Errorf("failed to add to portfolio %s: %w", column, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM portfolios WHERE id = $1)`, portfolioID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check portfolio: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *PortfolioRepository) removeMember(ctx context.Context, column, portfolioID, id string) error {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`
		UPDATE portfolios SET %[1]s = array_remove(%[1]s, $2), updated_at = now()
		WHERE id = $1
	`, column), portfolioID, id)
	if err != nil {
		return fmt.Errorf("failed to remove from portfolio %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PortfolioRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id FROM portfolios
		UNION
		SELECT user_id FROM lots
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func scanPortfolio(row pgx.Row) (*types.Portfolio, error) {
	var p types.Portfolio
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.AssetIDs, &p.LotIDs, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
