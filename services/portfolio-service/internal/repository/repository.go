package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// LotFilter selects lots. Empty fields match everything.
type LotFilter struct {
	UserID      string
	PortfolioID string
	AssetID     string
}

type AssetStore interface {
	// CreateAsset inserts a, or returns the existing asset with the same
	// symbol. created reports which happened.
	CreateAsset(ctx context.Context, a *types.Asset) (stored *types.Asset, created bool, err error)
	GetAsset(ctx context.Context, id string) (*types.Asset, error)
	// FindAssetBySymbol matches case-insensitively.
	FindAssetBySymbol(ctx context.Context, symbol string) (*types.Asset, error)
	ListAssetsByIDs(ctx context.Context, ids []string) ([]types.Asset, error)
}

type LotStore interface {
	CreateLot(ctx context.Context, l *types.Lot) error
	GetLot(ctx context.Context, id string) (*types.Lot, error)
	// UpdateLot writes quantity, acquired date, unit price and cost basis.
	UpdateLot(ctx context.Context, l *types.Lot) error
	DeleteLot(ctx context.Context, id string) error
	// ListLots returns matching lots ordered by asset symbol, then acquired date descending.
	ListLots(ctx context.Context, f LotFilter) ([]types.Lot, error)
	CountLotsByAsset(ctx context.Context, assetID string) (int, error)
}

// PortfolioStore edits membership with set operations on the stored arrays,
// never by rewriting a whole array read earlier.
type PortfolioStore interface {
	CreatePortfolio(ctx context.Context, p *types.Portfolio) error
	GetPortfolio(ctx context.Context, id string) (*types.Portfolio, error)
	FindPortfolioByName(ctx context.Context, userID, name string) (*types.Portfolio, error)
	// ListPortfolios returns a user's portfolios ordered by name.
	ListPortfolios(ctx context.Context, userID string) ([]types.Portfolio, error)
	UpdatePortfolioDetails(ctx context.Context, id, name, description string) error
	DeletePortfolio(ctx context.Context, id string) error

	// AddPortfolioAsset reports false when the asset was already a member.
	AddPortfolioAsset(ctx context.Context, portfolioID, assetID string) (bool, error)
	RemovePortfolioAsset(ctx context.Context, portfolioID, assetID string) error
	AddPortfolioLot(ctx context.Context, portfolioID, lotID string) (bool, error)
	RemovePortfolioLot(ctx context.Context, portfolioID, lotID string) error

	// ListUserIDs returns every user owning a portfolio or a lot.
	ListUserIDs(ctx context.Context) ([]string, error)
}

type Store interface {
	AssetStore
	LotStore
	PortfolioStore
}

// DB is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the Store backed by PostgreSQL.
type Postgres struct {
	*AssetRepository
	*LotRepository
	*PortfolioRepository
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db DB) *Postgres {
	return &Postgres{
		AssetRepository:     NewAssetRepository(db),
		LotRepository:       NewLotRepository(db),
		PortfolioRepository: NewPortfolioRepository(db),
	}
}

// Migrations returns the embedded schema files for database.Migrate.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// notFound maps pgx.ErrNoRows to ErrNotFound and wraps everything else.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s %q: %w", field, s, err)
	}
	return d, nil
}
