package repository

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

var (
	assetCols     = []string{"id", "symbol", "asset_type", "exchange", "short_name", "long_name", "display_name", "currency", "long_business_summary", "created_at"}
	lotCols       = []string{"id", "user_id", "portfolio_id", "portfolio_name", "asset_id", "asset_symbol", "quantity", "acquired_date", "unit_price", "cost_basis", "created_at", "updated_at"}
	portfolioCols = []string{"id", "user_id", "name", "description", "asset_ids", "lot_ids", "created_at", "updated_at"}
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Postgres) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgres(mock)
}

func TestPostgres_CreateAsset(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()
	a := &types.Asset{ID: "a1", Symbol: "XYZ", AssetType: "EQUITY", Exchange: "NYSE", LongName: "XYZ Corp", Currency: "USD", CreatedAt: now}

	mock.ExpectQuery(`INSERT INTO assets`).
		WithArgs("a1", "XYZ", "EQUITY", "NYSE", "", "XYZ Corp", "", "USD", "", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a1"))

	stored, created, err := store.CreateAsset(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "a1", stored.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateAsset_ConflictReturnsExisting(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()
	a := &types.Asset{ID: "a2", Symbol: "xyz", CreatedAt: now}

	mock.ExpectQuery(`INSERT INTO assets`).
		WithArgs("a2", "xyz", "", "", "", "", "", "", "", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`WHERE upper\(symbol\) = upper\(\$1\)`).
		WithArgs("xyz").
		WillReturnRows(pgxmock.NewRows(assetCols).
			AddRow("a1", "XYZ", "EQUITY", "NYSE", "XYZ", "XYZ Corp", "XYZ", "USD", "", now))

	stored, created, err := store.CreateAsset(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "a1", stored.ID)
	assert.Equal(t, "XYZ", stored.Symbol)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetLot(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()
	acquired := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM lots WHERE id = \$1`).
		WithArgs("l1").
		WillReturnRows(pgxmock.NewRows(lotCols).
			AddRow("l1", "u1", "p1", "Retirement", "a1", "XYZ", "10.0000000000", acquired,
				"25.0000000000", "250.00000000000000000000", now, now))

	lot, err := store.GetLot(context.Background(), "l1")
	require.NoError(t, err)
	assert.True(t, lot.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, lot.UnitPrice.Equal(decimal.NewFromInt(25)))
	assert.True(t, lot.CostBasis.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "Retirement", lot.PortfolioName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetLot_NotFound(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectQuery(`FROM lots WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(lotCols))

	_, err := store.GetLot(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_ListLots_BuildsFilter(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectQuery(`FROM lots WHERE portfolio_id = \$1 AND asset_id = \$2 ORDER BY asset_symbol ASC, acquired_date DESC`).
		WithArgs("p1", "a1").
		WillReturnRows(pgxmock.NewRows(lotCols))

	lots, err := store.ListLots(context.Background(), LotFilter{PortfolioID: "p1", AssetID: "a1"})
	require.NoError(t, err)
	assert.Empty(t, lots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateLot_NotFound(t *testing.T) {
	mock, store := newMock(t)
	l := &types.Lot{ID: "gone", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1), CostBasis: decimal.NewFromInt(1)}

	mock.ExpectExec(`UPDATE lots`).
		WithArgs("gone", "1", pgxmock.AnyArg(), "1", "1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, store.UpdateLot(context.Background(), l), ErrNotFound)
}

func TestPostgres_AddPortfolioLot(t *testing.T) {
	tests := []struct {
		name      string
		affected  int64
		exists    bool
		wantAdded bool
		wantErr   error
	}{
		{name: "appended", affected: 1, wantAdded: true},
		{name: "already member", affected: 0, exists: true},
		{name: "no portfolio", affected: 0, exists: false, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, store := newMock(t)

			mock.ExpectExec(`SET lot_ids = array_append\(lot_ids, \$2\)`).
				WithArgs("p1", "l1").
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))
			if tt.affected == 0 {
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("p1").
					WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(tt.exists))
			}

			added, err := store.AddPortfolioLot(context.Background(), "p1", "l1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAdded, added)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgres_RemovePortfolioAsset(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectExec(`SET asset_ids = array_remove\(asset_ids, \$2\)`).
		WithArgs("p1", "a1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RemovePortfolioAsset(context.Background(), "p1", "a1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreatePortfolio_Duplicate(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()
	p := &types.Portfolio{ID: "p1", UserID: "u1", Name: "Retirement", Description: "Long horizon savings", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO portfolios`).
		WithArgs("p1", "u1", "Retirement", "Long horizon savings", []string{}, []string{}, now, now).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	assert.ErrorIs(t, store.CreatePortfolio(context.Background(), p), ErrDuplicate)
}

func TestPostgres_CreateLot_Duplicate(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()
	acquired := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	l := &types.Lot{
		ID: "l1", UserID: "u1", PortfolioID: "p1", PortfolioName: "Retirement", AssetID: "a1", AssetSymbol: "XYZ",
		Quantity: decimal.NewFromInt(10), AcquiredDate: acquired, UnitPrice: decimal.NewFromInt(25), CostBasis: decimal.NewFromInt(250),
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO lots`).
		WithArgs("l1", "u1", "p1", "Retirement", "a1", "XYZ", "10", acquired, "25", "250", now, now).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	assert.ErrorIs(t, store.CreateLot(context.Background(), l), ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListPortfolios(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM portfolios WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(portfolioCols).
			AddRow("p1", "u1", "Brokerage", "Taxable account", []string{"a1"}, []string{"l1", "l2"}, now, now).
			AddRow("p2", "u1", "Retirement", "Long horizon savings", []string{}, []string{}, now, now))

	portfolios, err := store.ListPortfolios(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, portfolios, 2)
	assert.Equal(t, []string{"l1", "l2"}, portfolios[0].LotIDs)
	assert.Equal(t, "Retirement", portfolios[1].Name)
}

func TestPostgres_ListUserIDs(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectQuery(`UNION`).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow("u2"))

	ids, err := store.ListUserIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func TestMigrations(t *testing.T) {
	raw, err := fs.ReadFile(Migrations(), "001_init.sql")
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "assets_symbol_key ON assets (upper(symbol))")
	assert.Contains(t, body, "lot_ids     TEXT[]")
}
