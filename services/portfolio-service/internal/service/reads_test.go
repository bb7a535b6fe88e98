package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/quotes"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

func TestListPortfolios(t *testing.T) {
	f := newFixture(t)
	a := f.portfolio(t, "u1", "Retirement", "XYZ", "ABC")
	f.portfolio(t, "u1", "Brokerage")
	f.portfolio(t, "u2", "Someone Else")
	f.lot(t, "u1", a, "XYZ", "1", "1")

	items, err := f.svc.ListPortfolios(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "Brokerage", items[0].Name)
	assert.Equal(t, "Retirement", items[1].Name)
	assert.Equal(t, 2, items[1].AssetCount)
	assert.Equal(t, 1, items[1].LotCount)
}

func TestPortfolioDetail_IncludesAssetsOfLots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.portfolio(t, "u1", "Retirement", "XYZ", "ABC")
	abc := f.assetID(t, "ABC")
	f.lot(t, "u1", p, "ABC", "1", "1")

	// simulate a portfolio whose asset set lost an entry
	require.NoError(t, f.store.RemovePortfolioAsset(ctx, p.ID, abc))

	detail, err := f.svc.PortfolioDetail(ctx, "u1", p.ID)
	require.NoError(t, err)
	require.Len(t, detail.Assets, 2)
	assert.Equal(t, "ABC", detail.Assets[0].Symbol)
	assert.Equal(t, "XYZ", detail.Assets[1].Symbol)
	assert.Len(t, detail.Lots, 1)
}

func TestLotsByUser_OrderedByPortfolioName(t *testing.T) {
	f := newFixture(t)
	r := f.portfolio(t, "u1", "Retirement", "XYZ", "ABC")
	b := f.portfolio(t, "u1", "Brokerage", "XYZ")
	f.lot(t, "u1", r, "XYZ", "1", "1")
	f.lot(t, "u1", r, "ABC", "1", "1")
	f.lot(t, "u1", b, "XYZ", "1", "1")

	lots, err := f.svc.LotsByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, lots, 3)

	var got []string
	for _, l := range lots {
		got = append(got, l.PortfolioName+"/"+l.AssetSymbol)
	}
	assert.Equal(t, []string{"Brokerage/XYZ", "Retirement/ABC", "Retirement/XYZ"}, got)

	none, err := f.svc.LotsByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, []types.Lot{}, none)
}

func TestGetQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.GetQuote(ctx, "xyz")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("120")))

	_, err = f.svc.GetQuote(ctx, "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrSymbolNotFound)

	f.quotes.Fail("ABC", quotes.ErrUnavailable)
	_, err = f.svc.GetQuote(ctx, "ABC")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}

func TestGetHistory_UsesLatestSession(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.GetHistory(context.Background(), "XYZ")
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 13, 9, 30, 0, 0, ny), res.Start.In(ny))
	assert.Equal(t, time.Date(2024, 3, 13, 16, 0, 0, 0, ny), res.End.In(ny))
	assert.Len(t, res.Points, 7)
	assert.True(t, res.Points[0].Close.Equal(dec("120")))
}

func TestSearchSymbols(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.svc.SearchSymbols(ctx, "industries")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ABC", results[0].Symbol)

	results, err = f.svc.SearchSymbols(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = f.svc.SearchSymbols(ctx, " ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
