package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/events"
	"github.com/Rohianon/ptracker/pkg/quotes"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/repository"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

var testNow = time.Date(2024, 3, 13, 18, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	store  *repository.Memory
	quotes *quotes.MockSource
	events *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemory()
	src := quotes.NewMockSource()
	src.SetQuote("XYZ", "120.00", "2.00", "XYZ Corp", "NYSE")
	src.SetQuote("ABC", "50.00", "-1.50", "ABC Industries", "NasdaqGS")
	src.SetProfile("XYZ", "XYZ Corp makes things.")
	rec := &events.Recorder{}

	svc := New(store, src, rec, nil, Config{Concurrency: 2, QuoteTimeout: time.Second})
	svc.now = func() time.Time { return testNow }
	return &fixture{svc: svc, store: store, quotes: src, events: rec}
}

func (f *fixture) portfolio(t *testing.T, userID, name string, symbols ...string) *types.Portfolio {
	t.Helper()
	p, err := f.svc.CreatePortfolio(context.Background(), userID, types.CreatePortfolioRequest{
		Name:        name,
		Description: name + " holdings",
		Symbols:     symbols,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) assetID(t *testing.T, symbol string) string {
	t.Helper()
	a, err := f.store.FindAssetBySymbol(context.Background(), symbol)
	require.NoError(t, err)
	return a.ID
}

func (f *fixture) lot(t *testing.T, userID string, p *types.Portfolio, symbol, qty, price string) *types.Lot {
	t.Helper()
	lot, err := f.svc.AddLot(context.Background(), userID, p.ID, types.LotInput{
		AssetID:      f.assetID(t, symbol),
		Quantity:     dec(qty),
		UnitPrice:    dec(price),
		AcquiredDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return lot
}

func (f *fixture) reload(t *testing.T, id string) *types.Portfolio {
	t.Helper()
	p, err := f.store.GetPortfolio(context.Background(), id)
	require.NoError(t, err)
	return p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func details(t *testing.T, err error) any {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected an AppError, got %v", err)
	return appErr.Details
}

// faultyStore fails selected writes of an otherwise working memory store.
type faultyStore struct {
	*repository.Memory
	createLot error
	attachLot error
	detachLot error
	deleteLot map[string]error
}

func (s *faultyStore) CreateLot(ctx context.Context, l *types.Lot) error {
	if s.createLot != nil {
		return s.createLot
	}
	return s.Memory.CreateLot(ctx, l)
}

func (s *faultyStore) AddPortfolioLot(ctx context.Context, portfolioID, lotID string) (bool, error) {
	if s.attachLot != nil {
		return false, s.attachLot
	}
	return s.Memory.AddPortfolioLot(ctx, portfolioID, lotID)
}

func (s *faultyStore) RemovePortfolioLot(ctx context.Context, portfolioID, lotID string) error {
	if s.detachLot != nil {
		return s.detachLot
	}
	return s.Memory.RemovePortfolioLot(ctx, portfolioID, lotID)
}

func (s *faultyStore) DeleteLot(ctx context.Context, id string) error {
	if err := s.deleteLot[id]; err != nil {
		return err
	}
	return s.Memory.DeleteLot(ctx, id)
}

func newFaultyFixture(t *testing.T) (*fixture, *faultyStore) {
	t.Helper()
	f := newFixture(t)
	faulty := &faultyStore{Memory: f.store, deleteLot: map[string]error{}}
	f.svc.store = faulty
	return f, faulty
}

var errDisk = errors.New("disk full")

func TestNew_Defaults(t *testing.T) {
	svc := New(repository.NewMemory(), quotes.NewMockSource(), nil, nil, Config{})

	assert.Equal(t, 4, svc.cfg.Concurrency)
	assert.Equal(t, 10*time.Second, svc.cfg.QuoteTimeout)
	assert.Equal(t, 30*time.Second, svc.cfg.LockTTL)
	assert.IsType(t, events.NoopPublisher{}, svc.publisher)
	assert.NotNil(t, svc.locker)
}

func TestPublish_FailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("broker down")

	p := f.portfolio(t, "u1", "Retirement", "XYZ")

	assert.Len(t, p.AssetIDs, 1)
	assert.Equal(t, []string{events.TopicAssetCreated, events.TopicPortfolioCreated}, f.events.Topics())
}

func TestPublish_CarriesCorrelationID(t *testing.T) {
	f := newFixture(t)
	ctx := WithCorrelationID(context.Background(), "req-42")

	_, err := f.svc.CreatePortfolio(ctx, "u1", types.CreatePortfolioRequest{Name: "Retirement", Description: "Long horizon savings"})
	require.NoError(t, err)

	published := f.events.Events()
	require.Len(t, published, 1)
	assert.Equal(t, "req-42", published[0].Event.CorrelationID)
	assert.Equal(t, "u1", published[0].Event.UserID)
	assert.Equal(t, events.EventTypePortfolioCreated, published[0].Event.EventType)
}
