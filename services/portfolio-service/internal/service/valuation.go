package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/metrics"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

type price struct {
	value  decimal.Decimal
	change decimal.Decimal
	ok     bool
}

type priceEntry struct {
	once  sync.Once
	price price
}

// priceBook holds the quotes of one valuation run. Each symbol is fetched at
// most once per run, so a symbol prices identically everywhere in a report.
// A failed fetch is remembered as a zero price and not retried.
type priceBook struct {
	s       *Service
	mu      sync.Mutex
	entries map[string]*priceEntry
}

func (s *Service) newPriceBook() *priceBook {
	return &priceBook{s: s, entries: make(map[string]*priceEntry)}
}

func (b *priceBook) get(ctx context.Context, symbol string) price {
	key := strings.ToUpper(symbol)

	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		e = &priceEntry{}
		b.entries[key] = e
	}
	b.mu.Unlock()

	e.once.Do(func() { e.price = b.fetch(ctx, key) })
	return e.price
}

func (b *priceBook) fetch(ctx context.Context, symbol string) price {
	ctx, cancel := context.WithTimeout(ctx, b.s.cfg.QuoteTimeout)
	defer cancel()

	q, err := b.s.quotes.GetQuote(ctx, symbol)
	if err != nil {
		b.s.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote unavailable, valuing at zero")
		return price{value: decimal.Zero, change: decimal.Zero}
	}
	return price{value: q.Price, change: q.Change, ok: true}
}

// prefetch prices every symbol with bounded parallelism. get never fails, so
// the group only bounds concurrency.
func (b *priceBook) prefetch(ctx context.Context, symbols []string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.s.cfg.Concurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			b.get(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()
}

func (b *priceBook) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// NetWorth values every portfolio the user owns. Quotes are fetched once per
// distinct symbol across all portfolios. A symbol whose quote cannot be had
// values at zero and is marked unpriced; the report is still returned.
func (s *Service) NetWorth(ctx context.Context, userID string) (*types.NetWorth, error) {
	started := time.Now()

	portfolios, err := s.store.ListPortfolios(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrPersistence.WithError(err)
	}

	details := make([]*types.PortfolioDetail, len(portfolios))
	for i := range portfolios {
		if details[i], err = s.populate(ctx, &portfolios[i]); err != nil {
			return nil, err
		}
	}

	book := s.newPriceBook()
	book.prefetch(ctx, symbolsOf(details...))

	nw := &types.NetWorth{
		UserID:     userID,
		Portfolios: make([]types.PortfolioValuation, len(details)),
		PricedAt:   s.now(),
		Totals:     types.ZeroTotals(),
	}
	for i, d := range details {
		nw.Portfolios[i] = valuePortfolio(ctx, book, d)
		nw.Totals = nw.Totals.Add(nw.Portfolios[i].Totals)
	}
	nw.SymbolsPriced = book.size()

	metrics.RecordValuation("user", time.Since(started), nw.SymbolsPriced)
	return nw, nil
}

// OnePortfolio values a single portfolio with its own price book.
func (s *Service) OnePortfolio(ctx context.Context, userID, portfolioID string) (*types.PortfolioValuation, error) {
	started := time.Now()

	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	detail, err := s.populate(ctx, p)
	if err != nil {
		return nil, err
	}

	book := s.newPriceBook()
	book.prefetch(ctx, symbolsOf(detail))
	v := valuePortfolio(ctx, book, detail)

	metrics.RecordValuation("portfolio", time.Since(started), book.size())
	return &v, nil
}

func symbolsOf(details ...*types.PortfolioDetail) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range details {
		for _, a := range d.Assets {
			key := strings.ToUpper(a.Symbol)
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		}
	}
	return out
}

// valuePortfolio folds lots into assets and assets into the portfolio. Every
// parent total is the sum of its children; nothing is recomputed.
func valuePortfolio(ctx context.Context, book *priceBook, d *types.PortfolioDetail) types.PortfolioValuation {
	byAsset := make(map[string][]types.Lot, len(d.Assets))
	for _, l := range d.Lots {
		byAsset[l.AssetID] = append(byAsset[l.AssetID], l)
	}

	pv := types.PortfolioValuation{
		PortfolioID: d.ID,
		Name:        d.Name,
		Description: d.Description,
		Assets:      make([]types.AssetValuation, len(d.Assets)),
		Totals:      types.ZeroTotals(),
	}
	for i, a := range d.Assets {
		pv.Assets[i] = valueAsset(a, book.get(ctx, a.Symbol), byAsset[a.ID])
		pv.Totals = pv.Totals.Add(pv.Assets[i].Totals)
	}
	return pv
}

func valueAsset(a types.Asset, p price, lots []types.Lot) types.AssetValuation {
	av := types.AssetValuation{
		AssetID:  a.ID,
		Symbol:   a.Symbol,
		Name:     assetName(a),
		Price:    p.value,
		Change:   p.change,
		Quantity: decimal.Zero,
		LotCount: len(lots),
		Priced:   p.ok,
		Lots:     make([]types.LotValuation, len(lots)),
		Totals:   types.ZeroTotals(),
	}
	for i, l := range lots {
		lv := valueLot(l, p)
		av.Lots[i] = lv
		av.Quantity = av.Quantity.Add(l.Quantity)
		av.Totals = av.Totals.Add(lv.Totals)
	}
	return av
}

func valueLot(l types.Lot, p price) types.LotValuation {
	value := l.Quantity.Mul(p.value)
	return types.LotValuation{
		LotID:        l.ID,
		Quantity:     l.Quantity,
		UnitPrice:    l.UnitPrice,
		AcquiredDate: l.AcquiredDate,
		Totals: types.Totals{
			MarketValue: value,
			DaysChange:  l.Quantity.Mul(p.change),
			BookValue:   l.CostBasis,
			TotalReturn: value.Sub(l.CostBasis),
		},
	}
}

func assetName(a types.Asset) string {
	switch {
	case a.LongName != "":
		return a.LongName
	case a.ShortName != "":
		return a.ShortName
	default:
		return a.DisplayName
	}
}
