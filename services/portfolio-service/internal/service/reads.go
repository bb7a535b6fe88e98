package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/quotes"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/repository"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// ListPortfolios returns the user's portfolios ordered by name.
func (s *Service) ListPortfolios(ctx context.Context, userID string) ([]types.PortfolioListItem, error) {
	portfolios, err := s.store.ListPortfolios(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrPersistence.WithError(err)
	}

	items := make([]types.PortfolioListItem, len(portfolios))
	for i, p := range portfolios {
		items[i] = types.PortfolioListItem{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			AssetCount:  len(p.AssetIDs),
			LotCount:    len(p.LotIDs),
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		}
	}
	return items, nil
}

// PortfolioDetail returns the portfolio with its assets and lots populated.
// Lot ids that no longer resolve are left out.
func (s *Service) PortfolioDetail(ctx context.Context, userID, portfolioID string) (*types.PortfolioDetail, error) {
	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	return s.populate(ctx, p)
}

// populate joins a portfolio's member ids into records. Assets are the union
// of the asset set and the assets of its lots, ordered by symbol; lots are
// ordered by symbol then acquired date, newest first.
func (s *Service) populate(ctx context.Context, p *types.Portfolio) (*types.PortfolioDetail, error) {
	all, err := s.store.ListLots(ctx, repository.LotFilter{PortfolioID: p.ID})
	if err != nil {
		return nil, apperrors.ErrPersistence.WithError(err)
	}

	lots := make([]types.Lot, 0, len(all))
	assetIDs := append([]string(nil), p.AssetIDs...)
	for _, l := range all {
		if !p.HasLot(l.ID) {
			continue
		}
		lots = append(lots, l)
		if !contains(assetIDs, l.AssetID) {
			assetIDs = append(assetIDs, l.AssetID)
		}
	}

	var assets []types.Asset
	if len(assetIDs) > 0 {
		assets, err = s.store.ListAssetsByIDs(ctx, assetIDs)
		if err != nil {
			return nil, apperrors.ErrPersistence.WithError(err)
		}
	}
	if assets == nil {
		assets = []types.Asset{}
	}
	if dangling := len(p.LotIDs) - len(lots); dangling > 0 {
		s.log.Debug().Str("portfolio_id", p.ID).Int("dangling", dangling).Msg("Skipping unresolved lot ids")
	}

	return &types.PortfolioDetail{
		ID:          p.ID,
		UserID:      p.UserID,
		Name:        p.Name,
		Description: p.Description,
		Assets:      assets,
		Lots:        lots,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

// LotsByUser returns every lot the user holds, ordered by portfolio name,
// then symbol, then acquired date newest first.
func (s *Service) LotsByUser(ctx context.Context, userID string) ([]types.Lot, error) {
	lots, err := s.store.ListLots(ctx, repository.LotFilter{UserID: userID})
	if err != nil {
		return nil, apperrors.ErrPersistence.WithError(err)
	}
	if lots == nil {
		return []types.Lot{}, nil
	}
	sort.SliceStable(lots, func(i, j int) bool {
		return lots[i].PortfolioName < lots[j].PortfolioName
	})
	return lots, nil
}

func (s *Service) GetQuote(ctx context.Context, symbol string) (*quotes.Quote, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	q, err := s.quotes.GetQuote(ctx, sym)
	if err != nil {
		return nil, upstreamErr(err, sym)
	}
	return q, nil
}

// GetHistory returns closing prices for the most recent regular trading
// session.
func (s *Service) GetHistory(ctx context.Context, symbol string) (*types.HistoryResult, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	start, end := quotes.TradingWindow(s.now())
	points, err := s.quotes.GetHistory(ctx, sym, start, end)
	if err != nil {
		return nil, upstreamErr(err, sym)
	}

	res := &types.HistoryResult{Symbol: sym, Start: start, End: end, Points: make([]types.HistoryPoint, len(points))}
	for i, pt := range points {
		res.Points[i] = types.HistoryPoint{Timestamp: pt.Timestamp, Close: pt.Close}
	}
	return res, nil
}

func (s *Service) SearchSymbols(ctx context.Context, text string) ([]quotes.SearchResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.ErrValidation.WithDetails("q is required")
	}
	results, err := s.quotes.Search(ctx, text)
	if err != nil {
		return nil, apperrors.ErrUpstreamUnavailable.WithError(err)
	}
	if results == nil {
		results = []quotes.SearchResult{}
	}
	return results, nil
}

func normalizeSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", apperrors.ErrValidation.WithDetails("symbol is required")
	}
	return sym, nil
}

func upstreamErr(err error, symbol string) error {
	if errors.Is(err, quotes.ErrNotFound) {
		return apperrors.ErrSymbolNotFound.WithDetails(symbol)
	}
	return apperrors.ErrUpstreamUnavailable.WithError(err).WithDetails(symbol)
}
