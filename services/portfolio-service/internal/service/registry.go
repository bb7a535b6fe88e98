package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/events"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/repository"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// ResolveOrCreate returns the asset for symbol, creating it from a live quote
// the first time the symbol is seen. A symbol the provider does not know is
// ErrSymbolNotFound and nothing is stored; a missing profile only leaves the
// business summary empty.
func (s *Service) ResolveOrCreate(ctx context.Context, userID, symbol string) (*types.ResolveResult, error) {
	res, err := s.resolveOrCreate(ctx, userID, symbol)
	record("asset.resolve", err)
	return res, err
}

func (s *Service) resolveOrCreate(ctx context.Context, userID, symbol string) (*types.ResolveResult, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	existing, err := s.findAsset(ctx, sym)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &types.ResolveResult{Asset: existing}, nil
	}

	// Serialise first-time creation so concurrent callers make one upstream
	// lookup. The unique symbol index still decides the winner if the lock
	// cannot be taken.
	release, err := s.locker.Acquire(ctx, "asset:"+sym, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", sym).Msg("Asset lock unavailable, continuing without it")
	} else {
		defer release()
		existing, err := s.findAsset(ctx, sym)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &types.ResolveResult{Asset: existing}, nil
		}
	}

	quote, err := s.quotes.GetQuote(ctx, sym)
	if err != nil {
		return nil, upstreamErr(err, sym)
	}

	summary := ""
	if profile, err := s.quotes.GetProfile(ctx, sym); err != nil {
		s.log.Warn().Err(err).Str("symbol", sym).Msg("Profile unavailable, creating asset without summary")
	} else {
		summary = profile.LongBusinessSummary
	}

	asset := &types.Asset{
		ID:                  uuid.New().String(),
		Symbol:              quote.Symbol,
		AssetType:           quote.QuoteType,
		Exchange:            quote.Exchange,
		ShortName:           quote.ShortName,
		LongName:            quote.LongName,
		DisplayName:         quote.DisplayName,
		Currency:            quote.Currency,
		LongBusinessSummary: summary,
		CreatedAt:           s.now(),
	}
	if asset.Symbol == "" {
		asset.Symbol = sym
	}

	stored, created, err := s.store.CreateAsset(ctx, asset)
	if err != nil {
		return nil, apperrors.ErrPersistence.WithError(err)
	}

	if created {
		s.log.Info().Str("asset_id", stored.ID).Str("symbol", stored.Symbol).Msg("Asset created")
		s.publish(ctx, events.TopicAssetCreated, events.EventTypeAssetCreated, userID, events.AssetCreatedPayload{
			AssetID:   stored.ID,
			Symbol:    stored.Symbol,
			Name:      stored.LongName,
			AssetType: stored.AssetType,
			Exchange:  stored.Exchange,
		})
	}

	return &types.ResolveResult{Asset: stored, Created: created}, nil
}

// findAsset returns nil, nil when no asset has the symbol.
func (s *Service) findAsset(ctx context.Context, symbol string) (*types.Asset, error) {
	a, err := s.store.FindAssetBySymbol(ctx, symbol)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ErrPersistence.WithError(err)
	}
	return a, nil
}

// CanRemove reports whether no lot anywhere references the asset.
func (s *Service) CanRemove(ctx context.Context, assetID string) (*types.RemovableResult, error) {
	if _, err := s.store.GetAsset(ctx, assetID); err != nil {
		return nil, storeErr(err, apperrors.ErrAssetNotFound.WithDetails(assetID))
	}

	n, err := s.store.CountLotsByAsset(ctx, assetID)
	if err != nil {
		return nil, apperrors.ErrPersistence.WithError(err)
	}
	return &types.RemovableResult{AssetID: assetID, Removable: n == 0}, nil
}
