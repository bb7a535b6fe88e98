package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/events"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/repository"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// NameAvailable reports whether userID has no portfolio called name.
func (s *Service) NameAvailable(ctx context.Context, userID, name string) (bool, error) {
	_, err := s.store.FindPortfolioByName(ctx, userID, strings.TrimSpace(name))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return true, nil
	case err != nil:
		return false, apperrors.ErrPersistence.WithError(err)
	default:
		return false, nil
	}
}

// CreatePortfolio resolves each initial symbol and stores the portfolio with
// the assets that resolved. Symbols that fail are skipped with a warning.
func (s *Service) CreatePortfolio(ctx context.Context, userID string, req types.CreatePortfolioRequest) (*types.Portfolio, error) {
	p, err := s.createPortfolio(ctx, userID, req)
	record("portfolio.create", err)
	return p, err
}

func (s *Service) createPortfolio(ctx context.Context, userID string, req types.CreatePortfolioRequest) (*types.Portfolio, error) {
	if problems := req.Validate(); len(problems) > 0 {
		return nil, apperrors.ErrValidation.WithDetails(problems)
	}

	assetIDs := []string{}
	for _, symbol := range req.Symbols {
		res, err := s.resolveOrCreate(ctx, userID, symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Skipping initial symbol")
			continue
		}
		if !contains(assetIDs, res.Asset.ID) {
			assetIDs = append(assetIDs, res.Asset.ID)
		}
	}

	now := s.now()
	p := &types.Portfolio{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		AssetIDs:    assetIDs,
		LotIDs:      []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreatePortfolio(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrPortfolioNameTaken.WithDetails(p.Name)
		}
		return nil, apperrors.ErrPersistence.WithError(err)
	}

	s.log.Info().Str("portfolio_id", p.ID).Str("user_id", userID).Int("assets", len(assetIDs)).Msg("Portfolio created")
	s.publish(ctx, events.TopicPortfolioCreated, events.EventTypePortfolioCreated, userID, events.PortfolioPayload{
		PortfolioID: p.ID,
		Name:        p.Name,
		Description: p.Description,
		AssetIDs:    p.AssetIDs,
	})
	return p, nil
}

// RenamePortfolio updates the name and/or description. Values equal to the
// stored ones are not written; the result says which fields changed.
func (s *Service) RenamePortfolio(ctx context.Context, userID, portfolioID string, req types.UpdatePortfolioRequest) (*types.RenameResult, error) {
	res, err := s.renamePortfolio(ctx, userID, portfolioID, req)
	record("portfolio.rename", err)
	return res, err
}

func (s *Service) renamePortfolio(ctx context.Context, userID, portfolioID string, req types.UpdatePortfolioRequest) (*types.RenameResult, error) {
	if problems := req.Validate(); len(problems) > 0 {
		return nil, apperrors.ErrValidation.WithDetails(problems)
	}

	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}

	res := &types.RenameResult{
		Portfolio:      p,
		OldName:        p.Name,
		NewName:        p.Name,
		OldDescription: p.Description,
		NewDescription: p.Description,
	}
	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name != p.Name {
			res.NameChanged = true
			res.NewName = name
		}
	}
	if req.Description != nil {
		if desc := strings.TrimSpace(*req.Description); desc != p.Description {
			res.DescriptionChanged = true
			res.NewDescription = desc
		}
	}
	if !res.Changed() {
		return res, nil
	}

	if res.NameChanged {
		available, err := s.NameAvailable(ctx, userID, res.NewName)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, apperrors.ErrPortfolioNameTaken.WithDetails(res.NewName)
		}
	}

	if err := s.store.UpdatePortfolioDetails(ctx, p.ID, res.NewName, res.NewDescription); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrPortfolioNameTaken.WithDetails(res.NewName)
		}
		return nil, storeErr(err, apperrors.ErrPortfolioNotFound.WithDetails(portfolioID))
	}
	p.Name = res.NewName
	p.Description = res.NewDescription
	p.UpdatedAt = s.now()

	s.publish(ctx, events.TopicPortfolioUpdated, events.EventTypePortfolioRenamed, userID, events.PortfolioRenamedPayload{
		PortfolioID:        p.ID,
		OldName:            res.OldName,
		NewName:            res.NewName,
		OldDescription:     res.OldDescription,
		NewDescription:     res.NewDescription,
		NameChanged:        res.NameChanged,
		DescriptionChanged: res.DescriptionChanged,
	})
	return res, nil
}

// DeletePortfolio clears the lots of every member asset, then deletes the
// portfolio. Lot removal failures do not stop the delete; they are reported in
// FailedLotIDs and Reconcile deletes whatever lots are left orphaned.
func (s *Service) DeletePortfolio(ctx context.Context, userID, portfolioID string) (*types.DeletePortfolioResult, error) {
	res, err := s.deletePortfolio(ctx, userID, portfolioID)
	record("portfolio.delete", err)
	return res, err
}

func (s *Service) deletePortfolio(ctx context.Context, userID, portfolioID string) (*types.DeletePortfolioResult, error) {
	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}

	res := &types.DeletePortfolioResult{Portfolio: p, RemovedLotIDs: []string{}}
	for _, assetID := range p.AssetIDs {
		removed, err := s.removeAllLots(ctx, p.ID, assetID)
		if removed != nil {
			res.RemovedLotIDs = append(res.RemovedLotIDs, removed.RemovedLotIDs...)
			res.FailedLotIDs = append(res.FailedLotIDs, removed.FailedLotIDs...)
		}
		if err != nil {
			s.log.Warn().Err(err).
				Str("portfolio_id", p.ID).
				Str("asset_id", assetID).
				Msg("Lot cleanup incomplete, continuing portfolio delete")
		}
	}

	if err := s.store.DeletePortfolio(ctx, p.ID); err != nil {
		return nil, storeErr(err, apperrors.ErrPortfolioNotFound.WithDetails(portfolioID))
	}

	s.log.Info().
		Str("portfolio_id", p.ID).
		Int("lots_removed", len(res.RemovedLotIDs)).
		Int("lots_failed", len(res.FailedLotIDs)).
		Msg("Portfolio deleted")
	s.publish(ctx, events.TopicPortfolioDeleted, events.EventTypePortfolioDeleted, userID, events.PortfolioDeletedPayload{
		PortfolioID:   p.ID,
		Name:          p.Name,
		RemovedLotIDs: res.RemovedLotIDs,
	})
	return res, nil
}

// AddAsset resolves symbol and adds the asset to the portfolio. An asset that
// is already a member is reported with AlreadyPresent and nothing is written.
func (s *Service) AddAsset(ctx context.Context, userID, portfolioID, symbol string) (*types.AddAssetResult, error) {
	res, err := s.addAsset(ctx, userID, portfolioID, symbol)
	record("portfolio.add_asset", err)
	return res, err
}

func (s *Service) addAsset(ctx context.Context, userID, portfolioID, symbol string) (*types.AddAssetResult, error) {
	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolveOrCreate(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}

	asset := resolved.Asset
	res := &types.AddAssetResult{Portfolio: p, Asset: asset, AssetCreated: resolved.Created}
	if p.HasAsset(asset.ID) {
		res.AlreadyPresent = true
		return res, nil
	}

	added, err := s.store.AddPortfolioAsset(ctx, p.ID, asset.ID)
	if err != nil {
		return nil, storeErr(err, apperrors.ErrPortfolioNotFound.WithDetails(portfolioID))
	}
	if !added {
		// a concurrent request added it first
		res.AlreadyPresent = true
		return res, nil
	}
	p.AssetIDs = append(p.AssetIDs, asset.ID)

	s.publish(ctx, events.TopicPortfolioAssetAdded, events.EventTypePortfolioAssetAdded, userID, events.PortfolioAssetPayload{
		PortfolioID: p.ID,
		AssetID:     asset.ID,
		Symbol:      asset.Symbol,
	})
	return res, nil
}

// RemoveAsset detaches the asset from the portfolio. It is refused with
// ErrLotsStillPresent, naming the lots, while any lot for the asset remains in
// the portfolio; RemoveAllLots clears them.
func (s *Service) RemoveAsset(ctx context.Context, userID, portfolioID, assetID string) (*types.Portfolio, error) {
	p, err := s.removeAsset(ctx, userID, portfolioID, assetID)
	record("portfolio.remove_asset", err)
	return p, err
}

func (s *Service) removeAsset(ctx context.Context, userID, portfolioID, assetID string) (*types.Portfolio, error) {
	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if !p.HasAsset(assetID) {
		return nil, apperrors.ErrAssetNotInPortfolio.WithDetails(assetID)
	}

	lots, err := s.store.ListLots(ctx, repository.LotFilter{PortfolioID: p.ID, AssetID: assetID})
	if err != nil {
		return nil, apperrors.ErrPersistence.WithError(err)
	}
	if len(lots) > 0 {
		ids := make([]string, len(lots))
		for i, l := range lots {
			ids[i] = l.ID
		}
		return nil, apperrors.ErrLotsStillPresent.
			WithMessagef("Asset still has %d lots in this portfolio", len(ids)).
			WithDetails(ids)
	}

	if err := s.store.RemovePortfolioAsset(ctx, p.ID, assetID); err != nil {
		return nil, storeErr(err, apperrors.ErrPortfolioNotFound.WithDetails(portfolioID))
	}
	p.AssetIDs = without(p.AssetIDs, assetID)

	symbol := ""
	if asset, err := s.store.GetAsset(ctx, assetID); err == nil {
		symbol = asset.Symbol
	}
	s.publish(ctx, events.TopicPortfolioAssetRemoved, events.EventTypePortfolioAssetRemoved, userID, events.PortfolioAssetPayload{
		PortfolioID: p.ID,
		AssetID:     assetID,
		Symbol:      symbol,
	})
	return p, nil
}

// RemoveAssetCascade clears the asset's lots and then removes the asset. When
// some lots cannot be removed the asset stays and the error lists them.
func (s *Service) RemoveAssetCascade(ctx context.Context, userID, portfolioID, assetID string) (*types.Portfolio, *types.RemoveLotsResult, error) {
	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		record("portfolio.remove_asset", err)
		return nil, nil, err
	}
	if !p.HasAsset(assetID) {
		err := apperrors.ErrAssetNotInPortfolio.WithDetails(assetID)
		record("portfolio.remove_asset", err)
		return nil, nil, err
	}

	removed, err := s.removeAllLots(ctx, p.ID, assetID)
	if err != nil {
		record("portfolio.remove_asset", err)
		return nil, removed, err
	}
	p, err = s.RemoveAsset(ctx, userID, portfolioID, assetID)
	return p, removed, err
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
