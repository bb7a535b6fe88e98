package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/events"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/repository"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// AddLot records a purchase of a member asset and attaches it to the
// portfolio. The lot insert and the attach are two writes: if the attach
// fails the lot exists but is unlisted, and the error names it.
func (s *Service) AddLot(ctx context.Context, userID, portfolioID string, in types.LotInput) (*types.Lot, error) {
	lot, err := s.addLot(ctx, userID, portfolioID, in)
	record("lot.add", err)
	return lot, err
}

func (s *Service) addLot(ctx context.Context, userID, portfolioID string, in types.LotInput) (*types.Lot, error) {
	if problems := validateLot(in); len(problems) > 0 {
		return nil, apperrors.ErrValidation.WithDetails(problems)
	}

	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	asset, err := s.memberAsset(ctx, p, in.AssetID)
	if err != nil {
		return nil, err
	}

	return s.insertLot(ctx, p, asset, in)
}

// AddLots validates every lot before writing any of them. Lots are then
// inserted one at a time; a failure stops the batch and the error lists the
// lots already created.
func (s *Service) AddLots(ctx context.Context, userID, portfolioID string, in []types.LotInput) ([]types.Lot, error) {
	lots, err := s.addLots(ctx, userID, portfolioID, in)
	record("lot.add_batch", err)
	return lots, err
}

func (s *Service) addLots(ctx context.Context, userID, portfolioID string, in []types.LotInput) ([]types.Lot, error) {
	if len(in) == 0 {
		return nil, apperrors.ErrValidation.WithDetails("at least one lot is required")
	}

	var problems []string
	for i, lot := range in {
		for _, p := range validateLot(lot) {
			problems = append(problems, fmt.Sprintf("lots[%d]: %s", i, p))
		}
	}
	if len(problems) > 0 {
		return nil, apperrors.ErrValidation.WithDetails(problems)
	}

	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	assets := make(map[string]*types.Asset)
	for _, lot := range in {
		if _, ok := assets[lot.AssetID]; ok {
			continue
		}
		asset, err := s.memberAsset(ctx, p, lot.AssetID)
		if err != nil {
			return nil, err
		}
		assets[lot.AssetID] = asset
	}

	created := make([]types.Lot, 0, len(in))
	for _, lot := range in {
		l, err := s.insertLot(ctx, p, assets[lot.AssetID], lot)
		if err != nil {
			if len(created) == 0 {
				return nil, err
			}
			ids := make([]string, len(created))
			for i, c := range created {
				ids[i] = c.ID
			}
			return created, apperrors.ErrPersistence.
				WithError(err).
				WithMessagef("Batch stopped after %d of %d lots", len(created), len(in)).
				WithDetails(ids)
		}
		created = append(created, *l)
	}
	return created, nil
}

func (s *Service) insertLot(ctx context.Context, p *types.Portfolio, asset *types.Asset, in types.LotInput) (*types.Lot, error) {
	now := s.now()
	lot := &types.Lot{
		ID:            uuid.New().String(),
		UserID:        p.UserID,
		PortfolioID:   p.ID,
		PortfolioName: p.Name,
		AssetID:       asset.ID,
		AssetSymbol:   asset.Symbol,
		Quantity:      in.Quantity,
		AcquiredDate:  types.TruncateDate(in.AcquiredDate),
		UnitPrice:     in.UnitPrice,
		CostBasis:     types.CostBasis(in.Quantity, in.UnitPrice),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateLot(ctx, lot); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrConflict.WithDetails(lot.ID)
		}
		return nil, apperrors.ErrPersistence.WithError(err)
	}
	if _, err := s.store.AddPortfolioLot(ctx, p.ID, lot.ID); err != nil {
		s.log.Error().Err(err).
			Str("lot_id", lot.ID).
			Str("portfolio_id", p.ID).
			Msg("Lot created but not attached to portfolio")
		return nil, apperrors.ErrPersistence.
			WithError(err).
			WithMessage("Lot was created but could not be attached to its portfolio").
			WithDetails(lot.ID)
	}

	s.publish(ctx, events.TopicLotAdded, events.EventTypeLotAdded, p.UserID, lotPayload(lot, nil))
	return lot, nil
}

// UpdateLot applies the supplied fields. Cost basis is recomputed from the new
// quantity and unit price whenever either changes. When nothing differs from
// the stored lot the result is ErrNoChange and nothing is written.
func (s *Service) UpdateLot(ctx context.Context, userID, lotID string, upd types.LotUpdate) (*types.UpdateLotResult, error) {
	res, err := s.updateLot(ctx, userID, lotID, upd)
	record("lot.update", err)
	return res, err
}

func (s *Service) updateLot(ctx context.Context, userID, lotID string, upd types.LotUpdate) (*types.UpdateLotResult, error) {
	var problems []string
	if upd.Quantity != nil {
		problems = append(problems, amountProblems("quantity", *upd.Quantity)...)
	}
	if upd.UnitPrice != nil {
		problems = append(problems, amountProblems("unit_price", *upd.UnitPrice)...)
	}
	if len(problems) > 0 {
		return nil, apperrors.ErrValidation.WithDetails(problems)
	}

	lot, err := s.ownedLot(ctx, userID, lotID)
	if err != nil {
		return nil, err
	}

	res := &types.UpdateLotResult{Lot: lot}
	if upd.Quantity != nil && !upd.Quantity.Equal(lot.Quantity) {
		res.QuantityChanged = true
		lot.Quantity = *upd.Quantity
	}
	if upd.AcquiredDate != nil {
		date := types.TruncateDate(*upd.AcquiredDate)
		if !date.Equal(types.TruncateDate(lot.AcquiredDate)) {
			res.AcquiredDateChanged = true
			lot.AcquiredDate = date
		}
	}
	if upd.UnitPrice != nil && !upd.UnitPrice.Equal(lot.UnitPrice) {
		res.UnitPriceChanged = true
		lot.UnitPrice = *upd.UnitPrice
	}

	if !res.QuantityChanged && !res.AcquiredDateChanged && !res.UnitPriceChanged {
		return nil, apperrors.ErrNoChange.WithDetails(lotID)
	}
	if res.QuantityChanged || res.UnitPriceChanged {
		lot.CostBasis = types.CostBasis(lot.Quantity, lot.UnitPrice)
		if lot.CostBasis.Cmp(maxLotAmount) >= 0 {
			return nil, apperrors.ErrValidation.WithDetails([]string{costBasisTooLarge})
		}
	}
	lot.UpdatedAt = s.now()

	if err := s.store.UpdateLot(ctx, lot); err != nil {
		return nil, storeErr(err, apperrors.ErrLotNotFound.WithDetails(lotID))
	}

	s.publish(ctx, events.TopicLotUpdated, events.EventTypeLotUpdated, userID, lotPayload(lot, res.ChangedFields()))
	return res, nil
}

// DeleteLot removes the lot, then detaches it from its portfolio. If the
// detach fails the lot is already gone and the portfolio keeps a dangling
// reference, which readers skip and Reconcile removes.
func (s *Service) DeleteLot(ctx context.Context, userID, lotID string) (*types.Lot, error) {
	lot, err := s.ownedLot(ctx, userID, lotID)
	if err == nil {
		err = s.removeLot(ctx, lot)
	}
	record("lot.delete", err)
	if err != nil {
		return nil, err
	}
	return lot, nil
}

func (s *Service) removeLot(ctx context.Context, lot *types.Lot) error {
	// a lot deleted by someone else still gets its reference pulled
	deleteErr := s.store.DeleteLot(ctx, lot.ID)
	gone := errors.Is(deleteErr, repository.ErrNotFound)
	if deleteErr != nil && !gone {
		return apperrors.ErrPersistence.WithError(deleteErr)
	}
	if !gone {
		s.publish(ctx, events.TopicLotDeleted, events.EventTypeLotDeleted, lot.UserID, lotPayload(lot, nil))
	}

	// a missing portfolio means nothing references the lot
	err := s.store.RemovePortfolioLot(ctx, lot.PortfolioID, lot.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Error().Err(err).
			Str("lot_id", lot.ID).
			Str("portfolio_id", lot.PortfolioID).
			Msg("Lot deleted but still referenced by portfolio")
		return apperrors.ErrPersistence.
			WithError(err).
			WithMessage("Lot was deleted but its portfolio still references it").
			WithDetails(lot.ID)
	}
	if gone {
		return apperrors.ErrLotNotFound.WithDetails(lot.ID)
	}
	return nil
}

// RemoveAllLots deletes every lot of the asset in the portfolio, one at a
// time. Deletes that fail are reported in FailedLotIDs and the error; lots
// already removed stay removed.
func (s *Service) RemoveAllLots(ctx context.Context, userID, portfolioID, assetID string) (*types.RemoveLotsResult, error) {
	p, err := s.ownedPortfolio(ctx, userID, portfolioID)
	if err != nil {
		record("lot.remove_all", err)
		return nil, err
	}
	res, err := s.removeAllLots(ctx, p.ID, assetID)
	record("lot.remove_all", err)
	return res, err
}

func (s *Service) removeAllLots(ctx context.Context, portfolioID, assetID string) (*types.RemoveLotsResult, error) {
	lots, err := s.store.ListLots(ctx, repository.LotFilter{PortfolioID: portfolioID, AssetID: assetID})
	if err != nil {
		return nil, apperrors.ErrPersistence.WithError(err)
	}

	res := &types.RemoveLotsResult{RemovedLotIDs: []string{}}
	for i := range lots {
		if err := s.removeLot(ctx, &lots[i]); err != nil && apperrors.KindOf(err) != apperrors.KindNotFound {
			// a lot that vanished meanwhile counts as removed; anything else is a failure
			s.log.Warn().Err(err).
				Str("lot_id", lots[i].ID).
				Str("portfolio_id", portfolioID).
				Str("asset_id", assetID).
				Msg("Failed to remove lot")
			res.FailedLotIDs = append(res.FailedLotIDs, lots[i].ID)
			continue
		}
		res.RemovedLotIDs = append(res.RemovedLotIDs, lots[i].ID)
	}
	res.RemovedCount = len(res.RemovedLotIDs)

	if len(res.FailedLotIDs) > 0 {
		return res, apperrors.ErrPersistence.
			WithMessagef("Removed %d lots, %d could not be removed", res.RemovedCount, len(res.FailedLotIDs)).
			WithDetails(res.FailedLotIDs)
	}
	return res, nil
}

func validateLot(in types.LotInput) []string {
	var problems []string
	if in.AssetID == "" {
		problems = append(problems, "asset_id is required")
	}
	amounts := append(amountProblems("quantity", in.Quantity), amountProblems("unit_price", in.UnitPrice)...)
	if len(amounts) == 0 && types.CostBasis(in.Quantity, in.UnitPrice).Cmp(maxLotAmount) >= 0 {
		amounts = append(amounts, costBasisTooLarge)
	}
	problems = append(problems, amounts...)
	if in.AcquiredDate.IsZero() {
		problems = append(problems, "acquired_date is required")
	}
	return problems
}

// Quantities and prices are stored as NUMERIC(28,10) and cost basis as
// NUMERIC(38,20), so each keeps at most 18 integer digits.
const lotScale = 10

var maxLotAmount = decimal.New(1, 18)

const costBasisTooLarge = "quantity times unit_price must be less than 10^18"

func amountProblems(field string, d decimal.Decimal) []string {
	if !d.IsPositive() {
		return []string{field + " must be greater than zero"}
	}
	var problems []string
	if !d.Equal(d.Truncate(lotScale)) {
		problems = append(problems, fmt.Sprintf("%s must have at most %d decimal places", field, lotScale))
	}
	if d.Cmp(maxLotAmount) >= 0 {
		problems = append(problems, field+" must be less than 10^18")
	}
	return problems
}

func (s *Service) ownedPortfolio(ctx context.Context, userID, portfolioID string) (*types.Portfolio, error) {
	missing := apperrors.ErrPortfolioNotFound.WithDetails(portfolioID)
	p, err := s.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, storeErr(err, missing)
	}
	if p.UserID != userID {
		return nil, missing
	}
	return p, nil
}

func (s *Service) ownedLot(ctx context.Context, userID, lotID string) (*types.Lot, error) {
	missing := apperrors.ErrLotNotFound.WithDetails(lotID)
	lot, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		return nil, storeErr(err, missing)
	}
	if lot.UserID != userID {
		return nil, missing
	}
	return lot, nil
}

// memberAsset loads assetID after checking it belongs to p.
func (s *Service) memberAsset(ctx context.Context, p *types.Portfolio, assetID string) (*types.Asset, error) {
	if !p.HasAsset(assetID) {
		return nil, apperrors.ErrAssetNotInPortfolio.WithDetails(assetID)
	}
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, storeErr(err, apperrors.ErrAssetNotFound.WithDetails(assetID))
	}
	return asset, nil
}

func lotPayload(l *types.Lot, changed []string) events.LotPayload {
	return events.LotPayload{
		LotID:        l.ID,
		PortfolioID:  l.PortfolioID,
		AssetID:      l.AssetID,
		Symbol:       l.AssetSymbol,
		Quantity:     l.Quantity,
		UnitPrice:    l.UnitPrice,
		CostBasis:    l.CostBasis,
		AcquiredDate: l.AcquiredDate,
		Changed:      changed,
	}
}
