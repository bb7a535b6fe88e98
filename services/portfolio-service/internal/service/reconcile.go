package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/events"
	"github.com/Rohianon/ptracker/pkg/metrics"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/repository"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// Reconcile scans portfolios and lots for the membership damage that partial
// writes leave behind and, unless dryRun, repairs it:
//
//   - lot ids in a portfolio that do not resolve to a lot of that portfolio are pulled
//   - lots missing from their portfolio's lot set are attached
//   - assets of a portfolio's lots missing from its asset set are attached
//   - lots whose portfolio no longer exists are deleted
//
// An empty userID scans every user. A repair that fails is listed in the
// report's Errors and the scan goes on.
func (s *Service) Reconcile(ctx context.Context, userID string, dryRun bool) (*types.ReconcileReport, error) {
	report := &types.ReconcileReport{
		DryRun:           dryRun,
		DanglingLotRefs:  []types.PortfolioRef{},
		MissingLotRefs:   []types.PortfolioRef{},
		MissingAssetRefs: []types.PortfolioRef{},
		OrphanLots:       []string{},
		StartedAt:        s.now(),
	}
	started := time.Now()

	users := []string{userID}
	if userID == "" {
		var err error
		if users, err = s.store.ListUserIDs(ctx); err != nil {
			record("reconcile", err)
			return nil, apperrors.ErrPersistence.WithError(err)
		}
	}

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.reconcileUser(ctx, u, report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("user %s: %v", u, err))
		}
		report.UsersScanned++
	}
	report.Duration = time.Since(started).String()

	metrics.RecordReconcileRepairs("dangling_lot_ref", len(report.DanglingLotRefs))
	metrics.RecordReconcileRepairs("missing_lot_ref", len(report.MissingLotRefs))
	metrics.RecordReconcileRepairs("missing_asset_ref", len(report.MissingAssetRefs))
	metrics.RecordReconcileRepairs("orphan_lot", len(report.OrphanLots))
	record("reconcile", nil)

	s.log.Info().
		Bool("dry_run", dryRun).
		Int("users", report.UsersScanned).
		Int("portfolios", report.PortfoliosScanned).
		Int("lots", report.LotsScanned).
		Int("repairs", report.Repairs()).
		Int("errors", len(report.Errors)).
		Str("duration", report.Duration).
		Msg("Reconcile completed")

	s.publish(ctx, events.TopicReconcileCompleted, events.EventTypeReconcileCompleted, userID, events.ReconcileCompletedPayload{
		DryRun:            dryRun,
		DanglingLotRefs:   len(report.DanglingLotRefs),
		MissingLotRefs:    len(report.MissingLotRefs),
		MissingAssetRefs:  len(report.MissingAssetRefs),
		OrphanLots:        len(report.OrphanLots),
		PortfoliosScanned: report.PortfoliosScanned,
		LotsScanned:       report.LotsScanned,
	})
	return report, nil
}

func (s *Service) reconcileUser(ctx context.Context, userID string, report *types.ReconcileReport) error {
	portfolios, err := s.store.ListPortfolios(ctx, userID)
	if err != nil {
		return err
	}
	lots, err := s.store.ListLots(ctx, repository.LotFilter{UserID: userID})
	if err != nil {
		return err
	}
	report.PortfoliosScanned += len(portfolios)
	report.LotsScanned += len(lots)

	byPortfolio := make(map[string]*types.Portfolio, len(portfolios))
	for i := range portfolios {
		byPortfolio[portfolios[i].ID] = &portfolios[i]
	}
	byLot := make(map[string]*types.Lot, len(lots))
	for i := range lots {
		byLot[lots[i].ID] = &lots[i]
	}

	fail := func(what string, err error) {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", what, err))
	}

	for _, p := range portfolios {
		for _, lotID := range p.LotIDs {
			if l, ok := byLot[lotID]; ok && l.PortfolioID == p.ID {
				continue
			}
			report.DanglingLotRefs = append(report.DanglingLotRefs, types.PortfolioRef{PortfolioID: p.ID, ID: lotID})
			if report.DryRun {
				continue
			}
			if err := s.store.RemovePortfolioLot(ctx, p.ID, lotID); err != nil {
				fail("pull lot "+lotID+" from portfolio "+p.ID, err)
			}
		}
	}

	attached := make(map[types.PortfolioRef]bool)
	for _, l := range lots {
		p, ok := byPortfolio[l.PortfolioID]
		if !ok {
			orphan, err := s.portfolioGone(ctx, l.PortfolioID)
			if err != nil {
				fail("look up portfolio "+l.PortfolioID, err)
				continue
			}
			if !orphan {
				continue
			}
			report.OrphanLots = append(report.OrphanLots, l.ID)
			if !report.DryRun {
				if err := s.store.DeleteLot(ctx, l.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
					fail("delete orphan lot "+l.ID, err)
				}
			}
			continue
		}

		if !p.HasLot(l.ID) {
			report.MissingLotRefs = append(report.MissingLotRefs, types.PortfolioRef{PortfolioID: p.ID, ID: l.ID})
			if !report.DryRun {
				if _, err := s.store.AddPortfolioLot(ctx, p.ID, l.ID); err != nil {
					fail("attach lot "+l.ID+" to portfolio "+p.ID, err)
				}
			}
		}

		ref := types.PortfolioRef{PortfolioID: p.ID, ID: l.AssetID}
		if !p.HasAsset(l.AssetID) && !attached[ref] {
			attached[ref] = true
			report.MissingAssetRefs = append(report.MissingAssetRefs, ref)
			if !report.DryRun {
				if _, err := s.store.AddPortfolioAsset(ctx, p.ID, l.AssetID); err != nil {
					fail("attach asset "+l.AssetID+" to portfolio "+p.ID, err)
				}
			}
		}
	}
	return nil
}

// portfolioGone reports whether no portfolio with id exists for any user.
func (s *Service) portfolioGone(ctx context.Context, id string) (bool, error) {
	_, err := s.store.GetPortfolio(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return true, nil
	}
	return false, err
}
