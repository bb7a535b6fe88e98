package handler

import (
	"context"
	_ "embed"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/logger"
	"github.com/Rohianon/ptracker/pkg/middleware"
	"github.com/Rohianon/ptracker/pkg/response"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/service"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// OpenAPI describes every route Register mounts.
//
//go:embed openapi.yaml
var OpenAPI []byte

// Config holds handler settings that come from the service config.
type Config struct {
	// AdminUsers may reconcile every user's portfolios at once.
	AdminUsers []string
}

// Handler handles portfolio HTTP requests
type Handler struct {
	svc    *service.Service
	admins map[string]bool
}

// New creates a new portfolio handler
func New(svc *service.Service, cfg Config) *Handler {
	admins := make(map[string]bool, len(cfg.AdminUsers))
	for _, id := range cfg.AdminUsers {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = true
		}
	}
	return &Handler{svc: svc, admins: admins}
}

// Register mounts every route on api, which must already carry the identity
// middleware.
func (h *Handler) Register(api fiber.Router) {
	portfolios := api.Group("/portfolios")
	portfolios.Post("/", h.CreatePortfolio)
	portfolios.Get("/", h.ListPortfolios)
	portfolios.Get("/:id", h.GetPortfolio)
	portfolios.Patch("/:id", h.UpdatePortfolio)
	portfolios.Delete("/:id", h.DeletePortfolio)
	portfolios.Post("/:id/assets", h.AddAsset)
	portfolios.Delete("/:id/assets/:assetId", h.RemoveAsset)
	portfolios.Delete("/:id/assets/:assetId/lots", h.RemoveAllLots)
	portfolios.Get("/:id/valuation", h.GetValuation)
	portfolios.Post("/:id/lots", h.AddLots)

	lots := api.Group("/lots")
	lots.Get("/", h.ListLots)
	lots.Patch("/:id", h.UpdateLot)
	lots.Delete("/:id", h.DeleteLot)

	api.Post("/assets", h.ResolveAsset)
	api.Get("/assets/:id/removable", h.CanRemoveAsset)

	api.Get("/networth", h.GetNetWorth)

	api.Get("/quotes", h.SearchSymbols)
	api.Get("/quotes/:symbol", h.GetQuote)
	api.Get("/quotes/:symbol/history", h.GetHistory)

	api.Post("/admin/reconcile", h.Reconcile)
}

// requestContext carries the request's trace and request id into the service.
func requestContext(c *fiber.Ctx) context.Context {
	return service.WithCorrelationID(c.UserContext(), middleware.GetRequestID(c))
}

func badBody(err error) error {
	return apperrors.ErrBadRequest.WithDetails("invalid request body: " + err.Error())
}

// CreatePortfolio creates a portfolio, optionally seeded with symbols
// POST /portfolios
func (h *Handler) CreatePortfolio(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req types.CreatePortfolioRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	if problems := req.Validate(); len(problems) > 0 {
		return apperrors.ErrValidation.WithDetails(problems)
	}

	ctx := requestContext(c)
	available, err := h.svc.NameAvailable(ctx, userID, req.Name)
	if err != nil {
		return err
	}
	if !available {
		return apperrors.ErrPortfolioNameTaken.WithDetails(req.Name)
	}

	p, err := h.svc.CreatePortfolio(ctx, userID, req)
	if err != nil {
		return err
	}
	return response.Created(c, "Portfolio created", p)
}

// ListPortfolios lists the caller's portfolios
// GET /portfolios
func (h *Handler) ListPortfolios(c *fiber.Ctx) error {
	items, err := h.svc.ListPortfolios(requestContext(c), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return response.Success(c, items)
}

// GetPortfolio returns one portfolio with assets and lots populated
// GET /portfolios/:id
func (h *Handler) GetPortfolio(c *fiber.Ctx) error {
	detail, err := h.svc.PortfolioDetail(requestContext(c), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return response.Success(c, detail)
}

// UpdatePortfolio renames a portfolio or edits its description
// PATCH /portfolios/:id
func (h *Handler) UpdatePortfolio(c *fiber.Ctx) error {
	var req types.UpdatePortfolioRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}

	res, err := h.svc.RenamePortfolio(requestContext(c), middleware.GetUserID(c), c.Params("id"), req)
	if err != nil {
		return err
	}
	if !res.Changed() {
		return response.SuccessMessage(c, "Nothing to update", res)
	}
	return response.SuccessMessage(c, "Portfolio updated", res)
}

// DeletePortfolio deletes a portfolio and its lots
// DELETE /portfolios/:id
func (h *Handler) DeletePortfolio(c *fiber.Ctx) error {
	res, err := h.svc.DeletePortfolio(requestContext(c), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	if len(res.FailedLotIDs) > 0 {
		return response.SuccessMessage(c, "Portfolio deleted; some lots could not be removed", res)
	}
	return response.SuccessMessage(c, "Portfolio deleted", res)
}

// AddAsset adds an asset to a portfolio by symbol
// POST /portfolios/:id/assets
func (h *Handler) AddAsset(c *fiber.Ctx) error {
	var req types.AddAssetRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return apperrors.ErrValidation.WithDetails("symbol is required")
	}

	res, err := h.svc.AddAsset(requestContext(c), middleware.GetUserID(c), c.Params("id"), req.Symbol)
	if err != nil {
		return err
	}
	if res.AlreadyPresent {
		return response.SuccessMessage(c, "Asset already in portfolio", res)
	}
	return response.Created(c, "Asset added", res)
}

// RemoveAsset removes an asset from a portfolio. With ?cascade=true the
// asset's lots are removed first.
// DELETE /portfolios/:id/assets/:assetId
func (h *Handler) RemoveAsset(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	ctx := requestContext(c)

	if c.QueryBool("cascade") {
		p, removed, err := h.svc.RemoveAssetCascade(ctx, userID, c.Params("id"), c.Params("assetId"))
		if err != nil {
			return err
		}
		return response.SuccessMessage(c, "Asset and lots removed", fiber.Map{
			"portfolio": p,
			"lots":      removed,
		})
	}

	p, err := h.svc.RemoveAsset(ctx, userID, c.Params("id"), c.Params("assetId"))
	if err != nil {
		return err
	}
	return response.SuccessMessage(c, "Asset removed", p)
}

// RemoveAllLots deletes every lot of an asset in a portfolio
// DELETE /portfolios/:id/assets/:assetId/lots
func (h *Handler) RemoveAllLots(c *fiber.Ctx) error {
	res, err := h.svc.RemoveAllLots(requestContext(c), middleware.GetUserID(c), c.Params("id"), c.Params("assetId"))
	if err != nil {
		return err
	}
	return response.SuccessMessage(c, "Lots removed", res)
}

// GetValuation values one portfolio
// GET /portfolios/:id/valuation
func (h *Handler) GetValuation(c *fiber.Ctx) error {
	v, err := h.svc.OnePortfolio(requestContext(c), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return response.Success(c, v)
}

// GetNetWorth values every portfolio the caller owns
// GET /networth
func (h *Handler) GetNetWorth(c *fiber.Ctx) error {
	nw, err := h.svc.NetWorth(requestContext(c), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return response.Success(c, nw)
}

// ResolveAsset finds or creates the asset for a symbol
// POST /assets
func (h *Handler) ResolveAsset(c *fiber.Ctx) error {
	var req types.ResolveAssetRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}

	res, err := h.svc.ResolveOrCreate(requestContext(c), middleware.GetUserID(c), req.Symbol)
	if err != nil {
		return err
	}
	if res.Created {
		return response.Created(c, "Asset created", res)
	}
	return response.SuccessMessage(c, "Asset already exists", res)
}

// CanRemoveAsset reports whether any lot still references an asset
// GET /assets/:id/removable
func (h *Handler) CanRemoveAsset(c *fiber.Ctx) error {
	res, err := h.svc.CanRemove(requestContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return response.Success(c, res)
}

// Reconcile repairs portfolio membership for the caller, or for every user
// with ?all=true, which only admins may ask for. ?dry_run=true only reports.
// POST /admin/reconcile
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	scope := userID
	if c.QueryBool("all") {
		if !h.admins[userID] {
			logger.Warn().Str("requested_by", userID).Msg("All-user reconcile refused")
			return apperrors.ErrForbidden.WithDetails("reconciling every user requires an admin")
		}
		scope = ""
	}

	report, err := h.svc.Reconcile(requestContext(c), scope, c.QueryBool("dry_run"))
	if err != nil {
		return err
	}
	logger.Info().
		Str("requested_by", userID).
		Bool("all", scope == "").
		Int("repairs", report.Repairs()).
		Msg("Reconcile requested")
	return response.Success(c, report)
}
