package handler

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/middleware"
	"github.com/Rohianon/ptracker/pkg/response"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// AddLots records one lot, or several when the body is a JSON array
// POST /portfolios/:id/lots
func (h *Handler) AddLots(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	portfolioID := c.Params("id")
	ctx := requestContext(c)

	if !bytes.HasPrefix(bytes.TrimSpace(c.Body()), []byte("[")) {
		var req types.AddLotRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(err)
		}
		in, err := req.Input()
		if err != nil {
			return apperrors.ErrValidation.WithDetails(err.Error())
		}
		lot, err := h.svc.AddLot(ctx, userID, portfolioID, in)
		if err != nil {
			return err
		}
		return response.Created(c, "Lot added", lot)
	}

	var reqs []types.AddLotRequest
	if err := c.BodyParser(&reqs); err != nil {
		return badBody(err)
	}
	inputs := make([]types.LotInput, len(reqs))
	var problems []string
	for i, req := range reqs {
		in, err := req.Input()
		if err != nil {
			problems = append(problems, fmt.Sprintf("lots[%d]: %v", i, err))
			continue
		}
		inputs[i] = in
	}
	if len(problems) > 0 {
		return apperrors.ErrValidation.WithDetails(problems)
	}

	lots, err := h.svc.AddLots(ctx, userID, portfolioID, inputs)
	if err != nil {
		return err
	}
	return response.Created(c, fmt.Sprintf("%d lots added", len(lots)), lots)
}

// ListLots lists every lot the caller holds. ?page and ?per_page paginate.
// GET /lots
func (h *Handler) ListLots(c *fiber.Ctx) error {
	lots, err := h.svc.LotsByUser(requestContext(c), middleware.GetUserID(c))
	if err != nil {
		return err
	}

	page := c.QueryInt("page", 0)
	if page < 1 {
		return response.Success(c, lots)
	}
	perPage := c.QueryInt("per_page", 50)
	start, end := response.PageBounds(len(lots), page, perPage)
	return response.Paginated(c, lots[start:end], page, perPage, int64(len(lots)))
}

// UpdateLot edits a lot's quantity, unit price or acquisition date
// PATCH /lots/:id
func (h *Handler) UpdateLot(c *fiber.Ctx) error {
	var req types.UpdateLotRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	upd, err := req.Update()
	if err != nil {
		return apperrors.ErrValidation.WithDetails(err.Error())
	}

	res, err := h.svc.UpdateLot(requestContext(c), middleware.GetUserID(c), c.Params("id"), upd)
	if err != nil {
		return err
	}
	return response.SuccessMessage(c, "Lot updated", res)
}

// DeleteLot deletes a lot and detaches it from its portfolio
// DELETE /lots/:id
func (h *Handler) DeleteLot(c *fiber.Ctx) error {
	lot, err := h.svc.DeleteLot(requestContext(c), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return response.SuccessMessage(c, "Lot deleted", lot)
}
