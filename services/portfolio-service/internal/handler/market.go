package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Rohianon/ptracker/pkg/response"
)

// GetQuote returns the live quote for a symbol
// GET /quotes/:symbol
func (h *Handler) GetQuote(c *fiber.Ctx) error {
	q, err := h.svc.GetQuote(requestContext(c), c.Params("symbol"))
	if err != nil {
		return err
	}
	return response.Success(c, q)
}

// GetHistory returns closing prices for the latest trading session
// GET /quotes/:symbol/history
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	res, err := h.svc.GetHistory(requestContext(c), c.Params("symbol"))
	if err != nil {
		return err
	}
	return response.Success(c, res)
}

// SearchSymbols looks up symbols matching free text
// GET /quotes?q=
func (h *Handler) SearchSymbols(c *fiber.Ctx) error {
	results, err := h.svc.SearchSymbols(requestContext(c), c.Query("q"))
	if err != nil {
		return err
	}
	return response.Success(c, results)
}
