package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Response is the envelope every portfolio-service endpoint replies with.
//
//	{
//	  "success": true,
//	  "message": "Lot updated",
//	  "data": { ... },
//	  "meta": {"request_id": "uuid", "timestamp": "..."}
//	}
//
// Failures set success=false and carry an error body whose code is one of
// the values in pkg/errors.
type Response struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    Meta       `json:"meta"`
}

type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type Meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// PaginatedData wraps paginated results
type PaginatedData struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// Success returns a 200 response with data
func Success(c *fiber.Ctx, data any) error {
	return SuccessWithStatus(c, fiber.StatusOK, "", data)
}

// SuccessMessage returns a 200 response carrying a human readable message.
func SuccessMessage(c *fiber.Ctx, message string, data any) error {
	return SuccessWithStatus(c, fiber.StatusOK, message, data)
}

func SuccessWithStatus(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    buildMeta(c),
	})
}

// Created returns a 201 Created response
func Created(c *fiber.Ctx, message string, data any) error {
	return SuccessWithStatus(c, fiber.StatusCreated, message, data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// Paginated slices nothing itself; callers pass the page they already cut.
func Paginated(c *fiber.Ctx, items any, page, perPage int, total int64) error {
	totalPages := TotalPages(total, perPage)

	return c.JSON(Response{
		Success: true,
		Data: PaginatedData{
			Items: items,
			Pagination: Pagination{
				Page:       page,
				PerPage:    perPage,
				Total:      total,
				TotalPages: totalPages,
				HasMore:    page < totalPages,
			},
		},
		Meta: buildMeta(c),
	})
}

// TotalPages rounds up; a non-positive page size yields a single page.
func TotalPages(total int64, perPage int) int {
	if perPage <= 0 {
		if total == 0 {
			return 0
		}
		return 1
	}
	pages := int(total) / perPage
	if int(total)%perPage > 0 {
		pages++
	}
	return pages
}

// PageBounds returns the [start, end) slice bounds of page within n items.
func PageBounds(n, page, perPage int) (int, int) {
	if page < 1 || perPage <= 0 {
		return 0, n
	}
	start := (page - 1) * perPage
	if start > n {
		start = n
	}
	end := start + perPage
	if end > n {
		end = n
	}
	return start, end
}

// Error returns an error response
func Error(c *fiber.Ctx, status int, code, message string, details ...string) error {
	return c.Status(status).JSON(Response{
		Success: false,
		Message: message,
		Error: &ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: buildMeta(c),
	})
}

func buildMeta(c *fiber.Ctx) Meta {
	requestID := GetRequestID(c)
	if requestID == "" {
		requestID = uuid.New().String()
		c.Locals("request_id", requestID)
	}

	return Meta{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Version:   "v1",
	}
}

// GetRequestID extracts request ID from context
func GetRequestID(c *fiber.Ctx) string {
	if id := c.Get("X-Request-ID"); id != "" {
		return id
	}
	if id, ok := c.Locals("request_id").(string); ok {
		return id
	}
	return ""
}
