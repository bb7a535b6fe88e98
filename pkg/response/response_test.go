package response

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/logger"
)

func init() {
	logger.Init("test", "error", false)
}

func decode(t *testing.T, body io.Reader) Response {
	t.Helper()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	var result Response
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	return result
}

func TestSuccess(t *testing.T) {
	app := fiber.New()
	app.Get("/test", func(c *fiber.Ctx) error {
		return Success(c, map[string]string{"key": "value"})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	result := decode(t, resp.Body)
	if !result.Success {
		t.Error("success should be true")
	}
	if result.Error != nil {
		t.Error("error should be nil for success response")
	}
	if result.Meta.RequestID == "" {
		t.Error("request_id should be set")
	}
	if result.Meta.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestSuccessMessage(t *testing.T) {
	app := fiber.New()
	app.Put("/test", func(c *fiber.Ctx) error {
		return SuccessMessage(c, "Lot updated", map[string]bool{"quantityChanged": true})
	})

	resp, err := app.Test(httptest.NewRequest("PUT", "/test", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	result := decode(t, resp.Body)
	if result.Message != "Lot updated" {
		t.Errorf("message = %q, want %q", result.Message, "Lot updated")
	}
}

func TestCreated(t *testing.T) {
	app := fiber.New()
	app.Post("/test", func(c *fiber.Ctx) error {
		return Created(c, "Portfolio created", map[string]string{"id": "123"})
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/test", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
}

func TestNoContent(t *testing.T) {
	app := fiber.New()
	app.Delete("/test", func(c *fiber.Ctx) error {
		return NoContent(c)
	})

	resp, err := app.Test(httptest.NewRequest("DELETE", "/test", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 204 {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestPaginated(t *testing.T) {
	app := fiber.New()
	app.Get("/test", func(c *fiber.Ctx) error {
		return Paginated(c, []string{"a", "b", "c"}, 1, 20, 100)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Items      []string   `json:"items"`
			Pagination Pagination `json:"pagination"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}

	if !result.Success {
		t.Error("success should be true")
	}
	if len(result.Data.Items) != 3 {
		t.Errorf("items length = %d, want 3", len(result.Data.Items))
	}
	if result.Data.Pagination.TotalPages != 5 {
		t.Errorf("total_pages = %d, want 5", result.Data.Pagination.TotalPages)
	}
	if !result.Data.Pagination.HasMore {
		t.Error("has_more should be true")
	}
}

func TestError(t *testing.T) {
	app := fiber.New()
	app.Get("/test", func(c *fiber.Ctx) error {
		return Error(c, 422, "VALIDATION_ERROR", "Invalid input", "quantity must be positive")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 422 {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}

	result := decode(t, resp.Body)
	if result.Success {
		t.Error("success should be false")
	}
	if result.Error == nil {
		t.Fatal("error should not be nil")
	}
	if result.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error.code = %s, want VALIDATION_ERROR", result.Error.Code)
	}
	if len(result.Error.Details) != 1 {
		t.Errorf("error.details length = %d, want 1", len(result.Error.Details))
	}
}

func TestErrorHandler_AppError(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/test", func(c *fiber.Ctx) error {
		return apperrors.ErrLotsStillPresent.WithDetails([]string{"lot-1", "lot-2"})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 409 {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}

	result := decode(t, resp.Body)
	if result.Error.Code != "LOTS_STILL_PRESENT" {
		t.Errorf("error.code = %s, want LOTS_STILL_PRESENT", result.Error.Code)
	}
	if len(result.Error.Details) != 2 || result.Error.Details[0] != "lot-1" {
		t.Errorf("error.details = %v, want the blocking lot ids", result.Error.Details)
	}
}

func TestErrorHandler_FiberError(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/test", func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if result := decode(t, resp.Body); result.Error.Code != "NOT_FOUND" {
		t.Errorf("error.code = %s, want NOT_FOUND", result.Error.Code)
	}
}

func TestErrorHandler_GenericError(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/test", func(c *fiber.Ctx) error {
		return io.ErrUnexpectedEOF
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if result := decode(t, resp.Body); result.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("error.code = %s, want INTERNAL_ERROR", result.Error.Code)
	}
}

func TestRequestIDFromHeader(t *testing.T) {
	app := fiber.New()
	app.Get("/test", func(c *fiber.Ctx) error {
		return Success(c, nil)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "custom-request-id")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if result := decode(t, resp.Body); result.Meta.RequestID != "custom-request-id" {
		t.Errorf("request_id = %s, want custom-request-id", result.Meta.RequestID)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total     int64
		perPage   int
		wantPages int
	}{
		{100, 20, 5},
		{101, 20, 6},
		{99, 20, 5},
		{20, 20, 1},
		{0, 20, 0},
		{1, 20, 1},
		{7, 0, 1},
	}

	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.perPage); got != tt.wantPages {
			t.Errorf("total=%d, perPage=%d: got %d pages, want %d", tt.total, tt.perPage, got, tt.wantPages)
		}
	}
}

func TestPageBounds(t *testing.T) {
	tests := []struct {
		n, page, perPage int
		start, end       int
	}{
		{10, 1, 4, 0, 4},
		{10, 3, 4, 8, 10},
		{10, 4, 4, 10, 10},
		{10, 0, 4, 0, 10},
	}

	for _, tt := range tests {
		start, end := PageBounds(tt.n, tt.page, tt.perPage)
		if start != tt.start || end != tt.end {
			t.Errorf("PageBounds(%d,%d,%d) = (%d,%d), want (%d,%d)", tt.n, tt.page, tt.perPage, start, end, tt.start, tt.end)
		}
	}
}
