package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func scrape(t *testing.T) string {
	t.Helper()
	app := fiber.New()
	app.Get("/metrics", Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestHandler(t *testing.T) {
	body := scrape(t)

	if !strings.Contains(body, "go_goroutines") {
		t.Error("Should contain go_goroutines metric")
	}
	if !strings.Contains(body, "process_resident_memory_bytes") {
		t.Error("Should contain process_resident_memory_bytes metric")
	}
}

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{
		ServiceName: "test-service",
		SkipPaths:   []string{"/health"},
	}))
	app.Get("/api/v1/portfolios/:id", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("healthy")
	})

	resp, _ := app.Test(httptest.NewRequest("GET", "/api/v1/portfolios/abc", nil))
	resp.Body.Close()
	resp, _ = app.Test(httptest.NewRequest("GET", "/health", nil))
	resp.Body.Close()

	body := scrape(t)

	if !strings.Contains(body, `path="/api/v1/portfolios/:id"`) {
		t.Error("requests should be labelled by route template")
	}
	if strings.Contains(body, `path="/health"`) {
		t.Error("skipped paths should not be recorded")
	}
	if !strings.Contains(body, "test-service") {
		t.Error("Should contain test-service label")
	}
}

func TestRecordDBPoolStats(t *testing.T) {
	RecordDBPoolStats("test-service", 5, 10)

	body := scrape(t)
	if !strings.Contains(body, "db_pool_connections_used") {
		t.Error("Should contain db_pool_connections_used metric")
	}
	if !strings.Contains(body, "db_pool_connections_max") {
		t.Error("Should contain db_pool_connections_max metric")
	}
}

func TestLedgerMetrics(t *testing.T) {
	RecordLedgerOperation("lot.update", OutcomeNoChange)
	RecordQuoteFetch("yahoo", OutcomeOK)
	RecordValuation("networth", 120*time.Millisecond, 3)
	RecordEventPublished("ptracker.lots.added", errors.New("broker down"))
	RecordReconcileRepairs("orphan_lot", 2)
	RecordReconcileRepairs("missing_asset_ref", 0)

	body := scrape(t)

	for _, want := range []string{
		`ledger_operations_total{operation="lot.update",outcome="no_change"}`,
		`quote_fetches_total{outcome="ok",source="yahoo"}`,
		"valuation_duration_seconds",
		"valuation_symbols_priced",
		`events_published_total{outcome="error",topic="ptracker.lots.added"}`,
		`reconcile_repairs_total{kind="orphan_lot"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape should contain %s", want)
		}
	}
	if strings.Contains(body, `kind="missing_asset_ref"`) {
		t.Error("zero repairs should not create a series")
	}
}
