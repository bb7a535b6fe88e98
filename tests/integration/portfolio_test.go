package integration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type asset struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

type portfolio struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Assets []asset `json:"assets"`
	Lots   []struct {
		ID string `json:"id"`
	} `json:"lots"`
}

type totals struct {
	MarketValue decimal.Decimal `json:"market_value"`
	DaysChange  decimal.Decimal `json:"days_change"`
	BookValue   decimal.Decimal `json:"book_value"`
	TotalReturn decimal.Decimal `json:"total_return"`
}

func setup(t *testing.T) *Harness {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	h := NewHarness(t)
	if err := h.WaitForAll(10 * time.Second); err != nil {
		t.Skipf("Integration environment not available: %v", err)
	}
	if err := h.ResetYahoo(); err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}
	return h
}

func TestPortfolioLifecycle(t *testing.T) {
	h := setup(t)
	if err := h.SetInstrument("ITX", "Integration Test Corp", 120, 2); err != nil {
		t.Fatalf("Failed to set instrument: %v", err)
	}

	resp := h.API("POST", "/portfolios", map[string]any{
		"name":    "Core",
		"symbols": []string{"itx", "ITX", "NOSUCHSYMBOL"},
	})
	h.AssertStatus(resp, 201)
	var p portfolio
	h.Data(resp, &p)
	if len(p.Assets) != 1 || p.Assets[0].Symbol != "ITX" {
		t.Fatalf("Expected one ITX asset, got %+v", p.Assets)
	}
	assetID := p.Assets[0].ID

	resp = h.API("POST", "/portfolios", map[string]any{"name": "Core"})
	h.AssertStatus(resp, 409)
	h.AssertErrorCode(resp, "PORTFOLIO_NAME_TAKEN")

	resp = h.API("POST", "/portfolios/"+p.ID+"/lots", map[string]any{
		"asset_id":      assetID,
		"quantity":      "10",
		"unit_price":    "60",
		"acquired_date": "2024-01-15",
	})
	h.AssertStatus(resp, 201)
	var lot struct {
		ID        string          `json:"id"`
		CostBasis decimal.Decimal `json:"cost_basis"`
	}
	h.Data(resp, &lot)
	if !lot.CostBasis.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected cost basis 600, got %s", lot.CostBasis)
	}

	resp = h.API("GET", "/portfolios/"+p.ID+"/valuation", nil)
	h.AssertStatus(resp, 200)
	var v totals
	h.Data(resp, &v)
	want := totals{
		MarketValue: decimal.NewFromInt(1200),
		DaysChange:  decimal.NewFromInt(20),
		BookValue:   decimal.NewFromInt(600),
		TotalReturn: decimal.NewFromInt(600),
	}
	if !v.MarketValue.Equal(want.MarketValue) || !v.DaysChange.Equal(want.DaysChange) ||
		!v.BookValue.Equal(want.BookValue) || !v.TotalReturn.Equal(want.TotalReturn) {
		t.Errorf("Expected valuation %+v, got %+v", want, v)
	}

	resp = h.API("PATCH", "/lots/"+lot.ID, map[string]any{"quantity": "10"})
	h.AssertStatus(resp, 400)
	h.AssertErrorCode(resp, "NO_CHANGES_DETECTED")

	resp = h.API("DELETE", "/portfolios/"+p.ID+"/assets/"+assetID, nil)
	h.AssertStatus(resp, 409)
	h.AssertErrorCode(resp, "LOTS_STILL_PRESENT")

	resp = h.API("DELETE", "/portfolios/"+p.ID+"/assets/"+assetID+"?cascade=true", nil)
	h.AssertStatus(resp, 200)

	resp = h.API("GET", "/portfolios/"+p.ID, nil)
	h.AssertStatus(resp, 200)
	h.Data(resp, &p)
	if len(p.Assets) != 0 || len(p.Lots) != 0 {
		t.Errorf("Expected an empty portfolio, got %d assets and %d lots", len(p.Assets), len(p.Lots))
	}

	h.AssertStatus(h.API("DELETE", "/portfolios/"+p.ID, nil), 200)
	resp = h.API("GET", "/portfolios/"+p.ID, nil)
	h.AssertStatus(resp, 404)
	h.AssertErrorCode(resp, "PORTFOLIO_NOT_FOUND")
}

func TestNetWorthFallsBackWhenQuoteFails(t *testing.T) {
	h := setup(t)
	if err := h.SetInstrument("ITY", "Flaky Quote Inc", 50, -1); err != nil {
		t.Fatalf("Failed to set instrument: %v", err)
	}

	resp := h.API("POST", "/portfolios", map[string]any{"name": "Flaky", "symbols": []string{"ITY"}})
	h.AssertStatus(resp, 201)
	var p portfolio
	h.Data(resp, &p)

	resp = h.API("POST", "/portfolios/"+p.ID+"/lots", map[string]any{
		"asset_id":      p.Assets[0].ID,
		"quantity":      "4",
		"unit_price":    "25",
		"acquired_date": "2024-02-01",
	})
	h.AssertStatus(resp, 201)

	// the symbol disappears upstream; valuation must still succeed at zero
	resp, err := h.Do(Request{Method: "DELETE", URL: h.Config().YahooURL + "/admin/instruments/ITY"})
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("Failed to remove instrument: %v", err)
	}

	resp = h.API("GET", "/networth", nil)
	h.AssertStatus(resp, 200)
	var nw totals
	h.Data(resp, &nw)
	if !nw.MarketValue.IsZero() {
		t.Errorf("Expected zero market value, got %s", nw.MarketValue)
	}
	if !nw.BookValue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected book value 100, got %s", nw.BookValue)
	}
	if !nw.TotalReturn.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("Expected total return -100, got %s", nw.TotalReturn)
	}
}

func TestOtherUsersPortfoliosAreInvisible(t *testing.T) {
	h := setup(t)
	other := NewHarness(t)

	resp := h.API("POST", "/portfolios", map[string]any{"name": "Private"})
	h.AssertStatus(resp, 201)
	var p portfolio
	h.Data(resp, &p)

	resp = other.API("GET", "/portfolios/"+p.ID, nil)
	h.AssertStatus(resp, 404)

	resp = other.API("DELETE", "/portfolios/"+p.ID, nil)
	h.AssertStatus(resp, 404)

	h.AssertStatus(h.API("GET", "/portfolios/"+p.ID, nil), 200)
}
