// Package client talks to the portfolio service's /api/v1 surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	userID     string
	userHeader string
}

// APIError is a failed envelope. Code is the service's error code, such as
// PORTFOLIO_NOT_FOUND or LOTS_STILL_PRESENT.
type APIError struct {
	Status  int
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		userHeader: "X-User-ID",
	}
}

// SetToken sends a bearer token on every request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SetUser sends the user id in header when there is no token, for services
// running behind a gateway that sets the identity header.
func (c *Client) SetUser(userID, header string) {
	c.userID = userID
	if header != "" {
		c.userHeader = header
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) (string, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.userID != "" {
		req.Header.Set(c.userHeader, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		if env.Error != nil {
			env.Error.Status = resp.StatusCode
			return "", env.Error
		}
		return "", fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return env.Message, nil
}

// Portfolios

type Asset struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	AssetType   string `json:"asset_type"`
	Exchange    string `json:"exchange"`
	ShortName   string `json:"short_name"`
	LongName    string `json:"long_name"`
	DisplayName string `json:"display_name"`
	Currency    string `json:"currency"`
}

type Lot struct {
	ID            string          `json:"id"`
	PortfolioID   string          `json:"portfolio_id"`
	PortfolioName string          `json:"portfolio_name"`
	AssetID       string          `json:"asset_id"`
	AssetSymbol   string          `json:"asset_symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AcquiredDate  time.Time       `json:"acquired_date"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
}

type PortfolioSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AssetCount  int       `json:"asset_count"`
	LotCount    int       `json:"lot_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type Portfolio struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Assets      []Asset `json:"assets"`
	Lots        []Lot   `json:"lots"`
}

func (c *Client) ListPortfolios(ctx context.Context) ([]PortfolioSummary, error) {
	var resp []PortfolioSummary
	_, err := c.do(ctx, http.MethodGet, "/api/v1/portfolios", nil, &resp)
	return resp, err
}

func (c *Client) GetPortfolio(ctx context.Context, id string) (*Portfolio, error) {
	var resp Portfolio
	_, err := c.do(ctx, http.MethodGet, "/api/v1/portfolios/"+url.PathEscape(id), nil, &resp)
	return &resp, err
}

type CreatePortfolioRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Symbols     []string `json:"symbols,omitempty"`
}

func (c *Client) CreatePortfolio(ctx context.Context, req CreatePortfolioRequest) (*Portfolio, error) {
	var resp Portfolio
	_, err := c.do(ctx, http.MethodPost, "/api/v1/portfolios", req, &resp)
	return &resp, err
}

type UpdatePortfolioRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdatePortfolio returns the service's message, which says whether anything
// changed.
func (c *Client) UpdatePortfolio(ctx context.Context, id string, req UpdatePortfolioRequest) (string, error) {
	return c.do(ctx, http.MethodPatch, "/api/v1/portfolios/"+url.PathEscape(id), req, nil)
}

type RemoveLotsResult struct {
	RemovedLotIDs []string `json:"removed_lot_ids"`
	FailedLotIDs  []string `json:"failed_lot_ids"`
}

func (c *Client) DeletePortfolio(ctx context.Context, id string) (*RemoveLotsResult, error) {
	var resp RemoveLotsResult
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/portfolios/"+url.PathEscape(id), nil, &resp)
	return &resp, err
}

type AddAssetResult struct {
	Asset          *Asset `json:"asset"`
	AlreadyPresent bool   `json:"already_present"`
	AssetCreated   bool   `json:"asset_created"`
}

func (c *Client) AddAsset(ctx context.Context, portfolioID, symbol string) (*AddAssetResult, error) {
	var resp AddAssetResult
	path := fmt.Sprintf("/api/v1/portfolios/%s/assets", url.PathEscape(portfolioID))
	_, err := c.do(ctx, http.MethodPost, path, map[string]string{"symbol": symbol}, &resp)
	return &resp, err
}

// RemoveAsset drops an asset from a portfolio. With cascade its lots are
// deleted first; without it the call fails while lots remain.
func (c *Client) RemoveAsset(ctx context.Context, portfolioID, assetID string, cascade bool) (string, error) {
	path := fmt.Sprintf("/api/v1/portfolios/%s/assets/%s", url.PathEscape(portfolioID), url.PathEscape(assetID))
	if cascade {
		path += "?cascade=true"
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Lots

type AddLotRequest struct {
	AssetID      string `json:"asset_id"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	AcquiredDate string `json:"acquired_date"`
}

func (c *Client) AddLot(ctx context.Context, portfolioID string, req AddLotRequest) (*Lot, error) {
	var resp Lot
	path := fmt.Sprintf("/api/v1/portfolios/%s/lots", url.PathEscape(portfolioID))
	_, err := c.do(ctx, http.MethodPost, path, req, &resp)
	return &resp, err
}

func (c *Client) ListLots(ctx context.Context) ([]Lot, error) {
	var resp []Lot
	_, err := c.do(ctx, http.MethodGet, "/api/v1/lots", nil, &resp)
	return resp, err
}

type UpdateLotRequest struct {
	Quantity     *string `json:"quantity,omitempty"`
	UnitPrice    *string `json:"unit_price,omitempty"`
	AcquiredDate *string `json:"acquired_date,omitempty"`
}

type UpdateLotResult struct {
	Lot                 *Lot `json:"lot"`
	QuantityChanged     bool `json:"quantity_changed"`
	AcquiredDateChanged bool `json:"acquired_date_changed"`
	UnitPriceChanged    bool `json:"unit_price_changed"`
}

func (c *Client) UpdateLot(ctx context.Context, id string, req UpdateLotRequest) (*UpdateLotResult, error) {
	var resp UpdateLotResult
	_, err := c.do(ctx, http.MethodPatch, "/api/v1/lots/"+url.PathEscape(id), req, &resp)
	return &resp, err
}

func (c *Client) DeleteLot(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/lots/"+url.PathEscape(id), nil, nil)
	return err
}

// Valuation

type Totals struct {
	MarketValue decimal.Decimal `json:"market_value"`
	DaysChange  decimal.Decimal `json:"days_change"`
	BookValue   decimal.Decimal `json:"book_value"`
	TotalReturn decimal.Decimal `json:"total_return"`
}

type AssetValuation struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Change   decimal.Decimal `json:"change"`
	Quantity decimal.Decimal `json:"quantity"`
	LotCount int             `json:"lot_count"`
	Priced   bool            `json:"priced"`
	Totals
}

type PortfolioValuation struct {
	PortfolioID string           `json:"portfolio_id"`
	Name        string           `json:"name"`
	Assets      []AssetValuation `json:"assets"`
	Totals
}

type NetWorth struct {
	Portfolios []PortfolioValuation `json:"portfolios"`
	PricedAt   time.Time            `json:"priced_at"`
	Totals
}

func (c *Client) NetWorth(ctx context.Context) (*NetWorth, error) {
	var resp NetWorth
	_, err := c.do(ctx, http.MethodGet, "/api/v1/networth", nil, &resp)
	return &resp, err
}

func (c *Client) Valuation(ctx context.Context, portfolioID string) (*PortfolioValuation, error) {
	var resp PortfolioValuation
	path := fmt.Sprintf("/api/v1/portfolios/%s/valuation", url.PathEscape(portfolioID))
	_, err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return &resp, err
}

// Market data

type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Exchange      string          `json:"exchange"`
	LongName      string          `json:"longName"`
	Currency      string          `json:"currency"`
	MarketTime    time.Time       `json:"marketTime"`
}

func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	var resp Quote
	_, err := c.do(ctx, http.MethodGet, "/api/v1/quotes/"+url.PathEscape(symbol), nil, &resp)
	return &resp, err
}

type History struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Points []struct {
		Timestamp time.Time       `json:"timestamp"`
		Close     decimal.Decimal `json:"close"`
	} `json:"points"`
}

func (c *Client) History(ctx context.Context, symbol string) (*History, error) {
	var resp History
	path := fmt.Sprintf("/api/v1/quotes/%s/history", url.PathEscape(symbol))
	_, err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return &resp, err
}

type SearchResult struct {
	Symbol    string `json:"symbol"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
	QuoteType string `json:"quoteType"`
	Exchange  string `json:"exchange"`
}

func (c *Client) Search(ctx context.Context, text string) ([]SearchResult, error) {
	var resp []SearchResult
	_, err := c.do(ctx, http.MethodGet, "/api/v1/quotes?q="+url.QueryEscape(text), nil, &resp)
	return resp, err
}

// Admin

type PortfolioRef struct {
	PortfolioID string `json:"portfolio_id"`
	ID          string `json:"id"`
}

type ReconcileReport struct {
	DryRun            bool           `json:"dry_run"`
	UsersScanned      int            `json:"users_scanned"`
	PortfoliosScanned int            `json:"portfolios_scanned"`
	LotsScanned       int            `json:"lots_scanned"`
	DanglingLotRefs   []PortfolioRef `json:"dangling_lot_refs"`
	MissingLotRefs    []PortfolioRef `json:"missing_lot_refs"`
	MissingAssetRefs  []PortfolioRef `json:"missing_asset_refs"`
	OrphanLots        []string       `json:"orphan_lots"`
	Errors            []string       `json:"errors"`
	Duration          string         `json:"duration"`
}

func (c *Client) Reconcile(ctx context.Context, all, dryRun bool) (*ReconcileReport, error) {
	q := url.Values{}
	if all {
		q.Set("all", "true")
	}
	if dryRun {
		q.Set("dry_run", "true")
	}
	path := "/api/v1/admin/reconcile"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ReconcileReport
	_, err := c.do(ctx, http.MethodPost, path, nil, &resp)
	return &resp, err
}
