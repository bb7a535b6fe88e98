package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rohianon/ptracker/pkg/events"
	"github.com/Rohianon/ptracker/pkg/middleware"
	"github.com/Rohianon/ptracker/pkg/quotes"
	"github.com/Rohianon/ptracker/pkg/response"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/repository"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/service"
	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorBody `json:"error"`
	Meta    response.Meta       `json:"meta"`
}

type testAPI struct {
	app    *fiber.App
	store  *repository.Memory
	events *events.Recorder
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := repository.NewMemory()
	src := quotes.NewMockSource()
	src.SetQuote("XYZ", "120.00", "2.00", "XYZ Corp", "NYSE")
	src.SetQuote("ABC", "50.00", "-1.50", "ABC Industries", "NasdaqGS")
	rec := &events.Recorder{}
	svc := service.New(store, src, rec, nil, service.Config{})

	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler})
	app.Use(middleware.RequestID())
	api := app.Group("/api/v1", middleware.Identity(middleware.IdentityConfig{TrustedHeader: "X-User-ID"}))
	New(svc, Config{AdminUsers: []string{"u1"}}).Register(api)

	return &testAPI{app: app, store: store, events: rec}
}

func (a *testAPI) do(t *testing.T, method, path, user, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), string(env.Data))
	return v
}

func (a *testAPI) createPortfolio(t *testing.T, user, name string, symbols ...string) types.Portfolio {
	t.Helper()
	body, err := json.Marshal(types.CreatePortfolioRequest{Name: name, Description: name + " holdings", Symbols: symbols})
	require.NoError(t, err)
	status, env := a.do(t, http.MethodPost, "/api/v1/portfolios", user, string(body))
	require.Equal(t, http.StatusCreated, status, env.Message)
	return decode[types.Portfolio](t, env)
}

func TestIdentityRequired(t *testing.T) {
	api := newTestAPI(t)

	status, env := api.do(t, http.MethodGet, "/api/v1/portfolios", "", "")

	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
}

func TestCreatePortfolio(t *testing.T) {
	api := newTestAPI(t)

	p := api.createPortfolio(t, "u1", "Retirement", "XYZ", "NOPE")
	assert.Len(t, p.AssetIDs, 1)

	status, env := api.do(t, http.MethodPost, "/api/v1/portfolios", "u1", `{"name":"Retirement","description":"Another one of these"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "PORTFOLIO_NAME_TAKEN", env.Error.Code)

	status, env = api.do(t, http.MethodPost, "/api/v1/portfolios", "u1", `{"name":"abc","description":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, []string{"name must be at least 5 characters", "description is required"}, env.Error.Details)

	status, env = api.do(t, http.MethodPost, "/api/v1/portfolios", "u1", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestPortfolioLifecycle(t *testing.T) {
	api := newTestAPI(t)
	p := api.createPortfolio(t, "u1", "Retirement", "XYZ")
	assetID := p.AssetIDs[0]
	base := "/api/v1/portfolios/" + p.ID

	status, env := api.do(t, http.MethodPost, base+"/lots", "u1",
		`{"asset_id":"`+assetID+`","quantity":"5","unit_price":"100","acquired_date":"2023-06-01"}`)
	require.Equal(t, http.StatusCreated, status, env.Message)
	lot := decode[types.Lot](t, env)
	assert.True(t, lot.CostBasis.Equal(types.CostBasis(lot.Quantity, lot.UnitPrice)))

	status, env = api.do(t, http.MethodGet, base+"/valuation", "u1", "")
	require.Equal(t, http.StatusOK, status)
	v := decode[types.PortfolioValuation](t, env)
	assert.Equal(t, "600", v.MarketValue.String())
	assert.Equal(t, "100", v.TotalReturn.String())

	status, env = api.do(t, http.MethodDelete, base+"/assets/"+assetID, "u1", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "LOTS_STILL_PRESENT", env.Error.Code)
	assert.Equal(t, []string{lot.ID}, env.Error.Details)

	status, env = api.do(t, http.MethodPatch, "/api/v1/lots/"+lot.ID, "u1", `{"quantity":"5","unit_price":"100.00"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "NO_CHANGES_DETECTED", env.Error.Code)

	status, env = api.do(t, http.MethodPatch, "/api/v1/lots/"+lot.ID, "u1", `{"quantity":"7"}`)
	require.Equal(t, http.StatusOK, status)
	updated := decode[types.UpdateLotResult](t, env)
	assert.True(t, updated.QuantityChanged)
	assert.Equal(t, "700", updated.Lot.CostBasis.String())

	status, _ = api.do(t, http.MethodDelete, base+"/assets/"+assetID+"?cascade=true", "u1", "")
	require.Equal(t, http.StatusOK, status)

	status, env = api.do(t, http.MethodGet, base, "u1", "")
	require.Equal(t, http.StatusOK, status)
	detail := decode[types.PortfolioDetail](t, env)
	assert.Empty(t, detail.Assets)
	assert.Empty(t, detail.Lots)

	status, _ = api.do(t, http.MethodDelete, base, "u1", "")
	assert.Equal(t, http.StatusOK, status)
	status, env = api.do(t, http.MethodGet, base, "u1", "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PORTFOLIO_NOT_FOUND", env.Error.Code)
}

func TestOwnerSurvivesLaterRequests(t *testing.T) {
	api := newTestAPI(t)
	p := api.createPortfolio(t, "u1", "Retirement")

	status, _ := api.do(t, http.MethodGet, "/api/v1/portfolios", "u2", "")
	require.Equal(t, http.StatusOK, status)

	stored, err := api.store.GetPortfolio(t.Context(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID)

	status, _ = api.do(t, http.MethodGet, "/api/v1/portfolios/"+p.ID, "u2", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAddLots_ArrayBody(t *testing.T) {
	api := newTestAPI(t)
	p := api.createPortfolio(t, "u1", "Retirement", "XYZ")
	assetID := p.AssetIDs[0]
	path := "/api/v1/portfolios/" + p.ID + "/lots"

	status, env := api.do(t, http.MethodPost, path, "u1",
		`[{"asset_id":"`+assetID+`","quantity":"1","unit_price":"10","acquired_date":"2023-01-02"},
		  {"asset_id":"`+assetID+`","quantity":"2","unit_price":"11","acquired_date":"bad"}]`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.Len(t, env.Error.Details, 1)
	assert.Contains(t, env.Error.Details[0], "lots[1]")

	status, env = api.do(t, http.MethodPost, path, "u1",
		`[{"asset_id":"`+assetID+`","quantity":"1","unit_price":"10","acquired_date":"2023-01-02"},
		  {"asset_id":"`+assetID+`","quantity":"2","unit_price":"11","acquired_date":"2023-01-03T10:00:00Z"}]`)
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.Len(t, decode[[]types.Lot](t, env), 2)

	status, env = api.do(t, http.MethodGet, "/api/v1/lots?page=1&per_page=1", "u1", "")
	require.Equal(t, http.StatusOK, status)
	page := decode[response.PaginatedData](t, env)
	assert.Equal(t, int64(2), page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)
}

func TestOtherUsersPortfolioIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	p := api.createPortfolio(t, "u1", "Retirement")

	status, env := api.do(t, http.MethodGet, "/api/v1/portfolios/"+p.ID, "u2", "")

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "PORTFOLIO_NOT_FOUND", env.Error.Code)
}

func TestAssetsAndQuotes(t *testing.T) {
	api := newTestAPI(t)

	status, env := api.do(t, http.MethodPost, "/api/v1/assets", "u1", `{"symbol":"abc"}`)
	require.Equal(t, http.StatusCreated, status)
	res := decode[types.ResolveResult](t, env)
	assert.True(t, res.Created)

	status, _ = api.do(t, http.MethodPost, "/api/v1/assets", "u1", `{"symbol":"ABC"}`)
	assert.Equal(t, http.StatusOK, status)

	status, env = api.do(t, http.MethodGet, "/api/v1/assets/"+res.Asset.ID+"/removable", "u1", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[types.RemovableResult](t, env).Removable)

	status, env = api.do(t, http.MethodGet, "/api/v1/quotes/NOPE", "u1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "SYMBOL_NOT_FOUND", env.Error.Code)

	status, env = api.do(t, http.MethodGet, "/api/v1/quotes?q=corp", "u1", "")
	require.Equal(t, http.StatusOK, status)
	found := decode[[]quotes.SearchResult](t, env)
	require.Len(t, found, 1)
	assert.Equal(t, "XYZ", found[0].Symbol)
}

func TestNetWorthAndReconcile(t *testing.T) {
	api := newTestAPI(t)
	p := api.createPortfolio(t, "u1", "Retirement", "XYZ")
	_, err := api.store.AddPortfolioLot(t.Context(), p.ID, "ghost")
	require.NoError(t, err)

	status, env := api.do(t, http.MethodGet, "/api/v1/networth", "u1", "")
	require.Equal(t, http.StatusOK, status)
	nw := decode[types.NetWorth](t, env)
	require.Len(t, nw.Portfolios, 1)
	assert.True(t, nw.MarketValue.IsZero())

	status, env = api.do(t, http.MethodPost, "/api/v1/admin/reconcile?all=true&dry_run=true", "u1", "")
	require.Equal(t, http.StatusOK, status)
	report := decode[types.ReconcileReport](t, env)
	assert.True(t, report.DryRun)
	assert.Len(t, report.DanglingLotRefs, 1)
}

func TestReconcileAllUsersRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	api.createPortfolio(t, "u1", "Retirement", "XYZ")
	api.createPortfolio(t, "u2", "Brokerage", "ABC")

	status, env := api.do(t, http.MethodPost, "/api/v1/admin/reconcile?all=true", "u2", "")
	assert.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	// the caller's own scope stays open to everyone
	status, env = api.do(t, http.MethodPost, "/api/v1/admin/reconcile?dry_run=true", "u2", "")
	require.Equal(t, http.StatusOK, status, env.Message)
	report := decode[types.ReconcileReport](t, env)
	assert.True(t, report.DryRun)
}

func TestRequestIDBecomesCorrelationID(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/portfolios", strings.NewReader(`{"name":"Retirement","description":"Long horizon savings"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("X-Request-ID", "req-7")
	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	published := api.events.Events()
	require.Len(t, published, 1)
	assert.Equal(t, "req-7", published[0].Event.CorrelationID)
}
