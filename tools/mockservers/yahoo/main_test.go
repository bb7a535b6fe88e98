package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rohianon/ptracker/pkg/quotes"
)

// startMock serves the mock on a loopback port and points a real Yahoo
// client at it, so the two stay wire compatible.
func startMock(t *testing.T) (*Server, *quotes.YahooClient, string) {
	t.Helper()
	server := NewServer()
	app := NewApp(server)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { _ = app.Shutdown() })

	base := "http://" + ln.Addr().String()
	client := quotes.NewYahooClient(quotes.Config{
		BaseURL:    base,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
	}, zerolog.Nop())
	return server, client, base
}

func TestMock_QuoteMatchesClientDecoding(t *testing.T) {
	_, client, _ := startMock(t)

	q, err := client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("172.5")))
	assert.True(t, q.Change.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, "NasdaqGS", q.Exchange)

	_, err = client.GetQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, quotes.ErrNotFound)
}

func TestMock_ProfileHistoryAndSearch(t *testing.T) {
	_, client, _ := startMock(t)
	ctx := context.Background()

	p, err := client.GetProfile(ctx, "MSFT")
	require.NoError(t, err)
	assert.Contains(t, p.LongBusinessSummary, "Microsoft")

	_, err = client.GetProfile(ctx, "VTI")
	assert.ErrorIs(t, err, quotes.ErrNotFound, "instruments without a summary have no profile")

	start := time.Date(2024, 3, 13, 13, 30, 0, 0, time.UTC)
	points, err := client.GetHistory(ctx, "NVDA", start, start.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 7)
	assert.True(t, points[0].Close.Equal(decimal.NewFromInt(868)))
	assert.True(t, points[6].Close.Equal(decimal.NewFromInt(880)))

	results, err := client.Search(ctx, "micro")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "MSFT", results[0].Symbol)
}

func TestMock_AdminSetsInstrumentAndForcedFailure(t *testing.T) {
	server, client, base := startMock(t)
	ctx := context.Background()

	resp, err := http.Post(base+"/admin/instruments", "application/json",
		strings.NewReader(`{"symbol":"xyz","longName":"XYZ Corp","price":120,"change":2}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	q, err := client.GetQuote(ctx, "XYZ")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, "USD", q.Currency)

	resp, err = http.Post(base+"/admin/instruments", "application/json",
		strings.NewReader(`{"symbol":"XYZ","price":120,"status":503}`))
	require.NoError(t, err)
	resp.Body.Close()

	_, err = client.GetQuote(ctx, "XYZ")
	assert.ErrorIs(t, err, quotes.ErrUnavailable)

	server.mu.RLock()
	assert.GreaterOrEqual(t, server.requests["XYZ"], 2)
	server.mu.RUnlock()
}
