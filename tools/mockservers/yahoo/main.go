package main

import (
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// Yahoo Finance mock server for local runs and integration tests. It serves
// the four query endpoints the portfolio service reads (quote, quoteSummary,
// chart, search) from an in-memory table that /admin endpoints can edit.

type Instrument struct {
	Symbol    string  `json:"symbol"`
	ShortName string  `json:"shortName"`
	LongName  string  `json:"longName"`
	QuoteType string  `json:"quoteType"`
	Exchange  string  `json:"exchange"`
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	Summary   string  `json:"summary"`
	// Status, when set, is returned for every request on this symbol so
	// clients can exercise their retry and fallback paths.
	Status int `json:"status,omitempty"`
}

type Server struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
	requests    map[string]int
}

var defaultInstruments = []Instrument{
	{Symbol: "AAPL", ShortName: "Apple Inc.", LongName: "Apple Inc.", QuoteType: "EQUITY", Exchange: "NasdaqGS", Currency: "USD", Price: 172.50, Change: 1.25, Summary: "Apple designs, manufactures and markets smartphones and personal computers."},
	{Symbol: "MSFT", ShortName: "Microsoft Corporation", LongName: "Microsoft Corporation", QuoteType: "EQUITY", Exchange: "NasdaqGS", Currency: "USD", Price: 415.10, Change: -2.40, Summary: "Microsoft develops and supports software, services and devices."},
	{Symbol: "NVDA", ShortName: "NVIDIA Corporation", LongName: "NVIDIA Corporation", QuoteType: "EQUITY", Exchange: "NasdaqGS", Currency: "USD", Price: 880.00, Change: 12.00, Summary: "NVIDIA provides graphics and compute platforms."},
	{Symbol: "VTI", ShortName: "Vanguard Total Stock Market ETF", LongName: "Vanguard Total Stock Market Index Fund ETF", QuoteType: "ETF", Exchange: "NYSEArca", Currency: "USD", Price: 255.30, Change: 0.80},
	{Symbol: "BTC-USD", ShortName: "Bitcoin USD", LongName: "Bitcoin USD", QuoteType: "CRYPTOCURRENCY", Exchange: "CCC", Currency: "USD", Price: 68000.00, Change: -850.00},
}

func NewServer() *Server {
	s := &Server{}
	s.resetLocked()
	return s
}

func (s *Server) resetLocked() {
	s.instruments = make(map[string]*Instrument, len(defaultInstruments))
	s.requests = make(map[string]int)
	for _, in := range defaultInstruments {
		s.instruments[in.Symbol] = &in
	}
}

func (s *Server) lookup(symbol string) (*Instrument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	s.requests[symbol]++
	in, ok := s.instruments[symbol]
	if !ok {
		return nil, false
	}
	cp := *in
	return &cp, true
}

func NewApp(server *Server, middleware ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Yahoo Finance Mock Server",
	})
	for _, m := range middleware {
		app.Use(m)
	}

	app.Get("/v7/finance/quote", server.getQuote)
	app.Get("/v10/finance/quoteSummary/:symbol", server.getSummary)
	app.Get("/v8/finance/chart/:symbol", server.getChart)
	app.Get("/v1/finance/search", server.search)

	// Admin endpoints
	app.Post("/admin/reset", server.reset)
	app.Post("/admin/instruments", server.setInstrument)
	app.Delete("/admin/instruments/:symbol", server.deleteInstrument)
	app.Get("/admin/state", server.getState)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": "yahoo-mock"})
	})

	return app
}

func main() {
	app := NewApp(NewServer(), logger.New())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8093"
	}

	log.Printf("Yahoo Finance Mock Server starting on port %s", port)
	log.Fatal(app.Listen(":" + port))
}

// =============================================================================
// Market Data
// =============================================================================

func (s *Server) getQuote(c *fiber.Ctx) error {
	var results []fiber.Map
	for _, sym := range strings.Split(c.Query("symbols"), ",") {
		in, ok := s.lookup(strings.TrimSpace(sym))
		if !ok {
			continue
		}
		if in.Status != 0 {
			return c.Status(in.Status).JSON(fiber.Map{"finance": fiber.Map{"error": "forced failure"}})
		}
		pct := 0.0
		if prev := in.Price - in.Change; prev != 0 {
			pct = in.Change / prev * 100
		}
		results = append(results, fiber.Map{
			"symbol":                     in.Symbol,
			"regularMarketPrice":         in.Price,
			"regularMarketChange":        in.Change,
			"regularMarketChangePercent": pct,
			"regularMarketTime":          time.Now().Unix(),
			"quoteType":                  in.QuoteType,
			"fullExchangeName":           in.Exchange,
			"shortName":                  in.ShortName,
			"longName":                   in.LongName,
			"displayName":                in.ShortName,
			"currency":                   in.Currency,
		})
	}
	if results == nil {
		results = []fiber.Map{}
	}

	return c.JSON(fiber.Map{
		"quoteResponse": fiber.Map{"result": results, "error": nil},
	})
}

func (s *Server) getSummary(c *fiber.Ctx) error {
	in, ok := s.lookup(c.Params("symbol"))
	if !ok || in.Summary == "" {
		return c.Status(404).JSON(fiber.Map{
			"quoteSummary": fiber.Map{
				"result": nil,
				"error":  fiber.Map{"code": "Not Found", "description": "No fundamentals data found"},
			},
		})
	}
	if in.Status != 0 {
		return c.SendStatus(in.Status)
	}

	return c.JSON(fiber.Map{
		"quoteSummary": fiber.Map{
			"result": []fiber.Map{{
				"assetProfile": fiber.Map{"longBusinessSummary": in.Summary},
			}},
			"error": nil,
		},
	})
}

// getChart walks from period1 to period2 in five minute steps, drifting the
// close linearly from the previous close to the current price.
func (s *Server) getChart(c *fiber.Ctx) error {
	in, ok := s.lookup(c.Params("symbol"))
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"chart": fiber.Map{
				"result": nil,
				"error":  fiber.Map{"code": "Not Found", "description": "No data found, symbol may be delisted"},
			},
		})
	}
	if in.Status != 0 {
		return c.SendStatus(in.Status)
	}

	start, _ := strconv.ParseInt(c.Query("period1"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("period2"), 10, 64)
	const step = int64(5 * 60)

	var stamps []int64
	for ts := start; ts > 0 && ts <= end; ts += step {
		stamps = append(stamps, ts)
	}

	closes := make([]float64, len(stamps))
	prev := in.Price - in.Change
	for i := range stamps {
		frac := 1.0
		if len(stamps) > 1 {
			frac = float64(i) / float64(len(stamps)-1)
		}
		closes[i] = prev + in.Change*frac
	}
	if stamps == nil {
		stamps = []int64{}
	}

	return c.JSON(fiber.Map{
		"chart": fiber.Map{
			"result": []fiber.Map{{
				"meta":      fiber.Map{"symbol": in.Symbol, "currency": in.Currency},
				"timestamp": stamps,
				"indicators": fiber.Map{
					"quote": []fiber.Map{{"close": closes}},
				},
			}},
			"error": nil,
		},
	})
}

func (s *Server) search(c *fiber.Ctx) error {
	q := strings.ToLower(strings.TrimSpace(c.Query("q")))

	s.mu.RLock()
	quotes := []fiber.Map{}
	for _, in := range s.instruments {
		if q == "" {
			break
		}
		if !strings.Contains(strings.ToLower(in.Symbol), q) && !strings.Contains(strings.ToLower(in.LongName), q) {
			continue
		}
		quotes = append(quotes, fiber.Map{
			"symbol":    in.Symbol,
			"shortname": in.ShortName,
			"longname":  in.LongName,
			"quoteType": in.QuoteType,
			"exchDisp":  in.Exchange,
		})
	}
	s.mu.RUnlock()

	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i]["symbol"].(string) < quotes[j]["symbol"].(string)
	})
	return c.JSON(fiber.Map{"quotes": quotes, "news": []any{}})
}

// =============================================================================
// Admin
// =============================================================================

func (s *Server) reset(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	return c.JSON(fiber.Map{"status": "reset complete"})
}

func (s *Server) setInstrument(c *fiber.Ctx) error {
	var req Instrument
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"message": "Invalid request"})
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		return c.Status(400).JSON(fiber.Map{"message": "symbol is required"})
	}
	if req.QuoteType == "" {
		req.QuoteType = "EQUITY"
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	s.mu.Lock()
	s.instruments[req.Symbol] = &req
	s.mu.Unlock()

	return c.JSON(fiber.Map{"status": "instrument updated", "instrument": req})
}

func (s *Server) deleteInstrument(c *fiber.Ctx) error {
	symbol := strings.ToUpper(c.Params("symbol"))

	s.mu.Lock()
	delete(s.instruments, symbol)
	s.mu.Unlock()

	return c.JSON(fiber.Map{"status": "instrument removed", "symbol": symbol})
}

func (s *Server) getState(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return c.JSON(fiber.Map{
		"instruments": s.instruments,
		"requests":    s.requests,
	})
}
