package quotes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockSource serves canned data and counts calls per symbol. Unknown
// symbols are ErrNotFound. It backs the "mock" provider and the tests.
type MockSource struct {
	mu       sync.Mutex
	quotes   map[string]Quote
	profiles map[string]Profile
	failing  map[string]error
	delay    time.Duration
	calls    map[string]int
}

func NewMockSource() *MockSource {
	return &MockSource{
		quotes:   make(map[string]Quote),
		profiles: make(map[string]Profile),
		failing:  make(map[string]error),
		calls:    make(map[string]int),
	}
}

// NewDemoSource returns a MockSource preloaded with a few well-known tickers.
func NewDemoSource() *MockSource {
	m := NewMockSource()
	m.SetQuote("AAPL", "189.84", "1.23", "Apple Inc.", "NasdaqGS")
	m.SetQuote("MSFT", "411.22", "-2.10", "Microsoft Corporation", "NasdaqGS")
	m.SetQuote("GOOGL", "141.80", "0.45", "Alphabet Inc.", "NasdaqGS")
	m.SetQuote("VTI", "245.10", "0.88", "Vanguard Total Stock Market ETF", "NYSEArca")
	m.SetProfile("AAPL", "Apple Inc. designs, manufactures, and markets smartphones, personal computers, tablets, wearables, and accessories worldwide.")
	m.SetProfile("MSFT", "Microsoft Corporation develops and supports software, services, devices and solutions worldwide.")
	return m
}

func (m *MockSource) SetQuote(symbol, price, change, name, exchange string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sym := strings.ToUpper(symbol)
	m.quotes[sym] = Quote{
		Symbol:      sym,
		Price:       decimal.RequireFromString(price),
		Change:      decimal.RequireFromString(change),
		QuoteType:   "EQUITY",
		Exchange:    exchange,
		ShortName:   name,
		LongName:    name,
		DisplayName: name,
		Currency:    "USD",
		MarketTime:  time.Now().UTC(),
	}
}

func (m *MockSource) SetProfile(symbol, summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sym := strings.ToUpper(symbol)
	m.profiles[sym] = Profile{Symbol: sym, LongBusinessSummary: summary}
}

// Fail makes every call for symbol return err.
func (m *MockSource) Fail(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[strings.ToUpper(symbol)] = err
}

// SetDelay makes each quote call sleep d or until ctx is done.
func (m *MockSource) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls reports how many times GetQuote was called for symbol.
func (m *MockSource) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[strings.ToUpper(symbol)]
}

func (m *MockSource) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	sym := strings.ToUpper(symbol)

	m.mu.Lock()
	m.calls[sym]++
	delay := m.delay
	failErr := m.failing[sym]
	q, ok := m.quotes[sym]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (m *MockSource) GetProfile(_ context.Context, symbol string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sym := strings.ToUpper(symbol)
	if err := m.failing[sym]; err != nil {
		return nil, err
	}
	p, ok := m.profiles[sym]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// GetHistory returns one flat sample per hour across the range at the current price.
func (m *MockSource) GetHistory(_ context.Context, symbol string, start, end time.Time) ([]HistoryPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sym := strings.ToUpper(symbol)
	if err := m.failing[sym]; err != nil {
		return nil, err
	}
	q, ok := m.quotes[sym]
	if !ok {
		return nil, ErrNotFound
	}
	var points []HistoryPoint
	for t := start; !t.After(end); t = t.Add(time.Hour) {
		points = append(points, HistoryPoint{Timestamp: t.UTC(), Close: q.Price})
	}
	return points, nil
}

func (m *MockSource) Search(_ context.Context, text string) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToUpper(text)
	var results []SearchResult
	for sym, q := range m.quotes {
		if strings.Contains(sym, needle) || strings.Contains(strings.ToUpper(q.LongName), needle) {
			results = append(results, SearchResult{
				Symbol:    sym,
				ShortName: q.ShortName,
				LongName:  q.LongName,
				QuoteType: q.QuoteType,
				Exchange:  q.Exchange,
			})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results, nil
}
