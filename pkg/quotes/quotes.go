// Package quotes is the boundary to the external market-data provider.
package quotes

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound means the provider does not know the symbol.
	ErrNotFound = errors.New("symbol not found")
	// ErrUnavailable wraps transport failures, throttling that outlasted the
	// retry budget, and responses that could not be decoded.
	ErrUnavailable = errors.New("quote provider unavailable")
)

type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	QuoteType     string          `json:"quoteType"`
	Exchange      string          `json:"exchange"`
	ShortName     string          `json:"shortName"`
	LongName      string          `json:"longName"`
	DisplayName   string          `json:"displayName"`
	Currency      string          `json:"currency"`
	MarketTime    time.Time       `json:"marketTime"`
}

type Profile struct {
	Symbol              string `json:"symbol"`
	LongBusinessSummary string `json:"longBusinessSummary"`
	Sector              string `json:"sector,omitempty"`
	Industry            string `json:"industry,omitempty"`
	Website             string `json:"website,omitempty"`
}

type HistoryPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Close     decimal.Decimal `json:"close"`
}

type SearchResult struct {
	Symbol    string `json:"symbol"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
	QuoteType string `json:"quoteType"`
	Exchange  string `json:"exchange"`
}

// Source is implemented by every market-data backend.
type Source interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetProfile(ctx context.Context, symbol string) (*Profile, error)
	GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]HistoryPoint, error)
	Search(ctx context.Context, text string) ([]SearchResult, error)
}

var (
	_ Source = (*YahooClient)(nil)
	_ Source = (*MockSource)(nil)
	_ Source = (*CachedSource)(nil)
)
