package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Rohianon/ptracker/pkg/telemetry"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
}

// YahooClient talks to the public Yahoo Finance query endpoints.
type YahooClient struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryWait  time.Duration
	log        zerolog.Logger
}

func NewYahooClient(cfg Config, log zerolog.Logger) *YahooClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &YahooClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     telemetry.NewTracedHTTPClient(cfg.Timeout),
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
		log:        log.With().Str("client", "yahoo").Logger(),
	}
}

// retryable marks a failure worth another attempt.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }

// get issues a GET and decodes the JSON body into out. 404 maps to ErrNotFound;
// 429, 5xx and transport errors are retried with exponential backoff.
func (c *YahooClient) get(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * c.retryWait
			c.log.Warn().Err(lastErr).
				Str("path", path).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Yahoo request failed, retrying")
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(wait):
			}
		}

		err := c.do(ctx, reqURL, out)
		if err == nil {
			return nil
		}
		r, ok := err.(retryable)
		if !ok {
			return err
		}
		lastErr = r.err
	}

	return fmt.Errorf("%w: failed after %d attempts: %v", ErrUnavailable, c.maxRetries, lastErr)
}

func (c *YahooClient) do(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return retryable{fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retryable{fmt.Errorf("yahoo returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: yahoo returned status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}
	return nil
}

type yahooQuote struct {
	Symbol                     string   `json:"symbol"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketChange        *float64 `json:"regularMarketChange"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	RegularMarketTime          int64    `json:"regularMarketTime"`
	QuoteType                  string   `json:"quoteType"`
	FullExchangeName           string   `json:"fullExchangeName"`
	ShortName                  string   `json:"shortName"`
	LongName                   string   `json:"longName"`
	DisplayName                string   `json:"displayName"`
	Currency                   string   `json:"currency"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
	} `json:"quoteResponse"`
}

// GetQuote returns ErrNotFound when the provider has no priced result whose
// symbol matches the request.
func (c *YahooClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var resp quoteResponse
	if err := c.get(ctx, "/v7/finance/quote", url.Values{"symbols": {symbol}}, &resp); err != nil {
		return nil, err
	}

	for _, q := range resp.QuoteResponse.Result {
		if !strings.EqualFold(q.Symbol, symbol) || q.RegularMarketPrice == nil {
			continue
		}
		quote := &Quote{
			Symbol:        q.Symbol,
			Price:         decimal.NewFromFloat(*q.RegularMarketPrice),
			Change:        floatOrZero(q.RegularMarketChange),
			ChangePercent: floatOrZero(q.RegularMarketChangePercent),
			QuoteType:     q.QuoteType,
			Exchange:      q.FullExchangeName,
			ShortName:     q.ShortName,
			LongName:      q.LongName,
			DisplayName:   q.DisplayName,
			Currency:      q.Currency,
		}
		if q.RegularMarketTime > 0 {
			quote.MarketTime = time.Unix(q.RegularMarketTime, 0).UTC()
		}
		return quote, nil
	}
	return nil, ErrNotFound
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile struct {
				LongBusinessSummary string `json:"longBusinessSummary"`
				Sector              string `json:"sector"`
				Industry            string `json:"industry"`
				Website             string `json:"website"`
			} `json:"assetProfile"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

func (c *YahooClient) GetProfile(ctx context.Context, symbol string) (*Profile, error) {
	var resp summaryResponse
	path := "/v10/finance/quoteSummary/" + url.PathEscape(symbol)
	if err := c.get(ctx, path, url.Values{"modules": {"assetProfile"}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.QuoteSummary.Result) == 0 {
		if resp.QuoteSummary.Error != nil && resp.QuoteSummary.Error.Code != "Not Found" {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.QuoteSummary.Error.Description)
		}
		return nil, ErrNotFound
	}

	p := resp.QuoteSummary.Result[0].AssetProfile
	return &Profile{
		Symbol:              symbol,
		LongBusinessSummary: p.LongBusinessSummary,
		Sector:              p.Sector,
		Industry:            p.Industry,
		Website:             p.Website,
	}, nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetHistory returns closing prices between start and end at a five minute
// interval, oldest first. Samples with a null close are reported as zero.
func (c *YahooClient) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]HistoryPoint, error) {
	var resp chartResponse
	query := url.Values{
		"period1":  {strconv.FormatInt(start.Unix(), 10)},
		"period2":  {strconv.FormatInt(end.Unix(), 10)},
		"interval": {"5m"},
	}
	if err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Chart.Result) == 0 {
		return nil, ErrNotFound
	}

	r := resp.Chart.Result[0]
	var closes []*float64
	if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}

	points := make([]HistoryPoint, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		points[i] = HistoryPoint{Timestamp: time.Unix(ts, 0).UTC(), Close: decimal.Zero}
		if i < len(closes) {
			points[i].Close = floatOrZero(closes[i])
		}
	}
	return points, nil
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		QuoteType string `json:"quoteType"`
		ExchDisp  string `json:"exchDisp"`
	} `json:"quotes"`
}

func (c *YahooClient) Search(ctx context.Context, text string) ([]SearchResult, error) {
	var resp searchResponse
	query := url.Values{"q": {text}, "quotesCount": {"10"}, "newsCount": {"0"}}
	if err := c.get(ctx, "/v1/finance/search", query, &resp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		if q.Symbol == "" {
			continue
		}
		results = append(results, SearchResult{
			Symbol:    q.Symbol,
			ShortName: q.ShortName,
			LongName:  q.LongName,
			QuoteType: q.QuoteType,
			Exchange:  q.ExchDisp,
		})
	}
	return results, nil
}

func floatOrZero(f *float64) decimal.Decimal {
	if f == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*f)
}
