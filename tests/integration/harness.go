package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Integration Test Harness
// =============================================================================
// Runs against a live portfolio service (PTRACKER_API_URL) configured with
// quotes.provider=yahoo and quotes.base_url pointing at the Yahoo mock
// server (YAHOO_MOCK_URL). Tests skip when either is unreachable.
// =============================================================================

// Config holds the service and mock server URLs
type Config struct {
	APIURL     string
	YahooURL   string
	UserHeader string
}

// DefaultConfig returns the default configuration for local testing
func DefaultConfig() *Config {
	return &Config{
		APIURL:     getEnvOrDefault("PTRACKER_API_URL", "http://localhost:8008"),
		YahooURL:   getEnvOrDefault("YAHOO_MOCK_URL", "http://localhost:8093"),
		UserHeader: getEnvOrDefault("PTRACKER_USER_HEADER", "X-User-ID"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Harness provides utilities for integration tests
type Harness struct {
	t      *testing.T
	config *Config
	client *http.Client
	// userID is fresh per harness so tests never see each other's data.
	userID string
}

func NewHarness(t *testing.T) *Harness {
	return &Harness{
		t:      t,
		config: DefaultConfig(),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		userID: "it-" + uuid.New().String(),
	}
}

func (h *Harness) Config() *Config {
	return h.config
}

func (h *Harness) UserID() string {
	return h.userID
}

// =============================================================================
// HTTP Helpers
// =============================================================================

type Request struct {
	Method  string
	URL     string
	Body    any
	Headers map[string]string
}

type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Do executes an HTTP request and returns the response
func (h *Harness) Do(req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		jsonBody, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequest(req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
	}, nil
}

// API calls the service's /api/v1 surface as the harness user and fails the
// test on transport errors.
func (h *Harness) API(method, path string, body any) *Response {
	h.t.Helper()
	resp, err := h.Do(Request{
		Method:  method,
		URL:     h.config.APIURL + "/api/v1" + path,
		Body:    body,
		Headers: map[string]string{h.config.UserHeader: h.userID},
	})
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// JSON unmarshals the response body into the given value
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Envelope is the service's response wrapper with data left raw.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// Data decodes the envelope's data into v and returns the envelope.
func (h *Harness) Data(resp *Response, v any) *Envelope {
	h.t.Helper()
	var env Envelope
	if err := resp.JSON(&env); err != nil {
		h.t.Fatalf("Failed to parse envelope: %v. Body: %s", err, string(resp.Body))
	}
	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			h.t.Fatalf("Failed to parse data: %v", err)
		}
	}
	return &env
}

// =============================================================================
// Mock Server Helpers
// =============================================================================

// ResetYahoo restores the Yahoo mock's default instruments
func (h *Harness) ResetYahoo() error {
	resp, err := h.Do(Request{
		Method: "POST",
		URL:    h.config.YahooURL + "/admin/reset",
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("reset failed with status %d", resp.StatusCode)
	}
	return nil
}

// SetInstrument adds or replaces a symbol on the Yahoo mock
func (h *Harness) SetInstrument(symbol, longName string, price, change float64) error {
	resp, err := h.Do(Request{
		Method: "POST",
		URL:    h.config.YahooURL + "/admin/instruments",
		Body: map[string]any{
			"symbol":    symbol,
			"shortName": longName,
			"longName":  longName,
			"price":     price,
			"change":    change,
			"summary":   longName + " test instrument.",
		},
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("set instrument failed with status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// Health Checks
// =============================================================================

func (h *Harness) WaitForAPI(timeout time.Duration) error {
	return h.waitForHealth(h.config.APIURL+"/health", timeout)
}

func (h *Harness) WaitForYahoo(timeout time.Duration) error {
	return h.waitForHealth(h.config.YahooURL+"/health", timeout)
}

// WaitForAll waits for the service and the mock to be ready
func (h *Harness) WaitForAll(timeout time.Duration) error {
	if err := h.WaitForYahoo(timeout); err != nil {
		return fmt.Errorf("yahoo mock not ready: %w", err)
	}
	if err := h.WaitForAPI(timeout); err != nil {
		return fmt.Errorf("portfolio service not ready: %w", err)
	}
	return nil
}

func (h *Harness) waitForHealth(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := h.client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s", url)
}

// =============================================================================
// Assertions
// =============================================================================

// AssertStatus checks that the response has the expected status code
func (h *Harness) AssertStatus(resp *Response, expected int) {
	h.t.Helper()
	if resp.StatusCode != expected {
		h.t.Errorf("Expected status %d, got %d. Body: %s", expected, resp.StatusCode, string(resp.Body))
	}
}

// AssertErrorCode checks a failed envelope's error code
func (h *Harness) AssertErrorCode(resp *Response, expected string) {
	h.t.Helper()
	env := h.Data(resp, nil)
	if env.Error == nil {
		h.t.Errorf("Expected error %s, got success. Body: %s", expected, string(resp.Body))
		return
	}
	if env.Error.Code != expected {
		h.t.Errorf("Expected error %s, got %s", expected, env.Error.Code)
	}
}
