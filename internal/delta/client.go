package delta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"straddlebot/internal/auth"
)

// Contract types accepted by the products listing endpoint
const (
	ContractTypeCallOptions = "call_options"
	ContractTypePutOptions  = "put_options"
)

// defaultPageSize bounds a single products page. The listing loop follows
// the meta.after cursor until exhaustion, so the bound is a page size, not
// a cap on the total.
const defaultPageSize = 10000

// Client is a REST client for the Delta Exchange v2 API
type Client struct {
	baseURL     string
	httpClient  *http.Client
	signer      *auth.Signer
	rateLimiter *RateLimiter
	maxRetries  int
	pageSize    int
	errorHook   func(operation string)
}

// Option configures the client
type Option func(*Client)

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets the maximum number of retries for read requests
func WithMaxRetries(maxRetries int) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRateLimit sets rate limiting
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(requestsPerSecond, burst)
	}
}

// WithErrorHook registers a callback invoked with the operation name
// whenever a request ultimately fails, after retries are exhausted
func WithErrorHook(hook func(operation string)) Option {
	return func(c *Client) {
		c.errorHook = hook
	}
}

// WithPageSize overrides the products listing page size
func WithPageSize(pageSize int) Option {
	return func(c *Client) {
		c.pageSize = pageSize
	}
}

// NewClient creates a new REST client
func NewClient(baseURL string, signer *auth.Signer, opts ...Option) *Client {
	client := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		signer:      signer,
		rateLimiter: NewRateLimiter(10, 5), // Default: 10 req/sec, burst 5
		maxRetries:  3,
		pageSize:    defaultPageSize,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the HTTP timeout
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// MaxRetries returns the maximum number of retries
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// fail reports the failed operation to the error hook and wraps the
// error with it
func (c *Client) fail(operation string, err error) error {
	if c.errorHook != nil {
		c.errorHook(operation)
	}
	return errorWithContext(err, operation)
}

// GetProduct fetches a single product by symbol
func (c *Client) GetProduct(ctx context.Context, symbol string) (*Product, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	result, _, err := c.get(ctx, "/v2/products/"+symbol, nil)
	if err != nil {
		return nil, c.fail("GetProduct", err)
	}

	var product Product
	if err := json.Unmarshal(result, &product); err != nil {
		return nil, c.fail("GetProduct", err)
	}

	return &product, nil
}

// GetProductID resolves a symbol to its numeric product ID
func (c *Client) GetProductID(ctx context.Context, symbol string) (int64, error) {
	product, err := c.GetProduct(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return product.ID, nil
}

// GetSpotPrice returns the last close price for a symbol from the full
// ticker listing. Returns ErrNotFound if the symbol is absent.
func (c *Client) GetSpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	result, _, err := c.get(ctx, "/v2/tickers", nil)
	if err != nil {
		return decimal.Zero, c.fail("GetSpotPrice", err)
	}

	var tickers []Ticker
	if err := json.Unmarshal(result, &tickers); err != nil {
		return decimal.Zero, c.fail("GetSpotPrice", err)
	}

	for _, t := range tickers {
		if t.Symbol == symbol {
			return t.Close, nil
		}
	}

	return decimal.Zero, c.fail("GetSpotPrice", fmt.Errorf("%w: %s", ErrNotFound, symbol))
}

// GetTicker retrieves the market snapshot for one symbol, including the
// best bid and ask quotes
func (c *Client) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	result, _, err := c.get(ctx, "/v2/tickers/"+symbol, nil)
	if err != nil {
		return nil, c.fail("GetTicker", err)
	}

	var ticker Ticker
	if err := json.Unmarshal(result, &ticker); err != nil {
		return nil, c.fail("GetTicker", err)
	}

	return &ticker, nil
}

// ListOptions fetches all live option contracts of the given type,
// following the pagination cursor until the listing is exhausted. Page
// order is preserved.
func (c *Client) ListOptions(ctx context.Context, contractType string) ([]Product, error) {
	if contractType != ContractTypeCallOptions && contractType != ContractTypePutOptions {
		return nil, fmt.Errorf("invalid contract type: %s", contractType)
	}

	var products []Product
	after := ""

	for {
		params := url.Values{}
		params.Set("contract_types", contractType)
		params.Set("states", "live")
		params.Set("page_size", strconv.Itoa(c.pageSize))
		if after != "" {
			params.Set("after", after)
		}

		result, meta, err := c.get(ctx, "/v2/products", params)
		if err != nil {
			return nil, c.fail("ListOptions", err)
		}

		var page []Product
		if err := json.Unmarshal(result, &page); err != nil {
			return nil, c.fail("ListOptions", err)
		}
		products = append(products, page...)

		if meta == nil || meta.After == "" {
			return products, nil
		}
		after = meta.After
	}
}

// PlaceOrder submits a market order with its bracket stop-loss attached.
// The request is signed over the canonical body and submitted exactly
// once: order placement is never retried, since a duplicate order is worse
// than a missed run.
func (c *Client) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("signer required for PlaceOrder")
	}
	if req.Side == "" {
		return nil, fmt.Errorf("side is required")
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("size must be positive")
	}
	if req.ProductID <= 0 {
		return nil, fmt.Errorf("product id is required")
	}
	if req.StopLossPrice.IsZero() {
		return nil, fmt.Errorf("stop loss price is required")
	}

	body := req.CanonicalBody()
	result, _, err := c.post(ctx, "/v2/orders", body)
	if err != nil {
		return nil, c.fail("PlaceOrder", err)
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(result, &orderResp); err != nil {
		return nil, c.fail("PlaceOrder", err)
	}

	return &orderResp, nil
}

// get performs an unauthenticated read with bounded retries
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, *pageMeta, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.waitForRetry(attempt - 1)
		}

		result, meta, err := c.doRequest(ctx, http.MethodGet, path, params, nil, false)
		if err == nil {
			return result, meta, nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return nil, nil, err
		}
	}

	return nil, nil, lastErr
}

// post performs a signed write. No retries: the caller owns the decision
// to resubmit a side-effecting request.
func (c *Client) post(ctx context.Context, path string, body []byte) (json.RawMessage, *pageMeta, error) {
	return c.doRequest(ctx, http.MethodPost, path, nil, body, true)
}

// doRequest executes a single HTTP round trip and decodes the envelope
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body []byte, signed bool) (json.RawMessage, *pageMeta, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if signed {
		// The signature covers the endpoint path and the exact body bytes
		signature, timestamp := c.signer.Sign(method, path, string(body))
		req.Header.Set("api-key", c.signer.APIKey())
		req.Header.Set("timestamp", timestamp)
		req.Header.Set("signature", signature)
		req.Header.Set("User-Agent", "rest-client")
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, parseAPIError(resp.StatusCode, respBody)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.Success {
		return nil, nil, parseAPIError(resp.StatusCode, respBody)
	}

	return envelope.Result, envelope.Meta, nil
}

// waitForRetry implements exponential backoff with jitter
func (c *Client) waitForRetry(attempt int) {
	baseDelay := 100 * time.Millisecond
	maxDelay := 2 * time.Second

	// Exponential backoff: 100ms, 200ms, 400ms, etc.
	delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Add small jitter (±20%)
	jitterFactor := float64(time.Now().UnixNano()%100) / 100.0 // 0.0 to 1.0
	jitter := time.Duration(float64(delay) * 0.2 * (2*jitterFactor - 1))
	delay += jitter

	time.Sleep(delay)
}
