// Package autograp provides a client for the AutoGrap vehicle valuation API.
package autograp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/crashify360/totalloss/internal/resilience"
)

// Client defines the AutoGrap operations used by this application.
type Client interface {
	// MarketValue returns the current valuation of a vehicle.
	MarketValue(ctx context.Context, req MarketValueRequest) (*Valuation, error)
	// VehicleDetails returns registration details for a VIN.
	VehicleDetails(ctx context.Context, vin string) (*Vehicle, error)
	// Health reports whether the API answers its health endpoint with "ok".
	Health(ctx context.Context) bool
}

// ErrNoAPIKey is returned before any request is made when no key is configured.
var ErrNoAPIKey = eris.New("autograp: api key not configured")

// MarketValueRequest identifies the vehicle to value. Year, Make and Model
// narrow the match when the VIN decodes ambiguously.
type MarketValueRequest struct {
	VIN   string
	Year  int
	Make  string
	Model string
}

// Valuation is the market value response.
type Valuation struct {
	VIN          string          `json:"vin"`
	MarketValue  decimal.Decimal `json:"market_value"`
	TradeInValue decimal.Decimal `json:"trade_in_value"`
	RetailValue  decimal.Decimal `json:"retail_value"`
	Year         int             `json:"year,omitempty"`
	Make         string          `json:"make,omitempty"`
	Model        string          `json:"model,omitempty"`
	Variant      string          `json:"variant,omitempty"`
	Odometer     int             `json:"odometer,omitempty"`
	Confidence   string          `json:"confidence"`
	LastUpdated  string          `json:"last_updated,omitempty"`
}

// Vehicle is the vehicle details response.
type Vehicle struct {
	VIN          string `json:"vin"`
	Year         int    `json:"year,omitempty"`
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Variant      string `json:"variant,omitempty"`
	BodyType     string `json:"body_type,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	FuelType     string `json:"fuel_type,omitempty"`
	Colour       string `json:"colour,omitempty"`
	Registration string `json:"registration,omitempty"`
	State        string `json:"state,omitempty"`
}

// Option configures the AutoGrap client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit overrides the default limit of 100 calls per hour. A
// non-positive perHour disables client-side limiting.
func WithRateLimit(perHour float64, burst int) Option {
	return func(c *httpClient) {
		if perHour <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perHour/3600), max(burst, 1))
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker routes calls through a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewClient creates a new AutoGrap client.
func NewClient(apiKey string, opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("autograp", "request")
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.autograp.com.au/v1",
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(100.0/3600), 10),
		retry:   retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) MarketValue(ctx context.Context, req MarketValueRequest) (*Valuation, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	q := url.Values{"vin": {req.VIN}}
	if req.Year > 0 {
		q.Set("year", strconv.Itoa(req.Year))
	}
	if req.Make != "" {
		q.Set("make", req.Make)
	}
	if req.Model != "" {
		q.Set("model", req.Model)
	}

	var v Valuation
	if err := c.get(ctx, "/valuation", q, &v); err != nil {
		return nil, eris.Wrapf(err, "autograp: market value %s", req.VIN)
	}
	if v.VIN == "" {
		v.VIN = req.VIN
	}
	if v.Confidence == "" {
		v.Confidence = "medium"
	}
	return &v, nil
}

func (c *httpClient) VehicleDetails(ctx context.Context, vin string) (*Vehicle, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	var v Vehicle
	if err := c.get(ctx, "/vehicles/"+url.PathEscape(vin), nil, &v); err != nil {
		return nil, eris.Wrapf(err, "autograp: vehicle details %s", vin)
	}
	return &v, nil
}

func (c *httpClient) Health(ctx context.Context) bool {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &resp); err != nil {
		return false
	}
	return resp.Status == "ok"
}

// get performs a rate-limited GET with retries and decodes a JSON body
// into out.
func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if c.breaker == nil {
			return c.do(ctx, reqURL)
		}
		return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.do(ctx, reqURL)
		})
	})
	if err != nil {
		return err
	}
	return eris.Wrap(json.Unmarshal(body, out), "autograp: unmarshal response")
}

func (c *httpClient) do(ctx context.Context, reqURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "autograp: rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "autograp: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "autograp: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "autograp: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("autograp: status %d: %s", resp.StatusCode, apiMessage(body))
		return nil, resilience.FromHTTPResponse(statusErr, resp)
	}
	return body, nil
}

// apiMessage returns the "message" field of an error body, or the raw body.
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return string(body)
}
