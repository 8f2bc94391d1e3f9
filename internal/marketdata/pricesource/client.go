package pricesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"token-sentry/internal/model"
)

// Config holds the HTTP client settings.
type Config struct {
	BaseURL           string
	APIKey            string
	Chain             string
	IntervalMinutes   int
	OHLCV             bool          // request o/h/l/c/v items instead of single values
	Timeout           time.Duration // per request
	RequestsPerMinute int
}

// intervalTypes maps base intervals to the API's type parameter.
var intervalTypes = map[int]string{
	1: "1m", 5: "5m", 15: "15m", 30: "30m",
	60: "1H", 240: "4H", 720: "12H",
	1440: "1D", 4320: "3D", 10080: "1W",
}

// Client fetches price history for one base interval. It is safe for
// concurrent use by the per-token tasks; the rate limit is shared.
type Client struct {
	cfg     Config
	typ     string
	http    *http.Client
	limiter *rate.Limiter
}

// New validates cfg and builds a client.
func New(cfg Config) (*Client, error) {
	typ, ok := intervalTypes[cfg.IntervalMinutes]
	if !ok {
		return nil, fmt.Errorf("price source interval %dm: %w", cfg.IntervalMinutes, model.ErrInvalidInterval)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("price source: base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		typ:     typ,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
	}, nil
}

// Fetch returns the samples of token with from < t <= to, oldest first.
// Transport failures and non-2xx responses wrap model.ErrSourceUnavailable;
// malformed payloads wrap model.ErrSchemaMismatch.
func (c *Client) Fetch(ctx context.Context, token string, from, to int64) ([]model.Sample, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit %s: %v: %w", token, err, model.ErrSourceUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(token, from, to), nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", token, err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	if c.cfg.Chain != "" {
		req.Header.Set("x-chain", c.cfg.Chain)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %v: %w", token, err, model.ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d: %w", token, resp.StatusCode, model.ErrSourceUnavailable)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", token, err, model.ErrSourceUnavailable)
	}

	samples, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", token, err)
	}
	return After(samples, from), nil
}

func (c *Client) url(token string, from, to int64) string {
	path := "/defi/history_price"
	q := url.Values{}
	q.Set("address", token)
	if c.cfg.OHLCV {
		path = "/defi/ohlcv"
	} else {
		q.Set("address_type", "token")
	}
	q.Set("type", c.typ)
	q.Set("time_from", strconv.FormatInt(from, 10))
	q.Set("time_to", strconv.FormatInt(to, 10))
	return c.cfg.BaseURL + path + "?" + q.Encode()
}
