package pricefeed

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed fetches a USD quote from a JSON price endpoint. The endpoint is
// expected to respond with {"price": "<decimal>", "timestamp": <unix>}.
// Quotes older than the freshness window are rejected.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	symbol   string
	decimals uint8
	maxAge   time.Duration
	nowFn    func() time.Time
}

const httpFeedVersion = 1

// NewHTTPFeed constructs an HTTP-backed feed. When client is nil
// http.DefaultClient is used. decimals controls the fixed-point precision of
// the returned price; a zero maxAge disables freshness checks.
func NewHTTPFeed(client HTTPDoer, endpoint, symbol string, decimals uint8, maxAge time.Duration) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		decimals: decimals,
		maxAge:   maxAge,
		nowFn:    time.Now,
	}
}

// SetNowFunc overrides the time source used for freshness checks. Primarily
// intended for tests.
func (f *HTTPFeed) SetNowFunc(now func() time.Time) {
	if f == nil || now == nil {
		return
	}
	f.nowFn = now
}

func (f *HTTPFeed) LatestPrice() (*big.Int, uint8, error) {
	if f == nil || f.endpoint == "" {
		return nil, 0, fmt.Errorf("pricefeed: http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	values := url.Values{}
	values.Set("symbol", f.symbol)
	values.Set("quote", "USD")
	req.URL.RawQuery = values.Encode()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("pricefeed: http feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("pricefeed: http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("pricefeed: http feed: decode: %w", err)
	}
	trimmed := strings.TrimSpace(payload.Price)
	if trimmed == "" {
		return nil, 0, fmt.Errorf("pricefeed: http feed: empty price")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok || rat.Sign() <= 0 {
		return nil, 0, fmt.Errorf("pricefeed: http feed: invalid price %q", payload.Price)
	}
	if f.maxAge > 0 {
		if payload.Timestamp <= 0 {
			return nil, 0, fmt.Errorf("pricefeed: http feed: quote has no timestamp")
		}
		age := f.nowFn().Sub(time.Unix(payload.Timestamp, 0))
		if age > f.maxAge {
			return nil, 0, fmt.Errorf("pricefeed: http feed: quote is stale (%s old)", age.Round(time.Second))
		}
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(f.decimals)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))
	price := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	if price.Sign() <= 0 {
		return nil, 0, fmt.Errorf("pricefeed: http feed: price rounds to zero at %d decimals", f.decimals)
	}
	return price, f.decimals, nil
}

func (f *HTTPFeed) Version() (uint64, error) {
	if f == nil {
		return 0, fmt.Errorf("pricefeed: http feed not configured")
	}
	return httpFeedVersion, nil
}
