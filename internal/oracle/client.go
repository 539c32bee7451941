package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Client is an HTTP adapter over a quote provider. Calls are rate-limited
// so bulk rescoring cannot hammer the upstream API.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// ClientConfig configures the quote provider adapter.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Debug   bool
	// RPS bounds outgoing request rate; zero means unlimited.
	RPS float64
}

// NewClient builds a quote client for the provider at cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	client := resty.New().
		SetDebug(cfg.Debug).
		SetTimeout(cfg.Timeout).
		SetBaseURL(cfg.BaseURL)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Client{client: client, limiter: limiter}
}

// quotePayload is the provider's wire shape. Decimals arrive as JSON
// numbers or strings; shopspring handles both.
type quotePayload struct {
	Symbol    string               `json:"symbol"`
	Price     decimal.Decimal      `json:"price"`
	PrevClose decimal.Decimal      `json:"prev_close"`
	Beta      *decimal.Decimal     `json:"beta,omitempty"`
}

// Lookup fetches the current quote for one symbol.
func (c *Client) Lookup(ctx context.Context, symbol string) (Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	slog.Debug("oracle lookup", "symbol", symbol)

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("symbol", symbol).
		Get("/v1/quote")
	if err != nil {
		return Quote{}, fmt.Errorf("oracle: quote request for %s: %w", symbol, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Quote{}, fmt.Errorf("oracle: quote request for %s: status %d", symbol, resp.StatusCode())
	}

	var payload quotePayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Quote{}, fmt.Errorf("oracle: decode quote for %s: %w", symbol, err)
	}
	if !payload.Price.IsPositive() {
		return Quote{}, fmt.Errorf("oracle: no usable price for %s", symbol)
	}

	q := Quote{
		Symbol:    symbol,
		Price:     payload.Price,
		PrevClose: payload.PrevClose,
	}
	if payload.Beta != nil {
		q.Beta = decimal.NullDecimal{Decimal: *payload.Beta, Valid: true}
	}
	return q, nil
}
