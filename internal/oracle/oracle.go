// Package oracle defines the market-data interface the engine consumes and
// its adapters: an HTTP quote client, a bounded-retry wrapper, and a TTL
// cache. The provider itself is an external collaborator; everything here
// must be safe to call redundantly and has no side effects on the ledger.
package oracle

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned once all lookup attempts are exhausted.
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// Quote is a point-in-time snapshot for one symbol. Beta is optional —
// providers don't publish it for every instrument.
type Quote struct {
	Symbol    string              `json:"symbol"`
	Price     decimal.Decimal     `json:"price"`
	PrevClose decimal.Decimal     `json:"prev_close"`
	Beta      decimal.NullDecimal `json:"beta"`
}

// DailyChange returns the fractional change versus the previous close, or
// invalid when the quote has no usable previous close.
func (q Quote) DailyChange() decimal.NullDecimal {
	if !q.PrevClose.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Decimal: q.Price.Sub(q.PrevClose).Div(q.PrevClose),
		Valid:   true,
	}
}

// PriceOracle resolves live market data for a ticker. Implementations may
// be slow, rate-limited, or fail; callers treat lookup latency as the
// dominant cost.
type PriceOracle interface {
	Lookup(ctx context.Context, symbol string) (Quote, error)
}

// Func adapts a plain function to PriceOracle, mainly for tests.
type Func func(ctx context.Context, symbol string) (Quote, error)

func (f Func) Lookup(ctx context.Context, symbol string) (Quote, error) {
	return f(ctx, symbol)
}
