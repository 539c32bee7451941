// Package position derives open holdings and portfolio value from a trade
// history plus current prices. Nothing here is stored; the trade list and
// cash balance stay authoritative.
package position

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/model"
	"github.com/stockleague/league-engine/internal/oracle"
)

// Open sums RemainingShares over open BUY lots per symbol. Symbols with no
// open shares are excluded.
func Open(trades []model.Trade) map[string]decimal.Decimal {
	open := make(map[string]decimal.Decimal)
	for _, t := range trades {
		if t.IsOpenBuy() {
			open[t.Symbol] = open[t.Symbol].Add(t.RemainingShares)
		}
	}
	for sym, shares := range open {
		if !shares.IsPositive() {
			delete(open, sym)
		}
	}
	return open
}

// Valuation marks the account to market: cash + Σ shares × price. Price
// feeds are flaky, so a failed symbol contributes zero and is reported in
// Portfolio.Warnings rather than failing the whole valuation.
func Valuation(ctx context.Context, acct model.Account, trades []model.Trade, prices oracle.PriceOracle) model.Portfolio {
	p := model.Portfolio{
		AccountID:  acct.ID,
		Name:       acct.Name,
		Cash:       acct.Cash,
		TotalValue: acct.Cash,
		Positions:  []model.Position{},
	}

	open := Open(trades)
	symbols := make([]string, 0, len(open))
	for sym := range open {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		pos := model.Position{Symbol: sym, Shares: open[sym]}

		quote, err := prices.Lookup(ctx, sym)
		if err != nil {
			pos.PriceMissing = true
			p.Warnings = append(p.Warnings, fmt.Sprintf("price unavailable for %s: %v", sym, err))
		} else {
			pos.MarketPrice = quote.Price
			pos.MarketValue = quote.Price.Mul(pos.Shares)
			p.TotalValue = p.TotalValue.Add(pos.MarketValue)
		}
		p.Positions = append(p.Positions, pos)
	}
	return p
}

// CurrentPrices resolves best-effort current prices for every open symbol.
// Failed lookups are simply absent from the result; scoring treats missing
// symbols as contributing zero.
func CurrentPrices(ctx context.Context, trades []model.Trade, prices oracle.PriceOracle) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for sym := range Open(trades) {
		quote, err := prices.Lookup(ctx, sym)
		if err != nil {
			continue
		}
		out[sym] = quote.Price
	}
	return out
}
