// Package ledger turns buy/sell orders into consistent open positions and
// realized-lot history via FIFO matching.
//
// The functions here are pure: they take a snapshot of an account and its
// ordered trade history and return the mutations an accepted order implies
// (new trade, lot updates, new cash). The store applies those mutations
// atomically, so a rejected order never leaves partial state behind.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/model"
	"github.com/stockleague/league-engine/internal/scoring"
)

var (
	// ErrInsufficientFunds is returned when a buy's notional exceeds cash.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInvalidOrder is returned for non-positive shares or price.
	ErrInvalidOrder = errors.New("ledger: invalid order")
)

// InsufficientSharesError rejects a sell that exceeds the open position.
// Available carries the shares the caller could actually sell.
type InsufficientSharesError struct {
	Symbol    string
	Available decimal.Decimal
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("ledger: insufficient shares of %s: %s available", e.Symbol, e.Available)
}

// LotUpdate is a matching-field mutation on an existing BUY trade.
type LotUpdate struct {
	TradeID         string
	RemainingShares decimal.Decimal
	ClosedAt        *time.Time
}

// Result is everything an accepted order changes. Store.ApplyTrade persists
// a Result atomically.
type Result struct {
	Trade      model.Trade
	LotUpdates []LotUpdate
	NewCash    decimal.Decimal
}

// AvailableShares sums RemainingShares over open BUY lots for a symbol.
func AvailableShares(trades []model.Trade, symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		if t.Symbol == symbol && t.IsOpenBuy() {
			total = total.Add(t.RemainingShares)
		}
	}
	return total
}

func validateOrder(symbol string, shares int64, price decimal.Decimal) error {
	if err := model.ValidateSymbol(symbol); err != nil {
		return err
	}
	if shares <= 0 {
		return fmt.Errorf("%w: shares must be positive, got %d", ErrInvalidOrder, shares)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidOrder, price)
	}
	return nil
}

// ExecuteBuy validates solvency and produces the BUY trade. The scoring
// credit is computed from price and beta here, at execution time, and never
// recomputed from later prices.
func ExecuteBuy(acct model.Account, symbol string, shares int64, price decimal.Decimal, beta decimal.NullDecimal, policy scoring.Policy, now time.Time) (Result, error) {
	if err := validateOrder(symbol, shares, price); err != nil {
		return Result{}, err
	}

	notional := price.Mul(decimal.NewFromInt(shares))
	if notional.GreaterThan(acct.Cash) {
		return Result{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, notional, acct.Cash)
	}

	t := model.Trade{
		ID:              uuid.New().String(),
		AccountID:       acct.ID,
		Symbol:          symbol,
		Side:            model.SideBuy,
		Shares:          shares,
		Price:           price,
		Beta:            beta,
		ExecutedAt:      now.UTC(),
		RemainingShares: decimal.NewFromInt(shares),
		InitialScore:    policy.InitialContribution(price, beta),
	}

	return Result{
		Trade:   t,
		NewCash: acct.Cash.Sub(notional),
	}, nil
}

// ExecuteSell validates share availability and FIFO-consumes open BUY lots
// in strict insertion order. Each consumed lot gives up a pro-rata fraction
// of its buy-time credit; the sum, negated, is recorded on the SELL as its
// score adjustment.
func ExecuteSell(acct model.Account, trades []model.Trade, symbol string, shares int64, price decimal.Decimal, now time.Time) (Result, error) {
	if err := validateOrder(symbol, shares, price); err != nil {
		return Result{}, err
	}

	want := decimal.NewFromInt(shares)
	available := AvailableShares(trades, symbol)
	if want.GreaterThan(available) {
		return Result{}, &InsufficientSharesError{Symbol: symbol, Available: available}
	}

	ts := now.UTC()
	remaining := want
	creditGivenUp := decimal.Zero
	var updates []LotUpdate

	for _, t := range trades {
		if remaining.IsZero() {
			break
		}
		if t.Symbol != symbol || !t.IsOpenBuy() {
			continue
		}

		consumed := decimal.Min(remaining, t.RemainingShares)
		left := t.RemainingShares.Sub(consumed)
		remaining = remaining.Sub(consumed)

		// Pro-rata share of the lot's buy-time credit.
		lotSize := decimal.NewFromInt(t.Shares)
		creditGivenUp = creditGivenUp.Add(t.InitialScore.Mul(consumed).Div(lotSize))

		upd := LotUpdate{TradeID: t.ID, RemainingShares: left}
		if left.IsZero() {
			closed := ts
			upd.ClosedAt = &closed
		}
		updates = append(updates, upd)
	}

	sell := model.Trade{
		ID:              uuid.New().String(),
		AccountID:       acct.ID,
		Symbol:          symbol,
		Side:            model.SideSell,
		Shares:          shares,
		Price:           price,
		ExecutedAt:      ts,
		ScoreAdjustment: creditGivenUp.Neg(),
	}

	return Result{
		Trade:      sell,
		LotUpdates: updates,
		NewCash:    acct.Cash.Add(price.Mul(want)),
	}, nil
}
