// Package model defines the core domain types shared across the league engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide validates a side string (wire form, case-sensitive).
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	}
	return "", fmt.Errorf("%w: %q (expected BUY or SELL)", ErrInvalidSide, s)
}

// symbolRegex matches plain equity tickers: 1-5 uppercase letters with an
// optional class suffix, e.g. AAPL, TSLA, BRK.B.
var symbolRegex = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)

var (
	ErrInvalidSymbol = errors.New("model: invalid ticker symbol")
	ErrInvalidSide   = errors.New("model: invalid trade side")
)

// ValidateSymbol checks a ticker string against the supported format.
func ValidateSymbol(symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// Account is a league participant. Cash and the ordered trade history are the
// only authoritative state; everything else is derived on demand.
type Account struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Cash      decimal.Decimal `json:"cash" db:"cash"`
	Score     decimal.Decimal `json:"score" db:"score"` // cached display value, recomputed on change
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Trade is a single executed order. The history is append-only: once written,
// only the matching fields (RemainingShares, ClosedAt) of a BUY are updated
// as later sells consume the lot. Nothing is ever reordered or deleted.
type Trade struct {
	ID         string              `json:"id" db:"id"`
	AccountID  string              `json:"account_id" db:"account_id"`
	Symbol     string              `json:"symbol" db:"symbol"`
	Side       Side                `json:"side" db:"side"`
	Shares     int64               `json:"shares" db:"shares"`
	Price      decimal.Decimal     `json:"price" db:"price"`
	Beta       decimal.NullDecimal `json:"beta" db:"beta"` // invalid = unknown
	ExecutedAt time.Time           `json:"executed_at" db:"executed_at"`

	// BUY matching fields. RemainingShares starts equal to Shares and only
	// decreases; ClosedAt is set when it reaches zero. InitialScore is the
	// scoring credit fixed at buy time and never recomputed.
	RemainingShares decimal.Decimal `json:"remaining_shares" db:"remaining_shares"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
	InitialScore    decimal.Decimal `json:"initial_score" db:"initial_score"`

	// SELL only: the pro-rata deduction of InitialScore credit for the lot
	// shares this sell consumed. Always ≤ 0.
	ScoreAdjustment decimal.Decimal `json:"score_adjustment" db:"score_adjustment"`
}

// Day returns the UTC calendar date of execution, for same-day grouping.
func (t Trade) Day() time.Time {
	return t.ExecutedAt.UTC().Truncate(24 * time.Hour)
}

// Notional returns shares × price.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Shares))
}

// IsOpenBuy reports whether this trade is a BUY lot with unsold shares.
func (t Trade) IsOpenBuy() bool {
	return t.Side == SideBuy && t.RemainingShares.IsPositive()
}

// Position is a derived per-symbol holding. Never stored.
type Position struct {
	Symbol       string          `json:"symbol"`
	Shares       decimal.Decimal `json:"shares"`
	MarketPrice  decimal.Decimal `json:"market_price"` // zero when unavailable
	MarketValue  decimal.Decimal `json:"market_value"`
	PriceMissing bool            `json:"price_missing,omitempty"`
}

// Portfolio is the valuation view of one account.
type Portfolio struct {
	AccountID  string          `json:"account_id"`
	Name       string          `json:"name"`
	Cash       decimal.Decimal `json:"cash"`
	Positions  []Position      `json:"positions"`
	TotalValue decimal.Decimal `json:"total_value"`
	Warnings   []string        `json:"warnings,omitempty"` // partial valuation, not fatal
}

// ScoreBreakdown exposes each scoring signal so callers can render the
// composition without recomputing internals. Total is the composite score
// after flooring at zero and applying the cap.
type ScoreBreakdown struct {
	Performance          decimal.Decimal `json:"performance"`
	InitialContributions decimal.Decimal `json:"initial_contributions"`
	DiversificationBonus decimal.Decimal `json:"diversification_bonus"`
	MarketBonus          decimal.Decimal `json:"market_bonus"` // negative when behind the benchmark
	BetaAdjustment       decimal.Decimal `json:"beta_adjustment"`
	OvertradingPenalty   decimal.Decimal `json:"overtrading_penalty"`
	RecklessPenalty      decimal.Decimal `json:"reckless_penalty"`
	DayTradePenalty      decimal.Decimal `json:"day_trade_penalty"`
	Total                decimal.Decimal `json:"total"`
}

// LeaderboardEntry is one ranked row of the league standings.
type LeaderboardEntry struct {
	Rank       int             `json:"rank"`
	AccountID  string          `json:"account_id"`
	Name       string          `json:"name"`
	Score      decimal.Decimal `json:"score"`
	TotalValue decimal.Decimal `json:"total_value"`
}
