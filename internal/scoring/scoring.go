// Package scoring implements the composite fantasy score.
//
// The score is a weighted sum of six partially conflicting signals:
// mark-to-market performance, beta-biased buy credits, an overtrading
// penalty, a reckless-notional penalty, a diversification bonus, a
// day-trading penalty, a market-relative bonus, and a per-position beta
// adjustment. The result is floored at zero and capped so compounding
// bonuses cannot run away.
//
// Compute is a pure function of (trade history, current prices, benchmark
// change, clock): it mutates nothing and is idempotent — callers decide
// when to persist the result.
//
// All monetary values use shopspring/decimal — never float64 for money.
package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/daytrade"
	"github.com/stockleague/league-engine/internal/model"
)

// Policy carries the tunable scoring constants. Use DefaultPolicy for the
// canonical league settings.
type Policy struct {
	// Cap is the maximum composite score.
	Cap decimal.Decimal

	// OvertradeThreshold is the same-day trade count at which the
	// overtrading penalty triggers. The penalty is a flat fraction of that
	// day's aggregated initial score contributions, not per-trade.
	OvertradeThreshold int
	OvertradeRate      decimal.Decimal

	// RecklessNotional is the per-trade notional above which a trade counts
	// as reckless. At most RecklessCap occurrences are penalized, at
	// RecklessPenalty points each.
	RecklessNotional decimal.Decimal
	RecklessCap      int
	RecklessPenalty  decimal.Decimal

	// DiversifyMin distinct symbols ever traded earn DiversifyBonus.
	DiversifyMin   int
	DiversifyBonus decimal.Decimal

	// DayTradeRate is applied per matched buy: sellPrice × rate × buyCount.
	DayTradeRate decimal.Decimal

	// MarketBonus / MarketPenalty apply when the account's daily return is
	// ahead of / behind the benchmark index.
	MarketBonus   decimal.Decimal
	MarketPenalty decimal.Decimal

	// HighBeta is the cutoff above which a position is volatile: each open
	// high-beta position subtracts BetaPenalty, every other adds BetaBonus.
	// HighBeta also selects the divisor in the buy-time beta factor.
	HighBeta        decimal.Decimal
	BetaPenalty     decimal.Decimal
	BetaBonus       decimal.Decimal
	BetaHighDivisor decimal.Decimal
	BetaLowDivisor  decimal.Decimal
}

// DefaultPolicy returns the canonical league scoring constants.
func DefaultPolicy() Policy {
	return Policy{
		Cap:                decimal.NewFromInt(1000),
		OvertradeThreshold: 20,
		OvertradeRate:      decimal.NewFromFloat(0.10),
		RecklessNotional:   decimal.NewFromInt(50000),
		RecklessCap:        2,
		RecklessPenalty:    decimal.NewFromInt(3),
		DiversifyMin:       5,
		DiversifyBonus:     decimal.NewFromInt(10),
		DayTradeRate:       decimal.NewFromFloat(0.30),
		MarketBonus:        decimal.NewFromInt(5),
		MarketPenalty:      decimal.NewFromInt(5),
		HighBeta:           decimal.NewFromInt(2),
		BetaPenalty:        decimal.NewFromInt(2),
		BetaBonus:          decimal.NewFromInt(1),
		BetaHighDivisor:    decimal.NewFromFloat(2.5),
		BetaLowDivisor:     decimal.NewFromInt(5),
	}
}

// betaOrDefault resolves an unknown beta to 1 (treated as conservative).
var defaultBeta = decimal.NewFromInt(1)

func betaOrDefault(beta decimal.NullDecimal) decimal.Decimal {
	if beta.Valid {
		return beta.Decimal
	}
	return defaultBeta
}

// InitialContribution computes the scoring credit recorded at buy time:
//
//	price × (1 − betaFactor)
//	betaFactor = beta / BetaHighDivisor  when beta ≥ HighBeta
//	           = beta / BetaLowDivisor   otherwise
//
// Low-beta (conservative) buys earn more credit; high-beta buys less. The
// value is fixed at purchase and later reduced pro-rata as sells close the
// lot.
func (p Policy) InitialContribution(price decimal.Decimal, beta decimal.NullDecimal) decimal.Decimal {
	b := betaOrDefault(beta)
	var factor decimal.Decimal
	if b.GreaterThanOrEqual(p.HighBeta) {
		factor = b.Div(p.BetaHighDivisor)
	} else {
		factor = b.Div(p.BetaLowDivisor)
	}
	one := decimal.NewFromInt(1)
	return price.Mul(one.Sub(factor))
}

// Inputs bundles everything Compute needs. Prices maps symbol → current
// price; symbols missing from the map are treated as unavailable and
// contribute zero. BenchmarkChange is the benchmark index's daily percentage
// change; when invalid the market-relative signal is neutral.
type Inputs struct {
	Trades          []model.Trade
	Prices          map[string]decimal.Decimal
	BenchmarkChange decimal.NullDecimal
	Now             time.Time
}

// Compute derives the composite score and its per-signal breakdown.
func (p Policy) Compute(in Inputs) model.ScoreBreakdown {
	var bd model.ScoreBreakdown

	bd.Performance = p.performance(in.Trades, in.Prices)
	bd.InitialContributions = p.initialContributions(in.Trades)
	bd.OvertradingPenalty = p.overtradingPenalty(in.Trades, in.Now)
	bd.RecklessPenalty = p.recklessPenalty(in.Trades)
	bd.DiversificationBonus = p.diversificationBonus(in.Trades)
	bd.DayTradePenalty = p.dayTradePenalty(in.Trades)
	bd.MarketBonus = p.marketRelative(in.Trades, in.Prices, in.BenchmarkChange)
	bd.BetaAdjustment = p.betaAdjustment(in.Trades)

	total := bd.Performance.
		Add(bd.InitialContributions).
		Add(bd.DiversificationBonus).
		Add(bd.MarketBonus).
		Add(bd.BetaAdjustment).
		Sub(bd.OvertradingPenalty).
		Sub(bd.RecklessPenalty).
		Sub(bd.DayTradePenalty)

	if total.IsNegative() {
		total = decimal.Zero
	}
	if total.GreaterThan(p.Cap) {
		total = p.Cap
	}
	bd.Total = total
	return bd
}

// performance sums, over open BUY lots, the percentage return weighted by
// the lot's dollar entry price: ((cur − exec) / exec) × exec. Lots with no
// available price contribute zero.
func (p Policy) performance(trades []model.Trade, prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		if !t.IsOpenBuy() {
			continue
		}
		cur, ok := prices[t.Symbol]
		if !ok || t.Price.IsZero() {
			continue
		}
		pct := cur.Sub(t.Price).Div(t.Price)
		total = total.Add(pct.Mul(t.Price))
	}
	return total
}

// initialContributions sums buy-time credits net of the pro-rata
// adjustments recorded by sells, so fully closed lots contribute nothing.
func (p Policy) initialContributions(trades []model.Trade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			total = total.Add(t.InitialScore)
		case model.SideSell:
			total = total.Add(t.ScoreAdjustment)
		}
	}
	return total
}

// overtradingPenalty triggers once the current calendar day's trade count
// reaches the threshold: a flat fraction of that day's buy-time credits.
func (p Policy) overtradingPenalty(trades []model.Trade, now time.Time) decimal.Decimal {
	today := now.UTC().Truncate(24 * time.Hour)
	count := 0
	dayCredits := decimal.Zero
	for _, t := range trades {
		if !t.Day().Equal(today) {
			continue
		}
		count++
		if t.Side == model.SideBuy {
			dayCredits = dayCredits.Add(t.InitialScore)
		}
	}
	if count < p.OvertradeThreshold {
		return decimal.Zero
	}
	return dayCredits.Mul(p.OvertradeRate)
}

func (p Policy) recklessPenalty(trades []model.Trade) decimal.Decimal {
	count := 0
	for _, t := range trades {
		if t.Notional().GreaterThan(p.RecklessNotional) {
			count++
		}
	}
	if count > p.RecklessCap {
		count = p.RecklessCap
	}
	return p.RecklessPenalty.Mul(decimal.NewFromInt(int64(count)))
}

func (p Policy) diversificationBonus(trades []model.Trade) decimal.Decimal {
	symbols := make(map[string]struct{})
	for _, t := range trades {
		symbols[t.Symbol] = struct{}{}
	}
	if len(symbols) >= p.DiversifyMin {
		return p.DiversifyBonus
	}
	return decimal.Zero
}

// dayTradePenalty charges sellPrice × rate × matchedBuyCount for every
// same-day round trip found by the detector.
func (p Policy) dayTradePenalty(trades []model.Trade) decimal.Decimal {
	total := decimal.Zero
	for _, m := range daytrade.Detect(trades) {
		total = total.Add(m.SellPrice.Mul(p.DayTradeRate).Mul(decimal.NewFromInt(int64(m.BuyCount))))
	}
	return total
}

// marketRelative compares the account's dollar-weighted open-position return
// against the benchmark's daily change: flat bonus when ahead, flat penalty
// when behind. Unknown benchmark or no priced positions → neutral.
func (p Policy) marketRelative(trades []model.Trade, prices map[string]decimal.Decimal, benchmark decimal.NullDecimal) decimal.Decimal {
	if !benchmark.Valid {
		return decimal.Zero
	}

	gain := decimal.Zero
	basis := decimal.Zero
	for _, t := range trades {
		if !t.IsOpenBuy() {
			continue
		}
		cur, ok := prices[t.Symbol]
		if !ok {
			continue
		}
		gain = gain.Add(cur.Sub(t.Price).Mul(t.RemainingShares))
		basis = basis.Add(t.Price.Mul(t.RemainingShares))
	}
	if basis.IsZero() {
		return decimal.Zero
	}

	ret := gain.Div(basis)
	switch ret.Cmp(benchmark.Decimal) {
	case 1:
		return p.MarketBonus
	case -1:
		return p.MarketPenalty.Neg()
	}
	return decimal.Zero
}

// betaAdjustment charges each open high-beta lot and credits every other
// open lot. Unknown beta counts as conservative.
func (p Policy) betaAdjustment(trades []model.Trade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		if !t.IsOpenBuy() {
			continue
		}
		if betaOrDefault(t.Beta).GreaterThanOrEqual(p.HighBeta) {
			total = total.Sub(p.BetaPenalty)
		} else {
			total = total.Add(p.BetaBonus)
		}
	}
	return total
}
