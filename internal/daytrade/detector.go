// Package daytrade detects same-calendar-day round trips in a trade history.
//
// A day trade is a buy and a sell of the same symbol on the same UTC calendar
// date. Detection feeds both the user-facing disclosure view and the
// day-trading penalty in the scoring engine.
package daytrade

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/internal/model"
)

// Match records one SELL trade together with the number of same-day BUY
// trades on the same symbol. SellPrice is carried so the penalty can be
// price-proportional.
type Match struct {
	Date       time.Time       `json:"date"`
	Symbol     string          `json:"symbol"`
	SellPrice  decimal.Decimal `json:"sell_price"`
	SellShares int64           `json:"sell_shares"`
	BuyCount   int             `json:"buy_count"`
}

// Group aggregates matches per (date, symbol) for disclosure.
type Group struct {
	Date    time.Time `json:"date"`
	Symbol  string    `json:"symbol"`
	Count   int       `json:"count"` // total matched buy occurrences
	SellQty int64     `json:"sell_shares"`
	SellOps int       `json:"sell_trades"`
}

// Detect scans the history and returns one Match per SELL trade that has at
// least one same-symbol BUY on the same calendar date. Multiple round trips
// on the same day all count.
func Detect(trades []model.Trade) []Match {
	// Count buys per (day, symbol) in one pass.
	type key struct {
		day    time.Time
		symbol string
	}
	buys := make(map[key]int)
	for _, t := range trades {
		if t.Side == model.SideBuy {
			buys[key{t.Day(), t.Symbol}]++
		}
	}

	var matches []Match
	for _, t := range trades {
		if t.Side != model.SideSell {
			continue
		}
		n := buys[key{t.Day(), t.Symbol}]
		if n == 0 {
			continue
		}
		matches = append(matches, Match{
			Date:       t.Day(),
			Symbol:     t.Symbol,
			SellPrice:  t.Price,
			SellShares: t.Shares,
			BuyCount:   n,
		})
	}
	return matches
}

// GroupMatches folds matches into per-(date, symbol) groups, preserving
// first-seen order.
func GroupMatches(matches []Match) []Group {
	type key struct {
		day    time.Time
		symbol string
	}
	index := make(map[key]int)
	var groups []Group

	for _, m := range matches {
		k := key{m.Date, m.Symbol}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Date: m.Date, Symbol: m.Symbol})
		}
		groups[i].Count += m.BuyCount
		groups[i].SellQty += m.SellShares
		groups[i].SellOps++
	}
	return groups
}
