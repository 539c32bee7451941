package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockleague/league-engine/internal/ledger"
	"github.com/stockleague/league-engine/internal/model"
	"github.com/stockleague/league-engine/internal/scoring"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// account + in-memory history used to drive the pure ledger functions.
type fixture struct {
	acct   model.Account
	trades []model.Trade
	policy scoring.Policy
	now    time.Time
}

func newFixture() *fixture {
	return &fixture{
		acct: model.Account{
			ID:   "acct-1",
			Name: "alice",
			Cash: decimal.NewFromInt(100000),
		},
		policy: scoring.DefaultPolicy(),
		now:    time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
	}
}

// apply mimics what the store does with a Result: patch lots, append, set cash.
func (f *fixture) apply(t *testing.T, res ledger.Result) {
	t.Helper()
	for _, upd := range res.LotUpdates {
		found := false
		for i := range f.trades {
			if f.trades[i].ID == upd.TradeID {
				f.trades[i].RemainingShares = upd.RemainingShares
				if upd.ClosedAt != nil {
					f.trades[i].ClosedAt = upd.ClosedAt
				}
				found = true
			}
		}
		require.True(t, found, "lot update for unknown trade %s", upd.TradeID)
	}
	f.trades = append(f.trades, res.Trade)
	f.acct.Cash = res.NewCash
}

func (f *fixture) buy(t *testing.T, symbol string, shares int64, price float64) ledger.Result {
	t.Helper()
	res, err := ledger.ExecuteBuy(f.acct, symbol, shares, d(price), decimal.NullDecimal{}, f.policy, f.now)
	require.NoError(t, err)
	f.apply(t, res)
	f.now = f.now.Add(time.Minute)
	return res
}

func (f *fixture) sell(t *testing.T, symbol string, shares int64, price float64) ledger.Result {
	t.Helper()
	res, err := ledger.ExecuteSell(f.acct, f.trades, symbol, shares, d(price), f.now)
	require.NoError(t, err)
	f.apply(t, res)
	f.now = f.now.Add(time.Minute)
	return res
}

func TestExecuteBuy_DebitsCashAndOpensLot(t *testing.T) {
	f := newFixture()
	res := f.buy(t, "AAPL", 10, 100)

	assert.True(t, f.acct.Cash.Equal(d(99000)), "cash = %s", f.acct.Cash)
	assert.Equal(t, model.SideBuy, res.Trade.Side)
	assert.True(t, res.Trade.RemainingShares.Equal(d(10)))
	assert.Nil(t, res.Trade.ClosedAt)
	assert.True(t, res.Trade.InitialScore.IsPositive(), "buy-time credit should be recorded")
}

func TestExecuteBuy_InsufficientFunds(t *testing.T) {
	f := newFixture()
	_, err := ledger.ExecuteBuy(f.acct, "AAPL", 2000, d(100), decimal.NullDecimal{}, f.policy, f.now)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	// Nothing mutated: the fixture was never touched.
	assert.True(t, f.acct.Cash.Equal(d(100000)))
	assert.Empty(t, f.trades)
}

func TestExecuteBuy_ExactCashAllowed(t *testing.T) {
	f := newFixture()
	f.buy(t, "AAPL", 1000, 100) // exactly 100000
	assert.True(t, f.acct.Cash.IsZero())
}

func TestExecuteBuy_InvalidOrder(t *testing.T) {
	f := newFixture()

	_, err := ledger.ExecuteBuy(f.acct, "AAPL", 0, d(100), decimal.NullDecimal{}, f.policy, f.now)
	assert.ErrorIs(t, err, ledger.ErrInvalidOrder)

	_, err = ledger.ExecuteBuy(f.acct, "AAPL", 10, decimal.Zero, decimal.NullDecimal{}, f.policy, f.now)
	assert.ErrorIs(t, err, ledger.ErrInvalidOrder)

	_, err = ledger.ExecuteBuy(f.acct, "aapl!", 10, d(100), decimal.NullDecimal{}, f.policy, f.now)
	assert.ErrorIs(t, err, model.ErrInvalidSymbol)
}

func TestExecuteSell_FIFOConsumesOldestFirst(t *testing.T) {
	f := newFixture()
	f.buy(t, "AAPL", 10, 10)
	f.buy(t, "AAPL", 10, 20)

	f.sell(t, "AAPL", 15, 25)

	first, second := f.trades[0], f.trades[1]
	assert.True(t, first.RemainingShares.IsZero(), "oldest lot fully consumed, got %s", first.RemainingShares)
	require.NotNil(t, first.ClosedAt, "fully consumed lot must be closed")
	assert.True(t, second.RemainingShares.Equal(d(5)), "newer lot keeps 5, got %s", second.RemainingShares)
	assert.Nil(t, second.ClosedAt)
}

func TestExecuteSell_InsufficientShares(t *testing.T) {
	f := newFixture()
	f.buy(t, "AAPL", 10, 100)

	cashBefore := f.acct.Cash
	_, err := ledger.ExecuteSell(f.acct, f.trades, "AAPL", 15, d(100), f.now)

	var insufficient *ledger.InsufficientSharesError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(d(10)), "available = %s", insufficient.Available)

	// State unchanged: no mutation happened because nothing was applied.
	assert.True(t, f.acct.Cash.Equal(cashBefore))
	assert.Len(t, f.trades, 1)
	assert.True(t, f.trades[0].RemainingShares.Equal(d(10)))
}

func TestExecuteSell_NoShortSelling(t *testing.T) {
	f := newFixture()
	_, err := ledger.ExecuteSell(f.acct, f.trades, "TSLA", 1, d(200), f.now)

	var insufficient *ledger.InsufficientSharesError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.IsZero())
}

func TestExecuteSell_DoesNotTouchOtherSymbols(t *testing.T) {
	f := newFixture()
	f.buy(t, "AAPL", 10, 10)
	f.buy(t, "TSLA", 10, 20)

	f.sell(t, "AAPL", 10, 15)

	assert.True(t, f.trades[1].RemainingShares.Equal(d(10)), "TSLA lot untouched")
	assert.True(t, ledger.AvailableShares(f.trades, "TSLA").Equal(d(10)))
	assert.True(t, ledger.AvailableShares(f.trades, "AAPL").IsZero())
}

func TestExecuteSell_ProRataScoreAdjustment(t *testing.T) {
	f := newFixture()
	f.buy(t, "AAPL", 10, 100)
	credit := f.trades[0].InitialScore

	// Sell half the lot: half the credit is given back.
	res := f.sell(t, "AAPL", 5, 110)
	expected := credit.Div(d(2)).Neg()
	assert.True(t, res.Trade.ScoreAdjustment.Equal(expected),
		"adjustment = %s, want %s", res.Trade.ScoreAdjustment, expected)

	// Selling the rest returns the other half.
	res = f.sell(t, "AAPL", 5, 110)
	assert.True(t, res.Trade.ScoreAdjustment.Equal(expected))
}

func TestExecuteSell_AdjustmentSpansLots(t *testing.T) {
	f := newFixture()
	f.buy(t, "AAPL", 10, 10)
	f.buy(t, "AAPL", 10, 20)
	c1, c2 := f.trades[0].InitialScore, f.trades[1].InitialScore

	res := f.sell(t, "AAPL", 15, 25)

	// All of lot 1's credit, half of lot 2's.
	expected := c1.Add(c2.Div(d(2))).Neg()
	assert.True(t, res.Trade.ScoreAdjustment.Equal(expected),
		"adjustment = %s, want %s", res.Trade.ScoreAdjustment, expected)
}

func TestCashInvariant_HoldsAcrossSequences(t *testing.T) {
	f := newFixture()
	initial := f.acct.Cash

	f.buy(t, "AAPL", 10, 100)
	f.buy(t, "TSLA", 5, 200)
	f.sell(t, "AAPL", 4, 110)
	f.buy(t, "AAPL", 3, 105)
	f.sell(t, "TSLA", 5, 190)
	f.sell(t, "AAPL", 9, 120)

	// initial − Σ buy notional + Σ sell notional, recomputed from history.
	expected := initial
	for _, tr := range f.trades {
		if tr.Side == model.SideBuy {
			expected = expected.Sub(tr.Notional())
		} else {
			expected = expected.Add(tr.Notional())
		}
	}
	assert.True(t, f.acct.Cash.Equal(expected), "cash = %s, want %s", f.acct.Cash, expected)
}

func TestRemainingShares_NeverNegativeAndMonotonic(t *testing.T) {
	f := newFixture()
	f.buy(t, "AAPL", 7, 50)

	prev := f.trades[0].RemainingShares
	for i := 0; i < 7; i++ {
		f.sell(t, "AAPL", 1, 55)
		cur := f.trades[0].RemainingShares
		assert.True(t, cur.LessThanOrEqual(prev), "remaining must not increase")
		assert.False(t, cur.IsNegative())
		prev = cur
	}
	require.NotNil(t, f.trades[0].ClosedAt)
}

func TestRebuyAfterClose_NewLotIsIndependent(t *testing.T) {
	f := newFixture()
	f.buy(t, "AAPL", 10, 100)
	f.sell(t, "AAPL", 10, 110)
	f.buy(t, "AAPL", 3, 120)

	assert.True(t, ledger.AvailableShares(f.trades, "AAPL").Equal(d(3)))

	// The closed lot stays closed; a sell consumes only the new lot.
	f.sell(t, "AAPL", 2, 125)
	assert.True(t, f.trades[0].RemainingShares.IsZero())
	assert.True(t, f.trades[2].RemainingShares.Equal(d(1)))
}
