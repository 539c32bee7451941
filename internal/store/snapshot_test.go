package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockleague/league-engine/internal/model"
)

var initialCash = decimal.NewFromInt(100000)

func TestSnapshot_RoundTrip(t *testing.T) {
	closed := time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Account: model.Account{
			ID:        "a1",
			Name:      "alice",
			Cash:      decimal.NewFromInt(99000),
			Score:     decimal.NewFromFloat(123.45),
			CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		},
		Trades: []model.Trade{
			{
				ID:              "t1",
				AccountID:       "a1",
				Symbol:          "AAPL",
				Side:            model.SideBuy,
				Shares:          10,
				Price:           decimal.NewFromInt(100),
				Beta:            decimal.NullDecimal{Decimal: decimal.NewFromFloat(1.2), Valid: true},
				ExecutedAt:      time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
				RemainingShares: decimal.Zero,
				ClosedAt:        &closed,
				InitialScore:    decimal.NewFromInt(80),
			},
		},
	}

	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	got, err := DecodeSnapshot(data, initialCash)
	require.NoError(t, err, "own output must decode cleanly")

	assert.Equal(t, "a1", got.Account.ID)
	assert.True(t, got.Account.Cash.Equal(snap.Account.Cash))
	assert.True(t, got.Account.CreatedAt.Equal(snap.Account.CreatedAt))
	require.Len(t, got.Trades, 1)
	assert.Equal(t, model.SideBuy, got.Trades[0].Side)
	assert.True(t, got.Trades[0].Beta.Valid)
	require.NotNil(t, got.Trades[0].ClosedAt)
	assert.True(t, got.Trades[0].ClosedAt.Equal(closed))
}

func TestDecodeSnapshot_UnreadableJSON(t *testing.T) {
	got, err := DecodeSnapshot([]byte(`{not json`), initialCash)

	require.ErrorIs(t, err, ErrCorruptSnapshot)
	// Still a usable record: default account, initial cash, empty history.
	assert.True(t, got.Account.Cash.Equal(initialCash))
	assert.Empty(t, got.Trades)
}

func TestDecodeSnapshot_MissingCashDefaults(t *testing.T) {
	data := []byte(`{"account":{"id":"a1","name":"alice"}}`)

	got, err := DecodeSnapshot(data, initialCash)
	require.ErrorIs(t, err, ErrCorruptSnapshot)
	assert.Contains(t, err.Error(), "cash missing")
	assert.Equal(t, "a1", got.Account.ID)
	assert.True(t, got.Account.Cash.Equal(initialCash))
}

func TestDecodeSnapshot_BadTimestampDegrades(t *testing.T) {
	data := []byte(`{"account":{"id":"a1","name":"alice","cash":"500","created_at":"not-a-time"}}`)

	got, err := DecodeSnapshot(data, initialCash)
	require.ErrorIs(t, err, ErrCorruptSnapshot)
	assert.True(t, got.Account.CreatedAt.IsZero(), "bad instant degrades to unknown")
	assert.True(t, got.Account.Cash.Equal(decimal.NewFromInt(500)), "good fields survive")
}

func TestDecodeSnapshot_BadSideDropsTradeOnly(t *testing.T) {
	data := []byte(`{
		"account":{"id":"a1","name":"alice","cash":"99000"},
		"trades":[
			{"id":"t1","symbol":"AAPL","side":"HOLD","shares":10,"price":"100"},
			{"id":"t2","symbol":"AAPL","side":"BUY","shares":10,"price":"100","remaining_shares":"10"}
		]
	}`)

	got, err := DecodeSnapshot(data, initialCash)
	require.ErrorIs(t, err, ErrCorruptSnapshot)
	require.Len(t, got.Trades, 1, "unusable trade dropped, good one kept")
	assert.Equal(t, "t2", got.Trades[0].ID)
}

func TestDecodeSnapshot_DecimalAsNumberOrString(t *testing.T) {
	data := []byte(`{"account":{"id":"a1","name":"alice","cash":12345.67}}`)

	got, err := DecodeSnapshot(data, initialCash)
	require.NoError(t, err)
	assert.True(t, got.Account.Cash.Equal(decimal.NewFromFloat(12345.67)))
}

func TestRestoreSnapshot(t *testing.T) {
	s := NewMemoryStore()
	snap := Snapshot{
		Account: model.Account{ID: "a1", Name: "alice", Cash: decimal.NewFromInt(99000)},
		Trades: []model.Trade{
			{ID: "t1", AccountID: "a1", Symbol: "AAPL", Side: model.SideBuy, Shares: 10,
				Price: decimal.NewFromInt(100), RemainingShares: decimal.NewFromInt(10)},
		},
	}
	require.NoError(t, s.RestoreSnapshot(snap))

	acct, err := s.GetAccount(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, acct.Cash.Equal(decimal.NewFromInt(99000)))

	trades, err := s.GetTradesByAccount(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)
}

func TestRestoreSnapshot_RejectsMissingID(t *testing.T) {
	s := NewMemoryStore()
	err := s.RestoreSnapshot(Snapshot{Account: model.Account{Name: "ghost"}})
	assert.Error(t, err)
}
