package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quote(symbol string, price float64) Quote {
	return Quote{Symbol: symbol, Price: decimal.NewFromFloat(price)}
}

func TestDailyChange(t *testing.T) {
	q := Quote{
		Symbol:    "SPY",
		Price:     decimal.NewFromInt(101),
		PrevClose: decimal.NewFromInt(100),
	}
	change := q.DailyChange()
	require.True(t, change.Valid)
	assert.True(t, change.Decimal.Equal(decimal.NewFromFloat(0.01)), "change = %s", change.Decimal)
}

func TestDailyChange_NoPrevClose(t *testing.T) {
	q := quote("SPY", 101)
	assert.False(t, q.DailyChange().Valid)
}

// countingOracle fails the first n calls, then succeeds.
type countingOracle struct {
	calls    int
	failures int
	err      error
}

func (o *countingOracle) Lookup(_ context.Context, symbol string) (Quote, error) {
	o.calls++
	if o.calls <= o.failures {
		return Quote{}, o.err
	}
	return quote(symbol, 100), nil
}

func TestRetrier_SucceedsWithinBudget(t *testing.T) {
	upstream := &countingOracle{failures: 2, err: errors.New("flaky")}
	r := NewRetrier(upstream, 3, time.Millisecond)

	q, err := r.Lookup(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 3, upstream.calls)
}

func TestRetrier_ExhaustionReturnsPriceUnavailable(t *testing.T) {
	upstream := &countingOracle{failures: 100, err: errors.New("down")}
	r := NewRetrier(upstream, 3, time.Millisecond)

	_, err := r.Lookup(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Equal(t, 3, upstream.calls, "exactly maxAttempts upstream calls")
}

func TestRetrier_NoRetryOnFirstSuccess(t *testing.T) {
	upstream := &countingOracle{}
	r := NewRetrier(upstream, 3, time.Millisecond)

	_, err := r.Lookup(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls)
}

func TestRetrier_ContextCancelledDuringBackoff(t *testing.T) {
	upstream := &countingOracle{failures: 100, err: errors.New("down")}
	r := NewRetrier(upstream, 3, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Lookup(ctx, "AAPL")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, upstream.calls, "cancellation cuts the backoff short")
}

func TestCache_HitAvoidsUpstream(t *testing.T) {
	upstream := &countingOracle{}
	c := NewCache(upstream, time.Minute)

	_, err := c.Lookup(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = c.Lookup(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls, "second lookup must hit the cache")
}

func TestCache_ExpiredEntryRefetches(t *testing.T) {
	upstream := &countingOracle{}
	c := NewCache(upstream, time.Minute)

	clock := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	_, err := c.Lookup(context.Background(), "AAPL")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	_, err = c.Lookup(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCache_FailuresNotCached(t *testing.T) {
	upstream := &countingOracle{failures: 1, err: errors.New("blip")}
	c := NewCache(upstream, time.Minute)

	_, err := c.Lookup(context.Background(), "AAPL")
	require.Error(t, err)

	q, err := c.Lookup(context.Background(), "AAPL")
	require.NoError(t, err, "the failure must not be memoized")
	assert.Equal(t, "AAPL", q.Symbol)
}

func TestCache_Warm(t *testing.T) {
	upstream := &countingOracle{}
	c := NewCache(upstream, time.Minute)

	c.Warm(context.Background(), []string{"AAPL", "TSLA", "SPY"})
	assert.Equal(t, 3, upstream.calls)

	// Warmed entries serve without touching upstream.
	_, err := c.Lookup(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, 3, upstream.calls)
}

func TestCache_WarmIgnoresFailures(t *testing.T) {
	upstream := &countingOracle{failures: 1, err: errors.New("blip")}
	c := NewCache(upstream, time.Minute)

	c.Warm(context.Background(), []string{"AAPL", "TSLA"})
	assert.Equal(t, 2, upstream.calls, "a failed symbol does not stop the sweep")
}
