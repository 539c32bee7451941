package oracle

import (
	"context"
	"log/slog"
	"time"
)

// Retrier wraps an oracle with a bounded-retry policy: maxAttempts tries
// with exponential backoff between them. After the final attempt it gives
// up with ErrPriceUnavailable — a recoverable failure, never a crash.
type Retrier struct {
	next        PriceOracle
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetrier wraps next with the given retry budget. baseDelay doubles on
// every failed attempt.
func NewRetrier(next PriceOracle, maxAttempts int, baseDelay time.Duration) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{next: next, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

func (r *Retrier) Lookup(ctx context.Context, symbol string) (Quote, error) {
	delay := r.baseDelay
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		q, err := r.next.Lookup(ctx, symbol)
		if err == nil {
			return q, nil
		}
		lastErr = err

		if attempt == r.maxAttempts {
			break
		}
		slog.Warn("oracle lookup failed, retrying",
			"symbol", symbol,
			"attempt", attempt,
			"err", err,
		)
		select {
		case <-ctx.Done():
			return Quote{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	slog.Warn("oracle lookup exhausted retries", "symbol", symbol, "attempts", r.maxAttempts, "err", lastErr)
	return Quote{}, ErrPriceUnavailable
}
