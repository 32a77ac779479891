// Package provider fetches market data from the upstream exchange APIs
// and normalizes each provider's payload shape into the canonical bar
// records. Every outbound attempt passes through a shared ratelimit.Budget.
package provider

import (
	"context"
	"math/rand"
	"time"

	"zftrend/internal/model"
)

// Provider is one market-data source. Implementations return
// ErrUnsupported for operations the upstream cannot serve.
type Provider interface {
	Name() string

	// StockList returns the tradable stock universe.
	StockList(ctx context.Context) ([]model.StockInfo, error)

	// DailyBars returns every stock's bar for one trading day in a single
	// batched call.
	DailyBars(ctx context.Context, day time.Time) ([]model.DailyBar, error)

	// StockMonth returns one stock's bars for one calendar month, the
	// finest granularity the per-stock endpoints offer.
	StockMonth(ctx context.Context, stockID string, year int, month time.Month) ([]model.DailyBar, error)

	// MarketIndex returns index closes for the date range, ascending.
	MarketIndex(ctx context.Context, from, to time.Time) ([]model.MarketIndexBar, error)
}

// retrier re-runs an operation on transient failures with exponential
// backoff. Permanent errors and budget exhaustion surface immediately.
type retrier struct {
	maxRetries int
	base       time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func newRetrier(maxRetries int, base time.Duration) retrier {
	return retrier{maxRetries: maxRetries, base: base, sleep: sleepCtx}
}

func (r retrier) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) || attempt >= r.maxRetries {
			return err
		}
		backoff := r.base << uint(attempt)
		// Jitter keeps concurrent workers from retrying in lockstep.
		backoff += time.Duration(rand.Int63n(int64(r.base)))
		if serr := r.sleep(ctx, backoff); serr != nil {
			return serr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
