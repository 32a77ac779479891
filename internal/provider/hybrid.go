package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"zftrend/internal/model"
)

// Hybrid routes each operation to the source best suited for it and
// fails over to the other when the preferred one errors. A circuit
// breaker per underlying provider stops hammering an upstream that keeps
// failing; while a breaker is open, calls go straight to the fallback.
type Hybrid struct {
	finmind Provider
	twse    Provider
	breaker map[string]*gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewHybrid wraps the two concrete providers.
func NewHybrid(finmind, twse Provider, log zerolog.Logger) *Hybrid {
	h := &Hybrid{
		finmind: finmind,
		twse:    twse,
		breaker: make(map[string]*gobreaker.CircuitBreaker, 2),
		log:     log.With().Str("provider", "hybrid").Logger(),
	}
	for _, p := range []Provider{finmind, twse} {
		st := gobreaker.Settings{Name: p.Name(), Timeout: 2 * time.Minute}
		st.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
		h.breaker[p.Name()] = gobreaker.NewCircuitBreaker(st)
	}
	return h
}

func (h *Hybrid) Name() string { return "hybrid" }

// call runs fn through p's breaker. Unsupported operations and permanent
// rejections do not count as provider health failures.
func call[T any](h *Hybrid, p Provider, fn func() (T, error)) (T, error) {
	out, err := h.breaker[p.Name()].Execute(func() (interface{}, error) {
		v, err := fn()
		if err != nil && (errors.Is(err, ErrUnsupported) || !IsTransient(err)) {
			return result[T]{value: v, err: err}, nil
		}
		return result[T]{value: v}, err
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", p.Name(), err)
	}
	r := out.(result[T])
	return r.value, r.err
}

type result[T any] struct {
	value T
	err   error
}

// failover tries primary then secondary, falling through on any error.
func failover[T any](ctx context.Context, h *Hybrid, op string, primary, secondary Provider, fn func(Provider) (T, error)) (T, error) {
	v, err := call(h, primary, func() (T, error) { return fn(primary) })
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		var zero T
		return zero, ctx.Err()
	}
	h.log.Warn().Str("op", op).Str("from", primary.Name()).Str("to", secondary.Name()).
		Err(err).Msg("failing over")
	v, ferr := call(h, secondary, func() (T, error) { return fn(secondary) })
	if ferr != nil {
		var zero T
		return zero, fmt.Errorf("%s: primary %v; fallback: %w", op, err, ferr)
	}
	return v, nil
}

func (h *Hybrid) StockList(ctx context.Context) ([]model.StockInfo, error) {
	return failover(ctx, h, "stock list", h.finmind, h.twse, func(p Provider) ([]model.StockInfo, error) {
		return p.StockList(ctx)
	})
}

func (h *Hybrid) DailyBars(ctx context.Context, day time.Time) ([]model.DailyBar, error) {
	return failover(ctx, h, "daily bars", h.finmind, h.twse, func(p Provider) ([]model.DailyBar, error) {
		return p.DailyBars(ctx, day)
	})
}

// StockMonth prefers the exchange endpoint: it is the natural per-stock
// monthly granularity and keeps bulk history off the token-metered source.
func (h *Hybrid) StockMonth(ctx context.Context, stockID string, year int, month time.Month) ([]model.DailyBar, error) {
	return failover(ctx, h, "stock month", h.twse, h.finmind, func(p Provider) ([]model.DailyBar, error) {
		return p.StockMonth(ctx, stockID, year, month)
	})
}

func (h *Hybrid) MarketIndex(ctx context.Context, from, to time.Time) ([]model.MarketIndexBar, error) {
	return failover(ctx, h, "market index", h.finmind, h.twse, func(p Provider) ([]model.MarketIndexBar, error) {
		return p.MarketIndex(ctx, from, to)
	})
}
