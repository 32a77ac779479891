// Package ratelimit enforces a provider request budget over a rolling
// time window. The budget is a single shared counter: every client call
// site acquires from the same Budget before each outbound attempt, so
// retries and failures consume quota exactly like successes.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrBudgetExhausted is returned by TryAcquire when the window is full.
var ErrBudgetExhausted = errors.New("rate budget exhausted for current window")

// Budget tracks request attempts with a sliding timestamp log: an attempt
// stops counting against the limit once it is older than the window.
type Budget struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	pacer *rate.Limiter // nil unless pacing is enabled

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Budget allowing limit attempts per rolling window.
func New(limit int, window time.Duration) *Budget {
	return &Budget{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// EnablePacing spreads attempts evenly across the window instead of
// letting callers burn the whole budget in a burst, matching how the
// upstream providers prefer to be called.
func (b *Budget) EnablePacing() {
	interval := b.window / time.Duration(b.limit)
	b.pacer = rate.NewLimiter(rate.Every(interval), 1)
}

// TryAcquire consumes one attempt or fails fast with ErrBudgetExhausted.
func (b *Budget) TryAcquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.prune(now)
	if len(b.stamps) >= b.limit {
		return ErrBudgetExhausted
	}
	b.stamps = append(b.stamps, now)
	return nil
}

// Acquire consumes one attempt, blocking until a slot frees up or the
// context is cancelled.
func (b *Budget) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := b.now()
		b.prune(now)
		if len(b.stamps) < b.limit {
			b.stamps = append(b.stamps, now)
			b.mu.Unlock()
			if b.pacer != nil {
				return b.pacer.Wait(ctx)
			}
			return nil
		}
		wait := b.stamps[0].Add(b.window).Sub(now)
		b.mu.Unlock()
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// prune drops attempts that have slid out of the window. Caller holds mu.
func (b *Budget) prune(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.stamps) && !b.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[i:]...)
	}
}

// Stats describes the current window occupancy.
type Stats struct {
	Used    int
	Limit   int
	Window  time.Duration
	ResetIn time.Duration
}

// Stats returns a point-in-time view of the budget.
func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.prune(now)
	s := Stats{Used: len(b.stamps), Limit: b.limit, Window: b.window}
	if len(b.stamps) > 0 {
		s.ResetIn = b.stamps[0].Add(b.window).Sub(now)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
