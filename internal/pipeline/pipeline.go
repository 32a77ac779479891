// Package pipeline moves bars from a provider into the store: batched
// single-day ingests with a per-stock fallback, and month-granular
// backfills. One stock's failure never aborts the rest; failures are
// collected into the run summary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"zftrend/internal/model"
	"zftrend/internal/provider"
	"zftrend/internal/store"
)

// Pipeline coordinates fetch and persist for ingest operations.
type Pipeline struct {
	provider provider.Provider
	store    *store.Store
	workers  int
	log      zerolog.Logger
}

// New creates a Pipeline with a bounded worker pool; workers <= 0 means 4.
func New(p provider.Provider, s *store.Store, workers int, log zerolog.Logger) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		provider: p,
		store:    s,
		workers:  workers,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// IngestDay pulls one trading day's bars, preferring the batched
// full-universe call. When no provider supports it, each stock in
// stockIDs is fetched individually through the worker pool.
func (p *Pipeline) IngestDay(ctx context.Context, day time.Time, stockIDs []string) (model.IngestSummary, error) {
	day = model.Day(day)
	summary := model.IngestSummary{From: day, To: day}

	bars, err := p.provider.DailyBars(ctx, day)
	switch {
	case err == nil:
		n, werr := p.store.UpsertDailyBars(ctx, bars)
		if werr != nil {
			return summary, fmt.Errorf("persist daily bars: %w", werr)
		}
		summary.Requested = len(bars)
		summary.Succeeded = len(bars)
		summary.BarsWritten = n
		p.log.Info().Str("date", day.Format(model.DateFormat)).Int("bars", n).Msg("daily bars ingested")
		return summary, nil
	case errors.Is(err, provider.ErrUnsupported):
		p.log.Warn().Str("date", day.Format(model.DateFormat)).
			Msg("no batched daily endpoint, falling back to per-stock fetch")
		return p.ingestDayPerStock(ctx, day, stockIDs)
	default:
		return summary, fmt.Errorf("fetch daily bars: %w", err)
	}
}

func (p *Pipeline) ingestDayPerStock(ctx context.Context, day time.Time, stockIDs []string) (model.IngestSummary, error) {
	return p.forEachStock(ctx, stockIDs, model.IngestSummary{From: day, To: day}, func(ctx context.Context, id string) (int, error) {
		bars, err := p.provider.StockMonth(ctx, id, day.Year(), day.Month())
		if err != nil {
			return 0, err
		}
		dayBars := bars[:0:0]
		for _, b := range bars {
			if model.SameDay(b.Date, day) {
				dayBars = append(dayBars, b)
			}
		}
		return p.store.UpsertDailyBars(ctx, dayBars)
	})
}

// Backfill loads history for the stocks across [from, to]. The
// per-stock endpoints serve whole months, so each stock costs one call
// per calendar month touched by the range, regardless of day alignment.
func (p *Pipeline) Backfill(ctx context.Context, stockIDs []string, from, to time.Time) (model.IngestSummary, error) {
	from, to = model.Day(from), model.Day(to)
	if to.Before(from) {
		return model.IngestSummary{}, fmt.Errorf("backfill range %s after %s",
			from.Format(model.DateFormat), to.Format(model.DateFormat))
	}
	months := monthsIn(from, to)
	p.log.Info().Int("stocks", len(stockIDs)).Int("months", len(months)).
		Str("from", from.Format(model.DateFormat)).Str("to", to.Format(model.DateFormat)).
		Msg("backfill started")

	return p.forEachStock(ctx, stockIDs, model.IngestSummary{From: from, To: to}, func(ctx context.Context, id string) (int, error) {
		written := 0
		for _, m := range months {
			bars, err := p.provider.StockMonth(ctx, id, m.year, m.month)
			if err != nil {
				return written, fmt.Errorf("month %d-%02d: %w", m.year, m.month, err)
			}
			inRange := bars[:0:0]
			for _, b := range bars {
				if !b.Date.Before(from) && !b.Date.After(to) {
					inRange = append(inRange, b)
				}
			}
			n, err := p.store.UpsertDailyBars(ctx, inRange)
			if err != nil {
				return written, fmt.Errorf("month %d-%02d: %w", m.year, m.month, err)
			}
			written += n
		}
		return written, nil
	})
}

// forEachStock fans work over the bounded pool and aggregates results.
// A systemic stop (context cancellation) aborts; per-stock errors are
// recorded and the rest proceed.
func (p *Pipeline) forEachStock(ctx context.Context, stockIDs []string, summary model.IngestSummary,
	fn func(ctx context.Context, stockID string) (int, error)) (model.IngestSummary, error) {

	summary.Requested = len(stockIDs)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)

	for _, id := range stockIDs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			written, err := fn(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			summary.BarsWritten += written
			if err != nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, model.StockFailure{StockID: id, Reason: err.Error()})
				p.log.Warn().Str("stock_id", id).Err(err).Msg("stock ingest failed")
				return
			}
			summary.Succeeded++
		}(id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	p.log.Info().Int("succeeded", summary.Succeeded).Int("failed", summary.Failed).
		Int("bars", summary.BarsWritten).Msg("ingest finished")
	return summary, nil
}

// IngestMarketIndex refreshes index closes for the range.
func (p *Pipeline) IngestMarketIndex(ctx context.Context, from, to time.Time) (int, error) {
	bars, err := p.provider.MarketIndex(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("fetch market index: %w", err)
	}
	if err := p.store.UpsertMarketIndex(ctx, bars); err != nil {
		return 0, fmt.Errorf("persist market index: %w", err)
	}
	return len(bars), nil
}

type yearMonth struct {
	year  int
	month time.Month
}

// monthsIn lists every calendar month touched by [from, to].
func monthsIn(from, to time.Time) []yearMonth {
	var months []yearMonth
	for cursor := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC); !cursor.After(to); cursor = cursor.AddDate(0, 1, 0) {
		months = append(months, yearMonth{year: cursor.Year(), month: cursor.Month()})
	}
	return months
}
