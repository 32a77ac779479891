// Package task wires the pipeline, indicators, screening rules and
// exporter into the operator-facing runs: daily screen, monthly
// universe refresh, initial bootstrap, backfill and health probe.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"zftrend/internal/calendar"
	"zftrend/internal/export"
	"zftrend/internal/indicator"
	"zftrend/internal/model"
	"zftrend/internal/pipeline"
	"zftrend/internal/provider"
	"zftrend/internal/screen"
	"zftrend/internal/store"
)

// priceLookback is how many bars the daily screen loads per stock; it
// covers the longest window (252 highs, 200+20 slope) with slack.
const priceLookback = 300

// indexLookbackDays is the calendar span fetched to cover a 20-session
// market return.
const indexLookbackDays = 45

// ErrEmptyUniverse means no stock list has been loaded yet.
var ErrEmptyUniverse = errors.New("stock universe is empty, run init first")

// ErrIndexMissing means the market index has no close for the target
// date, which poisons every relative-strength comparison.
var ErrIndexMissing = errors.New("market index missing for target date")

// Runner executes the operator-facing runs.
type Runner struct {
	provider provider.Provider
	store    *store.Store
	pipe     *pipeline.Pipeline
	engine   *screen.Engine
	exporter export.Exporter
	workers  int
	log      zerolog.Logger
}

// NewRunner assembles a Runner; workers <= 0 means 4.
func NewRunner(p provider.Provider, s *store.Store, pipe *pipeline.Pipeline,
	engine *screen.Engine, exp export.Exporter, workers int, log zerolog.Logger) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		provider: p,
		store:    s,
		pipe:     pipe,
		engine:   engine,
		exporter: exp,
		workers:  workers,
		log:      log.With().Str("component", "task").Logger(),
	}
}

// Daily ingests the target date, screens every stored stock and exports
// the results. A non-trading target is skipped unless force is set.
// Individual stock failures go into the report; the run errors only on
// systemic problems such as an unreachable store or a missing market
// index close for the date.
func (r *Runner) Daily(ctx context.Context, target time.Time, force bool) (*model.RunReport, error) {
	target = model.Day(target)
	report := &model.RunReport{Date: target, Matches: map[string]int{}}

	if !force && !calendar.IsTradingDay(target) {
		report.Skipped = true
		report.Reason = "not a trading day"
		r.log.Info().Str("date", target.Format(model.DateFormat)).Msg("daily run skipped, market closed")
		return report, nil
	}

	stocks, err := r.store.ListStocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	if len(stocks) == 0 {
		return nil, ErrEmptyUniverse
	}

	ids := make([]string, len(stocks))
	for i, s := range stocks {
		ids[i] = s.StockID
	}
	summary, err := r.pipe.IngestDay(ctx, target, ids)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", target.Format(model.DateFormat), err)
	}
	report.Ingest = summary

	if _, err := r.pipe.IngestMarketIndex(ctx, target.AddDate(0, 0, -indexLookbackDays), target); err != nil {
		return nil, err
	}
	indexBars, err := r.store.MarketIndexSeries(ctx, target, 21)
	if err != nil {
		return nil, err
	}
	if len(indexBars) == 0 || !model.SameDay(indexBars[len(indexBars)-1].Date, target) {
		return nil, fmt.Errorf("%w: %s", ErrIndexMissing, target.Format(model.DateFormat))
	}
	marketReturn20, used, err := indicator.IndexReturn(indexBars, 20)
	if err != nil {
		return nil, fmt.Errorf("market return: %w", err)
	}
	if used < 20 {
		r.log.Warn().Int("lookback", used).Msg("market return computed over a shortened lookback")
	}

	byType := r.screenAll(ctx, stocks, target, marketReturn20, report)

	for _, filterType := range []string{model.FilterTrend, model.FilterThreeLine} {
		results := byType[filterType]
		if err := r.store.SaveScreeningResults(ctx, target, filterType, results); err != nil {
			return nil, fmt.Errorf("save %s results: %w", filterType, err)
		}
		if err := r.exporter.ExportScreening(target, filterType, results); err != nil {
			return nil, fmt.Errorf("export %s results: %w", filterType, err)
		}
		report.Matches[filterType] = len(results)
	}

	r.log.Info().Str("date", target.Format(model.DateFormat)).
		Int("screened", report.StocksScreened).Int("failed", report.StocksFailed).
		Int("trend", report.Matches[model.FilterTrend]).
		Int("three_line", report.Matches[model.FilterThreeLine]).
		Msg("daily run finished")
	return report, nil
}

// screenAll evaluates every stock through the worker pool. Stocks whose
// latest bar is older than the target simply did not trade and are
// passed over; stocks that error are recorded as failures.
func (r *Runner) screenAll(ctx context.Context, stocks []model.StockInfo, target time.Time,
	marketReturn20 float64, report *model.RunReport) map[string][]model.ScreeningResult {

	byType := map[string][]model.ScreeningResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.workers)

	for _, stock := range stocks {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(stock model.StockInfo) {
			defer wg.Done()
			defer func() { <-sem }()

			results, err := r.screenOne(ctx, stock, target, marketReturn20)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, errNotTraded) {
					report.StocksFailed++
					report.Failures = append(report.Failures, model.StockFailure{StockID: stock.StockID, Reason: err.Error()})
					r.log.Warn().Str("stock_id", stock.StockID).Err(err).Msg("screen failed")
				}
				return
			}
			report.StocksScreened++
			for _, res := range results {
				byType[res.FilterType] = append(byType[res.FilterType], res)
			}
		}(stock)
	}
	wg.Wait()

	for _, results := range byType {
		sort.Slice(results, func(i, j int) bool { return results[i].StockID < results[j].StockID })
	}
	return byType
}

var errNotTraded = errors.New("no bar for target date")

func (r *Runner) screenOne(ctx context.Context, stock model.StockInfo, target time.Time,
	marketReturn20 float64) ([]model.ScreeningResult, error) {

	bars, err := r.store.PriceSeries(ctx, stock.StockID, target, priceLookback)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 || !model.SameDay(bars[len(bars)-1].Date, target) {
		return nil, errNotTraded
	}
	series, err := indicator.NewSeries(bars)
	if err != nil {
		return nil, err
	}
	return r.engine.Evaluate(stock, series.Snapshot(), marketReturn20), nil
}

// Monthly refreshes the stock universe from the provider and exports it.
func (r *Runner) Monthly(ctx context.Context) (int, error) {
	stocks, err := r.provider.StockList(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch stock list: %w", err)
	}
	if err := r.store.UpsertStockInfo(ctx, stocks); err != nil {
		return 0, fmt.Errorf("persist stock list: %w", err)
	}
	if err := r.exporter.ExportStockList(stocks); err != nil {
		return 0, fmt.Errorf("export stock list: %w", err)
	}
	r.log.Info().Int("stocks", len(stocks)).Msg("stock universe refreshed")
	return len(stocks), nil
}

// Init bootstraps an empty deployment: universe, historyDays of bars
// and the market index.
func (r *Runner) Init(ctx context.Context, asOf time.Time, historyDays int) (model.IngestSummary, error) {
	if _, err := r.Monthly(ctx); err != nil {
		return model.IngestSummary{}, err
	}
	return r.Backfill(ctx, asOf, historyDays)
}

// Backfill loads historyDays of bars and index closes ending at asOf
// for every stored stock.
func (r *Runner) Backfill(ctx context.Context, asOf time.Time, historyDays int) (model.IngestSummary, error) {
	if historyDays <= 0 {
		return model.IngestSummary{}, fmt.Errorf("history days %d: must be positive", historyDays)
	}
	stocks, err := r.store.ListStocks(ctx)
	if err != nil {
		return model.IngestSummary{}, fmt.Errorf("load universe: %w", err)
	}
	if len(stocks) == 0 {
		return model.IngestSummary{}, ErrEmptyUniverse
	}
	ids := make([]string, len(stocks))
	for i, s := range stocks {
		ids[i] = s.StockID
	}

	to := model.Day(asOf)
	from := to.AddDate(0, 0, -historyDays)
	r.log.Info().Int("sessions", len(calendar.TradingDaysBetween(from, to))).
		Msg("expected trading sessions in backfill range")
	summary, err := r.pipe.Backfill(ctx, ids, from, to)
	if err != nil {
		return summary, err
	}
	if _, err := r.pipe.IngestMarketIndex(ctx, from, to); err != nil {
		return summary, err
	}
	return summary, nil
}

// HealthCheck is one probe's outcome.
type HealthCheck struct {
	Name   string
	OK     bool
	Detail string
}

// Health probes the store, the exporter target and the provider. The
// provider probe uses a short index fetch to keep quota cost low.
func (r *Runner) Health(ctx context.Context, now time.Time) []HealthCheck {
	checks := make([]HealthCheck, 0, 3)

	probe := func(name string, err error) {
		c := HealthCheck{Name: name, OK: err == nil}
		if err != nil {
			c.Detail = err.Error()
		} else if name == "store" {
			if latest, ok, lerr := r.store.LatestTradeDate(ctx); lerr == nil && ok {
				c.Detail = "latest bar " + latest.Format(model.DateFormat)
			}
		}
		checks = append(checks, c)
	}

	probe("store", r.store.Ping(ctx))
	probe("exporter", r.exporter.Check())
	_, err := r.provider.MarketIndex(ctx, model.Day(now).AddDate(0, 0, -7), model.Day(now))
	probe("provider", err)
	return checks
}
