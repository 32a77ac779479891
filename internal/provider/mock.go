package provider

import (
	"context"
	"time"

	"zftrend/internal/model"
)

// Mock returns controllable fixed data for development and testing. A nil
// function field answers with the corresponding zero-value slice.
type Mock struct {
	Label         string
	StockListFn   func(ctx context.Context) ([]model.StockInfo, error)
	DailyBarsFn   func(ctx context.Context, day time.Time) ([]model.DailyBar, error)
	StockMonthFn  func(ctx context.Context, stockID string, year int, month time.Month) ([]model.DailyBar, error)
	MarketIndexFn func(ctx context.Context, from, to time.Time) ([]model.MarketIndexBar, error)
}

func (m *Mock) Name() string {
	if m.Label != "" {
		return m.Label
	}
	return "mock"
}

func (m *Mock) StockList(ctx context.Context) ([]model.StockInfo, error) {
	if m.StockListFn != nil {
		return m.StockListFn(ctx)
	}
	return nil, nil
}

func (m *Mock) DailyBars(ctx context.Context, day time.Time) ([]model.DailyBar, error) {
	if m.DailyBarsFn != nil {
		return m.DailyBarsFn(ctx, day)
	}
	return nil, nil
}

func (m *Mock) StockMonth(ctx context.Context, stockID string, year int, month time.Month) ([]model.DailyBar, error) {
	if m.StockMonthFn != nil {
		return m.StockMonthFn(ctx, stockID, year, month)
	}
	return nil, nil
}

func (m *Mock) MarketIndex(ctx context.Context, from, to time.Time) ([]model.MarketIndexBar, error) {
	if m.MarketIndexFn != nil {
		return m.MarketIndexFn(ctx, from, to)
	}
	return nil, nil
}
