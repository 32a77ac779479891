package model

import "time"

// Filter types produced by the screening engine.
const (
	FilterTrend     = "trend"      // strong-trend / new-high union
	FilterThreeLine = "three_line" // three-line alignment
)

// ScreeningResult is one passing (stock, filter) row for a run. Each run's
// rows are a complete snapshot for (FilterDate, FilterType) and replace any
// earlier rows for the same key.
type ScreeningResult struct {
	FilterDate time.Time
	FilterType string
	StockID    string
	StockName  string
	Industry   string

	// Trend filter fields.
	Return20 Value
	Strong   bool
	NewHigh  bool

	// Three-line filter fields.
	TodayPrice   float64
	SecondHigh55 Value
	GapRatio     Value
}
