// Package screen applies the rule-based stock filters to computed
// indicator snapshots. Every rule is a conjunction over snapshot fields;
// a field invalidated by short history fails its rule outright.
package screen

import (
	"zftrend/internal/indicator"
	"zftrend/internal/model"
)

// DefaultNewHighThreshold is the minimum ratio of the recent high to the
// 252-session high for the new-high condition.
const DefaultNewHighThreshold = 0.99

// Engine evaluates the screening rules for one stock at a time.
type Engine struct {
	NewHighThreshold float64
}

// NewEngine creates an Engine; threshold <= 0 falls back to the default.
func NewEngine(newHighThreshold float64) *Engine {
	if newHighThreshold <= 0 {
		newHighThreshold = DefaultNewHighThreshold
	}
	return &Engine{NewHighThreshold: newHighThreshold}
}

// Evaluate runs both filters against one stock's snapshot and returns a
// result row per filter that matched. marketReturn20 is the index return
// over the same 20-session lookback, computed once per run.
func (e *Engine) Evaluate(info model.StockInfo, snap indicator.Snapshot, marketReturn20 float64) []model.ScreeningResult {
	var results []model.ScreeningResult

	strong := e.strongTrend(snap, marketReturn20)
	newHigh := e.nearYearHigh(snap, marketReturn20)
	if strong || newHigh {
		results = append(results, model.ScreeningResult{
			FilterDate: snap.Date,
			FilterType: model.FilterTrend,
			StockID:    info.StockID,
			StockName:  info.Name,
			Industry:   info.Industry,
			Return20:   snap.Return20,
			Strong:     strong,
			NewHigh:    newHigh,
			TodayPrice: snap.Close,
		})
	}

	if gap, ok := e.threeLine(snap); ok {
		results = append(results, model.ScreeningResult{
			FilterDate:   snap.Date,
			FilterType:   model.FilterThreeLine,
			StockID:      info.StockID,
			StockName:    info.Name,
			Industry:     info.Industry,
			TodayPrice:   snap.Close,
			SecondHigh55: snap.SecondHigh55,
			GapRatio:     model.Some(gap),
		})
	}

	return results
}

// strongTrend requires the full long-horizon stack: price above rising
// long averages, and momentum beating the market.
func (e *Engine) strongTrend(s indicator.Snapshot, marketReturn20 float64) bool {
	if !valid(s.MA50, s.MA150, s.MA200, s.MA200Slope20, s.Return20) {
		return false
	}
	return s.Close > s.MA50.Float64 &&
		s.MA50.Float64 > s.MA150.Float64 &&
		s.MA150.Float64 > s.MA200.Float64 &&
		s.MA200Slope20.Float64 > 0 &&
		s.Return20.Float64 > marketReturn20
}

// nearYearHigh requires the recent high to sit within threshold of the
// 252-session high, with momentum beating the market.
func (e *Engine) nearYearHigh(s indicator.Snapshot, marketReturn20 float64) bool {
	if !valid(s.High5, s.High252, s.Return20) || s.High252.Float64 <= 0 {
		return false
	}
	return s.High5.Float64/s.High252.Float64 >= e.NewHighThreshold &&
		s.Return20.Float64 > marketReturn20
}

// threeLine requires the short-average ladder with today's close at the
// 55-session closing high, and reports the gap above the second highest
// distinct close. A flat 55-session window or a non-positive gap is a
// non-match.
func (e *Engine) threeLine(s indicator.Snapshot) (float64, bool) {
	if !valid(s.MA8, s.MA21, s.MA55, s.CloseHigh55, s.SecondHigh55) {
		return 0, false
	}
	ladder := s.Close > s.MA8.Float64 &&
		s.MA8.Float64 > s.MA21.Float64 &&
		s.MA21.Float64 > s.MA55.Float64 &&
		s.Close == s.CloseHigh55.Float64
	if !ladder || s.SecondHigh55.Float64 <= 0 {
		return 0, false
	}
	gap := s.Close/s.SecondHigh55.Float64 - 1
	if gap <= 0 {
		return 0, false
	}
	return gap, true
}

func valid(vs ...model.Value) bool {
	for _, v := range vs {
		if !v.Valid {
			return false
		}
	}
	return true
}
