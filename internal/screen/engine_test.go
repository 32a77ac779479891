package screen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zftrend/internal/indicator"
	"zftrend/internal/model"
)

var testStock = model.StockInfo{StockID: "2330", Name: "台積電", Industry: "半導體業", Market: model.MarketTWSE}

// strongSnap satisfies the trend filter with room to spare.
func strongSnap() indicator.Snapshot {
	return indicator.Snapshot{
		Date:         time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		Close:        120,
		MA50:         model.Some(110),
		MA150:        model.Some(105),
		MA200:        model.Some(100),
		MA200Slope20: model.Some(2.5),
		Return20:     model.Some(0.10),
		High5:        model.Some(119),
		High252:      model.Some(150),
	}
}

// threeLineSnap satisfies the short-ladder filter.
func threeLineSnap() indicator.Snapshot {
	return indicator.Snapshot{
		Date:         time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		Close:        120,
		MA8:          model.Some(118),
		MA21:         model.Some(115),
		MA55:         model.Some(110),
		CloseHigh55:  model.Some(120),
		SecondHigh55: model.Some(117),
	}
}

func TestEvaluate_StrongTrendMatch(t *testing.T) {
	e := NewEngine(0)
	results := e.Evaluate(testStock, strongSnap(), 0.02)

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, model.FilterTrend, r.FilterType)
	assert.True(t, r.Strong)
	assert.False(t, r.NewHigh)
	assert.Equal(t, "2330", r.StockID)
	assert.Equal(t, 120.0, r.TodayPrice)
	assert.Equal(t, 0.10, r.Return20.Float64)
}

func TestEvaluate_StrongTrendEveryConditionRequired(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*indicator.Snapshot)
	}{
		{"close below MA50", func(s *indicator.Snapshot) { s.Close = 109 }},
		{"MA50 below MA150", func(s *indicator.Snapshot) { s.MA50 = model.Some(104) }},
		{"MA150 below MA200", func(s *indicator.Snapshot) { s.MA150 = model.Some(99) }},
		{"flat long average", func(s *indicator.Snapshot) { s.MA200Slope20 = model.Some(0) }},
		{"lagging the market", func(s *indicator.Snapshot) { s.Return20 = model.Some(0.01) }},
		{"missing MA200 history", func(s *indicator.Snapshot) { s.MA200 = model.Value{} }},
		{"missing return history", func(s *indicator.Snapshot) { s.Return20 = model.Value{} }},
	}
	e := NewEngine(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := strongSnap()
			tc.mutate(&snap)
			assert.Empty(t, e.Evaluate(testStock, snap, 0.02))
		})
	}
}

func TestEvaluate_NewHighThresholdBoundary(t *testing.T) {
	e := NewEngine(0.99)

	snap := indicator.Snapshot{
		Close:    148,
		Return20: model.Some(0.05),
		High5:    model.Some(148.5),
		High252:  model.Some(150),
	}
	results := e.Evaluate(testStock, snap, 0.02)
	require.Len(t, results, 1, "ratio 0.99 meets the threshold exactly")
	assert.True(t, results[0].NewHigh)
	assert.False(t, results[0].Strong)

	snap.High5 = model.Some(148.4)
	assert.Empty(t, e.Evaluate(testStock, snap, 0.02))

	snap.High5 = model.Some(148.5)
	assert.Empty(t, e.Evaluate(testStock, snap, 0.05), "matching the market is not beating it")

	snap.High252 = model.Value{}
	assert.Empty(t, e.Evaluate(testStock, snap, 0.02), "a year-high window short of history never matches")
}

func TestEvaluate_ThreeLineMatchReportsGap(t *testing.T) {
	e := NewEngine(0)
	results := e.Evaluate(testStock, threeLineSnap(), 0)

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, model.FilterThreeLine, r.FilterType)
	require.True(t, r.GapRatio.Valid)
	assert.InDelta(t, 120.0/117.0-1, r.GapRatio.Float64, 1e-9)
	assert.Equal(t, 117.0, r.SecondHigh55.Float64)
}

func TestEvaluate_ThreeLineEveryConditionRequired(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*indicator.Snapshot)
	}{
		{"close below MA8", func(s *indicator.Snapshot) { s.Close = 117.5 }},
		{"MA8 below MA21", func(s *indicator.Snapshot) { s.MA8 = model.Some(114) }},
		{"MA21 below MA55", func(s *indicator.Snapshot) { s.MA21 = model.Some(109) }},
		{"not the closing high", func(s *indicator.Snapshot) { s.CloseHigh55 = model.Some(121) }},
		{"flat window has no second level", func(s *indicator.Snapshot) { s.SecondHigh55 = model.Value{} }},
		{"second level above close", func(s *indicator.Snapshot) { s.SecondHigh55 = model.Some(125) }},
	}
	e := NewEngine(0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := threeLineSnap()
			tc.mutate(&snap)
			assert.Empty(t, e.Evaluate(testStock, snap, 0))
		})
	}
}

func TestEvaluate_BothFiltersCanMatchTogether(t *testing.T) {
	bars := risingBars(300)
	series, err := indicator.NewSeries(bars)
	require.NoError(t, err)

	e := NewEngine(0)
	results := e.Evaluate(testStock, series.Snapshot(), 0.01)

	require.Len(t, results, 2)
	assert.Equal(t, model.FilterTrend, results[0].FilterType)
	assert.True(t, results[0].Strong)
	assert.True(t, results[0].NewHigh, "a fresh high sits at the year high")
	assert.Equal(t, model.FilterThreeLine, results[1].FilterType)
}

func TestEvaluate_DecliningStockMatchesNothing(t *testing.T) {
	bars := risingBars(300)
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i].Close, bars[j].Close = bars[j].Close, bars[i].Close
		bars[i].High, bars[j].High = bars[j].High, bars[i].High
	}
	series, err := indicator.NewSeries(bars)
	require.NoError(t, err)

	e := NewEngine(0)
	assert.Empty(t, e.Evaluate(testStock, series.Snapshot(), 0.01))
}

// risingBars builds a steadily appreciating stock.
func risingBars(n int) []model.DailyBar {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.DailyBar, n)
	for i := range bars {
		c := 100 + float64(i)*0.8
		bars[i] = model.DailyBar{
			StockID: "2330", Date: start.AddDate(0, 0, i),
			Open: c - 0.5, High: c + 0.5, Low: c - 1, Close: c, Volume: 10000,
		}
	}
	return bars
}
