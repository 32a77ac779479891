package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zftrend/internal/model"
)

// flatBars builds n ascending bars with every price set to close.
func flatBars(n int, close float64) []model.DailyBar {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.DailyBar, n)
	for i := range bars {
		bars[i] = model.DailyBar{
			StockID: "2330", Date: start.AddDate(0, 0, i),
			Open: close, High: close, Low: close, Close: close, Volume: 1000,
		}
	}
	return bars
}

func TestNewSeries_RejectsOutOfOrderBars(t *testing.T) {
	bars := flatBars(3, 100)
	bars[2].Date = bars[1].Date
	_, err := NewSeries(bars)
	assert.Error(t, err)

	_, err = NewSeries(nil)
	assert.Error(t, err)
}

func TestSMA_ExactWindowBoundary(t *testing.T) {
	s, err := NewSeries(flatBars(200, 50))
	require.NoError(t, err)

	ma, err := s.SMA(200)
	require.NoError(t, err, "exactly 200 bars satisfies a 200-session window")
	assert.Equal(t, 50.0, ma)

	_, err = s.SMA(201)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestSMA_TrailingWindowValues(t *testing.T) {
	bars := flatBars(10, 0)
	for i := range bars {
		bars[i].Close = float64(i + 1) // closes 1..10
	}
	s, err := NewSeries(bars)
	require.NoError(t, err)

	ma, err := s.SMA(4)
	require.NoError(t, err)
	assert.Equal(t, 8.5, ma, "mean of 7,8,9,10")

	ago, err := s.SMAAgo(4, 2)
	require.NoError(t, err)
	assert.Equal(t, 6.5, ago, "mean of 5,6,7,8")
}

func TestReturn_NeedsNPlusOneBars(t *testing.T) {
	bars := flatBars(21, 0)
	for i := range bars {
		bars[i].Close = 100 + float64(i) // 100..120
	}
	s, err := NewSeries(bars)
	require.NoError(t, err)

	r, err := s.Return(20)
	require.NoError(t, err)
	assert.InDelta(t, 0.20, r, 1e-9)

	_, err = s.Return(21)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestSecondHighestClose_DistinctLevels(t *testing.T) {
	bars := flatBars(5, 0)
	closes := []float64{100, 104, 106, 106, 103}
	for i := range bars {
		bars[i].Close = closes[i]
	}
	s, err := NewSeries(bars)
	require.NoError(t, err)

	second, err := s.SecondHighestClose(5)
	require.NoError(t, err)
	assert.Equal(t, 104.0, second, "the duplicated top does not count as the second level")
}

func TestSecondHighestClose_FlatWindowHasNoSecondLevel(t *testing.T) {
	s, err := NewSeries(flatBars(55, 100))
	require.NoError(t, err)

	_, err = s.SecondHighestClose(55)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestSnapshot_ShortHistoryInvalidatesLongWindowsOnly(t *testing.T) {
	bars := flatBars(60, 0)
	for i := range bars {
		bars[i].Close = 100 + float64(i)*0.5
		bars[i].High = bars[i].Close + 1
	}
	s, err := NewSeries(bars)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.True(t, snap.MA8.Valid)
	assert.True(t, snap.MA55.Valid)
	assert.True(t, snap.Return20.Valid)
	assert.True(t, snap.High5.Valid)
	assert.True(t, snap.SecondHigh55.Valid)
	assert.False(t, snap.MA150.Valid)
	assert.False(t, snap.MA200.Valid)
	assert.False(t, snap.MA200Slope20.Valid)
	assert.False(t, snap.High252.Valid)
}

func TestSnapshot_MA200SlopeNeedsTheLaggedWindowToo(t *testing.T) {
	bars := flatBars(219, 0)
	for i := range bars {
		bars[i].Close = 100 + float64(i)*0.1
	}
	s, err := NewSeries(bars)
	require.NoError(t, err)
	assert.True(t, s.Snapshot().MA200.Valid)
	assert.False(t, s.Snapshot().MA200Slope20.Valid, "219 bars cannot place a 200-session average 20 sessions back")

	bars = flatBars(220, 0)
	for i := range bars {
		bars[i].Close = 100 + float64(i)*0.1
	}
	s, err = NewSeries(bars)
	require.NoError(t, err)
	snap := s.Snapshot()
	require.True(t, snap.MA200Slope20.Valid)
	assert.InDelta(t, 2.0, snap.MA200Slope20.Float64, 1e-9, "average advances 0.1 per bar over 20 bars")
}

func TestIndexReturn_DegradesToAvailableHistory(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var bars []model.MarketIndexBar
	for i := 0; i < 11; i++ {
		bars = append(bars, model.MarketIndexBar{Date: start.AddDate(0, 0, i), Value: 20000 + float64(i)*100})
	}

	r, used, err := IndexReturn(bars, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, used)
	assert.InDelta(t, 0.05, r, 1e-9)

	r, used, err = IndexReturn(bars[:6], 20)
	require.NoError(t, err)
	assert.Equal(t, 5, used, "short history shrinks the lookback")
	assert.InDelta(t, 0.025, r, 1e-9)

	_, _, err = IndexReturn(bars[:1], 20)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}
