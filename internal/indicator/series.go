// Package indicator computes moving averages, returns and trailing
// extremes over a stock's daily bars. Every window demands a full
// complement of bars; a short history yields an invalid value rather
// than a number computed over fewer sessions than the window names.
package indicator

import (
	"errors"
	"fmt"
	"time"

	"zftrend/internal/model"
)

// ErrInsufficientHistory is returned when a window has fewer bars than
// its length requires.
var ErrInsufficientHistory = errors.New("insufficient history for window")

// Series is an ascending run of one stock's daily bars with prefix sums
// for O(1) moving averages.
type Series struct {
	bars []model.DailyBar
	cum  []float64 // cum[i+1] = closes[0] + ... + closes[i]
}

// NewSeries wraps bars, which must be strictly ascending by date.
func NewSeries(bars []model.DailyBar) (*Series, error) {
	if len(bars) == 0 {
		return nil, errors.New("empty series")
	}
	cum := make([]float64, len(bars)+1)
	for i, b := range bars {
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return nil, fmt.Errorf("bars out of order at %s", b.Date.Format(model.DateFormat))
		}
		cum[i+1] = cum[i] + b.Close
	}
	return &Series{bars: bars, cum: cum}, nil
}

func (s *Series) Len() int             { return len(s.bars) }
func (s *Series) Last() model.DailyBar { return s.bars[len(s.bars)-1] }

// SMA returns the simple moving average of closes over the trailing
// window ending at the last bar.
func (s *Series) SMA(window int) (float64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("window %d: must be positive", window)
	}
	n := len(s.bars)
	if n < window {
		return 0, fmt.Errorf("sma %d with %d bars: %w", window, n, ErrInsufficientHistory)
	}
	return (s.cum[n] - s.cum[n-window]) / float64(window), nil
}

// SMAAgo returns the same moving average as of lag bars before the last.
func (s *Series) SMAAgo(window, lag int) (float64, error) {
	n := len(s.bars) - lag
	if lag < 0 || n < window {
		return 0, fmt.Errorf("sma %d lag %d with %d bars: %w", window, lag, len(s.bars), ErrInsufficientHistory)
	}
	return (s.cum[n] - s.cum[n-window]) / float64(window), nil
}

// Return reports the fractional price change over the last n sessions,
// requiring n+1 closes.
func (s *Series) Return(n int) (float64, error) {
	if len(s.bars) < n+1 {
		return 0, fmt.Errorf("return %d with %d bars: %w", n, len(s.bars), ErrInsufficientHistory)
	}
	base := s.bars[len(s.bars)-1-n].Close
	if base == 0 {
		return 0, errors.New("zero base close")
	}
	return s.bars[len(s.bars)-1].Close/base - 1, nil
}

// HighestHigh returns the maximum high over the trailing window.
func (s *Series) HighestHigh(window int) (float64, error) {
	n := len(s.bars)
	if n < window || window <= 0 {
		return 0, fmt.Errorf("highest high %d with %d bars: %w", window, n, ErrInsufficientHistory)
	}
	max := s.bars[n-window].High
	for _, b := range s.bars[n-window+1:] {
		if b.High > max {
			max = b.High
		}
	}
	return max, nil
}

// HighestClose returns the maximum close over the trailing window.
func (s *Series) HighestClose(window int) (float64, error) {
	n := len(s.bars)
	if n < window || window <= 0 {
		return 0, fmt.Errorf("highest close %d with %d bars: %w", window, n, ErrInsufficientHistory)
	}
	max := s.bars[n-window].Close
	for _, b := range s.bars[n-window+1:] {
		if b.Close > max {
			max = b.Close
		}
	}
	return max, nil
}

// SecondHighestClose returns the second highest distinct close over the
// trailing window. A flat window where every close equals the maximum
// has no second level and reports ErrInsufficientHistory.
func (s *Series) SecondHighestClose(window int) (float64, error) {
	top, err := s.HighestClose(window)
	if err != nil {
		return 0, err
	}
	n := len(s.bars)
	second, found := 0.0, false
	for _, b := range s.bars[n-window:] {
		if b.Close < top && (!found || b.Close > second) {
			second, found = b.Close, true
		}
	}
	if !found {
		return 0, fmt.Errorf("second highest close %d: all closes equal: %w", window, ErrInsufficientHistory)
	}
	return second, nil
}

// Snapshot carries every input the screening rules consume, computed as
// of the last bar. Fields whose windows lack history are invalid.
type Snapshot struct {
	Date  time.Time
	Close float64

	MA8   model.Value
	MA21  model.Value
	MA50  model.Value
	MA55  model.Value
	MA150 model.Value
	MA200 model.Value

	// MA200Slope20 is the change in the 200-session average over the
	// last 20 sessions.
	MA200Slope20 model.Value

	Return20 model.Value

	High5        model.Value // highest high, 5 sessions
	High252      model.Value // highest high, 252 sessions
	CloseHigh55  model.Value // highest close, 55 sessions
	SecondHigh55 model.Value // second highest distinct close, 55 sessions
}

// Snapshot evaluates all standard windows at the last bar.
func (s *Series) Snapshot() Snapshot {
	last := s.Last()
	snap := Snapshot{Date: last.Date, Close: last.Close}

	snap.MA8 = value(s.SMA(8))
	snap.MA21 = value(s.SMA(21))
	snap.MA50 = value(s.SMA(50))
	snap.MA55 = value(s.SMA(55))
	snap.MA150 = value(s.SMA(150))
	snap.MA200 = value(s.SMA(200))

	if now, err := s.SMA(200); err == nil {
		if then, err := s.SMAAgo(200, 20); err == nil {
			snap.MA200Slope20 = model.Some(now - then)
		}
	}

	snap.Return20 = value(s.Return(20))
	snap.High5 = value(s.HighestHigh(5))
	snap.High252 = value(s.HighestHigh(252))
	snap.CloseHigh55 = value(s.HighestClose(55))
	snap.SecondHigh55 = value(s.SecondHighestClose(55))
	return snap
}

func value(f float64, err error) model.Value {
	if err != nil {
		return model.Value{}
	}
	return model.Some(f)
}

// IndexReturn computes the market index return over the last n sessions
// of bars. When history is shorter it degrades to the longest available
// lookback and reports the one actually used; fewer than two closes is
// an error.
func IndexReturn(bars []model.MarketIndexBar, n int) (ret float64, used int, err error) {
	if len(bars) < 2 {
		return 0, 0, fmt.Errorf("index return with %d closes: %w", len(bars), ErrInsufficientHistory)
	}
	used = n
	if len(bars) < n+1 {
		used = len(bars) - 1
	}
	base := bars[len(bars)-1-used].Value
	if base == 0 {
		return 0, 0, errors.New("zero base index value")
	}
	return bars[len(bars)-1].Value/base - 1, used, nil
}
