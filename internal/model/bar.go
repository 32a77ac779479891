package model

import "time"

// DateFormat is the canonical wire and storage format for trade dates.
const DateFormat = "2006-01-02"

// DailyBar is one stock's OHLCV record for one trading day.
// Unique per (StockID, Date); re-ingestion replaces prior values.
type DailyBar struct {
	StockID string
	Date    time.Time
	Open    float64
	High    float64
	Low     float64
	Close   float64
	Volume  int64
}

// MarketIndexBar is the market index close for one trading day.
type MarketIndexBar struct {
	Date  time.Time
	Value float64
}

// Day truncates t to a calendar date in UTC. All trade-date comparisons
// in the system go through this so bars fetched in different timezones
// collapse onto the same key.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
