// Package calendar answers "did the Taiwan market trade on this date".
// Weekends plus an exchange holiday table; the table must be extended
// each year when TWSE publishes the schedule.
package calendar

import (
	"time"

	"github.com/rs/zerolog/log"

	"zftrend/internal/model"
)

// holidaysLastYear is the last year covered by the holiday table.
const holidaysLastYear = 2026

var holidays = map[string]bool{
	// 2024
	"2024-01-01": true, "2024-02-08": true, "2024-02-09": true,
	"2024-02-12": true, "2024-02-13": true, "2024-02-14": true,
	"2024-02-28": true, "2024-04-04": true, "2024-04-05": true,
	"2024-05-01": true, "2024-06-10": true, "2024-09-17": true,
	"2024-10-10": true,
	// 2025
	"2025-01-01": true, "2025-01-23": true, "2025-01-24": true,
	"2025-01-27": true, "2025-01-28": true, "2025-01-29": true,
	"2025-01-30": true, "2025-01-31": true, "2025-02-28": true,
	"2025-04-03": true, "2025-04-04": true, "2025-05-01": true,
	"2025-05-30": true, "2025-05-31": true, "2025-09-29": true,
	"2025-10-06": true, "2025-10-10": true, "2025-10-24": true,
	"2025-12-25": true,
	// 2026
	"2026-01-01": true, "2026-01-02": true, "2026-02-16": true,
	"2026-02-17": true, "2026-02-18": true, "2026-02-19": true,
	"2026-02-20": true, "2026-02-27": true, "2026-02-28": true,
	"2026-04-03": true, "2026-04-04": true, "2026-04-05": true,
	"2026-04-06": true, "2026-05-01": true, "2026-06-19": true,
	"2026-09-25": true, "2026-10-09": true, "2026-10-10": true,
}

// IsTradingDay reports whether the market trades on the given date.
func IsTradingDay(d time.Time) bool {
	if d.Year() > holidaysLastYear {
		log.Warn().Int("year", d.Year()).
			Msgf("holiday table only covers up to %d, weekend check only", holidaysLastYear)
	}
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !holidays[model.Day(d).Format(model.DateFormat)]
}

// PreviousTradingDay returns the closest trading day strictly before d,
// looking back at most maxLookback calendar days. ok is false when none
// is found in that range.
func PreviousTradingDay(d time.Time, maxLookback int) (time.Time, bool) {
	cur := model.Day(d).AddDate(0, 0, -1)
	for i := 0; i < maxLookback; i++ {
		if IsTradingDay(cur) {
			return cur, true
		}
		cur = cur.AddDate(0, 0, -1)
	}
	return time.Time{}, false
}

// LatestTradingDay returns d itself when it is a trading day, otherwise
// the closest earlier trading day. Falls back to d when the lookback is
// exhausted, letting the provider report the real gap.
func LatestTradingDay(d time.Time) time.Time {
	d = model.Day(d)
	if IsTradingDay(d) {
		return d
	}
	if prev, ok := PreviousTradingDay(d, 10); ok {
		return prev
	}
	return d
}

// TradingDaysBetween lists trading days in [from, to] ascending.
func TradingDaysBetween(from, to time.Time) []time.Time {
	var days []time.Time
	for cur := model.Day(from); !cur.After(model.Day(to)); cur = cur.AddDate(0, 0, 1) {
		if IsTradingDay(cur) {
			days = append(days, cur)
		}
	}
	return days
}
