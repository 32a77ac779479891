package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"zftrend/internal/model"
	"zftrend/internal/ratelimit"
)

// TWSE is the exchange's own report API. It has no stock list or batched
// daily endpoint, so it serves as the per-stock fallback: STOCK_DAY hands
// out one stock's bars for one calendar month, FMTQIK one month of index
// closes. Dates come back in ROC-era form ("114/08/29") and numbers with
// comma grouping.
type TWSE struct {
	http       *resty.Client
	budget     *ratelimit.Budget
	waitBudget bool
	retry      retrier
	log        zerolog.Logger
}

// NewTWSE creates a TWSE client sharing the given request budget.
func NewTWSE(baseURL string, budget *ratelimit.Budget, opts Options, log zerolog.Logger) *TWSE {
	opts.defaults()
	return &TWSE{
		http:       resty.New().SetBaseURL(baseURL).SetTimeout(opts.Timeout),
		budget:     budget,
		waitBudget: opts.WaitForBudget,
		retry:      newRetrier(opts.MaxRetries, opts.RetryBase),
		log:        log.With().Str("provider", "twse").Logger(),
	}
}

func (c *TWSE) Name() string { return "twse" }

func (c *TWSE) StockList(ctx context.Context) ([]model.StockInfo, error) {
	return nil, fmt.Errorf("twse stock list: %w", ErrUnsupported)
}

func (c *TWSE) DailyBars(ctx context.Context, day time.Time) ([]model.DailyBar, error) {
	return nil, fmt.Errorf("twse daily bars: %w", ErrUnsupported)
}

// twseReport is the common shape of the exchangeReport endpoints. A
// stat other than "OK" means no data for the request, not a failure.
type twseReport struct {
	Stat string     `json:"stat"`
	Data [][]string `json:"data"`
}

func (c *TWSE) get(ctx context.Context, op, path string, params map[string]string) (*twseReport, error) {
	var report twseReport
	err := c.retry.do(ctx, func() error {
		if err := acquireBudget(ctx, c.budget, c.waitBudget, op); err != nil {
			return err
		}
		resp, err := c.http.R().SetContext(ctx).SetQueryParams(params).Get(path)
		if err != nil {
			return &TransientError{Op: op, Err: err}
		}
		if resp.StatusCode() != http.StatusOK {
			return classifyStatus(op, resp.StatusCode(), string(resp.Body()))
		}
		report = twseReport{}
		if err := json.Unmarshal(resp.Body(), &report); err != nil {
			return &PermanentError{Op: op, Msg: fmt.Sprintf("decode report: %v", err)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// STOCK_DAY row layout: date, volume, turnover, open, high, low, close,
// change, transactions.
func (c *TWSE) StockMonth(ctx context.Context, stockID string, year int, month time.Month) ([]model.DailyBar, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	report, err := c.get(ctx, "twse stock month", "/exchangeReport/STOCK_DAY", map[string]string{
		"response": "json",
		"date":     first.Format("20060102"),
		"stockNo":  stockID,
	})
	if err != nil {
		return nil, err
	}
	if report.Stat != "OK" {
		return nil, nil
	}

	bars := make([]model.DailyBar, 0, len(report.Data))
	dropped := 0
	for _, row := range report.Data {
		if len(row) < 7 {
			dropped++
			continue
		}
		d, derr := parseROCDate(row[0])
		volume, verr := parseCommaInt(row[1])
		open, oerr := parseCommaFloat(row[3])
		high, herr := parseCommaFloat(row[4])
		low, lerr := parseCommaFloat(row[5])
		cls, cerr := parseCommaFloat(row[6])
		if derr != nil || verr != nil || oerr != nil || herr != nil || lerr != nil || cerr != nil ||
			open <= 0 || high <= 0 || low <= 0 || cls <= 0 || volume <= 0 {
			dropped++
			continue
		}
		bars = append(bars, model.DailyBar{
			StockID: stockID,
			Date:    d,
			Open:    open,
			High:    high,
			Low:     low,
			Close:   cls,
			Volume:  volume,
		})
	}
	if dropped > 0 {
		c.log.Warn().Str("stock_id", stockID).Int("dropped", dropped).Msg("bars dropped for data quality")
	}
	return bars, nil
}

// FMTQIK row layout: date, volume, turnover, transactions, index, change.
// One call covers one calendar month, so the range is walked month by month.
func (c *TWSE) MarketIndex(ctx context.Context, from, to time.Time) ([]model.MarketIndexBar, error) {
	from, to = model.Day(from), model.Day(to)
	var bars []model.MarketIndexBar
	for cursor := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC); !cursor.After(to); cursor = cursor.AddDate(0, 1, 0) {
		report, err := c.get(ctx, "twse market index", "/exchangeReport/FMTQIK", map[string]string{
			"response": "json",
			"date":     cursor.Format("20060102"),
		})
		if err != nil {
			return nil, err
		}
		if report.Stat != "OK" {
			continue
		}
		for _, row := range report.Data {
			if len(row) < 5 {
				continue
			}
			d, derr := parseROCDate(row[0])
			value, verr := parseCommaFloat(row[4])
			if derr != nil || verr != nil || value <= 0 {
				continue
			}
			if d.Before(from) || d.After(to) {
				continue
			}
			bars = append(bars, model.MarketIndexBar{Date: d, Value: value})
		}
	}
	return bars, nil
}

// parseROCDate converts "114/08/29" to 2025-08-29. The ROC calendar
// offsets years by 1911.
func parseROCDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("roc date %q: want yyy/mm/dd", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("roc date %q: %w", s, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("roc date %q: %w", s, err)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("roc date %q: %w", s, err)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("roc date %q: out of range", s)
	}
	return time.Date(year+1911, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// parseCommaFloat parses "1,234.56". "--" marks a missing value.
func parseCommaFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "--" {
		return 0, fmt.Errorf("missing value")
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func parseCommaInt(s string) (int64, error) {
	f, err := parseCommaFloat(s)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
