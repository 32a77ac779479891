package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"zftrend/internal/model"
	"zftrend/internal/ratelimit"
)

// Options tunes a provider client.
type Options struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	WaitForBudget bool // block on a full budget instead of failing fast
}

func (o *Options) defaults() {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryBase == 0 {
		o.RetryBase = 2 * time.Second
	}
}

// FinMind is the primary data source: batched full-universe daily bars,
// the stock list with industry classification, and the TAIEX total return
// index. JSON envelope: {status, msg, data}.
type FinMind struct {
	token      string
	http       *resty.Client
	budget     *ratelimit.Budget
	waitBudget bool
	retry      retrier
	log        zerolog.Logger
}

// NewFinMind creates a FinMind client sharing the given request budget.
func NewFinMind(baseURL, token string, budget *ratelimit.Budget, opts Options, log zerolog.Logger) *FinMind {
	opts.defaults()
	return &FinMind{
		token:      token,
		http:       resty.New().SetBaseURL(baseURL).SetTimeout(opts.Timeout),
		budget:     budget,
		waitBudget: opts.WaitForBudget,
		retry:      newRetrier(opts.MaxRetries, opts.RetryBase),
		log:        log.With().Str("provider", "finmind").Logger(),
	}
}

func (c *FinMind) Name() string { return "finmind" }

type finmindEnvelope struct {
	Status int             `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

func (c *FinMind) get(ctx context.Context, op string, params map[string]string, out any) error {
	return c.retry.do(ctx, func() error {
		if err := acquireBudget(ctx, c.budget, c.waitBudget, op); err != nil {
			return err
		}
		req := c.http.R().SetContext(ctx).SetQueryParams(params)
		if c.token != "" {
			req.SetQueryParam("token", c.token)
		}
		resp, err := req.Get("/api/v4/data")
		if err != nil {
			return &TransientError{Op: op, Err: err}
		}
		if resp.StatusCode() != http.StatusOK {
			return classifyStatus(op, resp.StatusCode(), string(resp.Body()))
		}
		var env finmindEnvelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return &PermanentError{Op: op, Msg: fmt.Sprintf("decode envelope: %v", err)}
		}
		switch {
		case env.Status == http.StatusOK:
		case env.Status == http.StatusTooManyRequests:
			return &TransientError{Op: op, StatusCode: env.Status}
		default:
			return &PermanentError{Op: op, StatusCode: env.Status, Msg: env.Msg}
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &PermanentError{Op: op, Msg: fmt.Sprintf("decode data: %v", err)}
		}
		return nil
	})
}

type finmindStockRow struct {
	StockID  string `json:"stock_id"`
	Name     string `json:"stock_name"`
	Industry string `json:"industry_category"`
	Type     string `json:"type"`
}

var (
	stockIDPattern = regexp.MustCompile(`^\d{4,6}$`)
	etfIDPattern   = regexp.MustCompile(`^0\d{3,}`)
)

// nonStockIndustries mark index, aggregate and warrant rows in the list.
var nonStockIndustries = map[string]bool{
	"Index": true,
	"大盤":    true,
	"所有證券":  true,
}

func (c *FinMind) StockList(ctx context.Context) ([]model.StockInfo, error) {
	var rows []finmindStockRow
	if err := c.get(ctx, "finmind stock list", map[string]string{
		"dataset": "TaiwanStockInfo",
	}, &rows); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	stocks := make([]model.StockInfo, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		switch {
		case r.Type != model.MarketTWSE && r.Type != model.MarketTPEX,
			!stockIDPattern.MatchString(r.StockID),
			etfIDPattern.MatchString(r.StockID),
			nonStockIndustries[r.Industry],
			seen[r.StockID]:
			dropped++
			continue
		}
		seen[r.StockID] = true
		stocks = append(stocks, model.StockInfo{
			StockID:  r.StockID,
			Name:     r.Name,
			Industry: r.Industry,
			Market:   r.Type,
		})
	}
	c.log.Info().Int("stocks", len(stocks)).Int("filtered", dropped).Msg("stock list fetched")
	return stocks, nil
}

type finmindPriceRow struct {
	StockID string  `json:"stock_id"`
	Date    string  `json:"date"`
	Open    float64 `json:"open"`
	High    float64 `json:"max"`
	Low     float64 `json:"min"`
	Close   float64 `json:"close"`
	Volume  float64 `json:"Trading_Volume"`
}

func (c *FinMind) DailyBars(ctx context.Context, day time.Time) ([]model.DailyBar, error) {
	d := model.Day(day).Format(model.DateFormat)
	var rows []finmindPriceRow
	if err := c.get(ctx, "finmind daily bars", map[string]string{
		"dataset":    "TaiwanStockPrice",
		"start_date": d,
		"end_date":   d,
	}, &rows); err != nil {
		return nil, err
	}
	return c.toBars(rows), nil
}

func (c *FinMind) StockMonth(ctx context.Context, stockID string, year int, month time.Month) ([]model.DailyBar, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	var rows []finmindPriceRow
	if err := c.get(ctx, "finmind stock month", map[string]string{
		"dataset":    "TaiwanStockPrice",
		"data_id":    stockID,
		"start_date": first.Format(model.DateFormat),
		"end_date":   last.Format(model.DateFormat),
	}, &rows); err != nil {
		return nil, err
	}
	return c.toBars(rows), nil
}

// toBars maps FinMind rows onto canonical bars. Rows with unparsable
// dates or non-positive price/volume fields are dropped with a warning,
// never a failure.
func (c *FinMind) toBars(rows []finmindPriceRow) []model.DailyBar {
	bars := make([]model.DailyBar, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		d, err := time.Parse(model.DateFormat, r.Date)
		if err != nil || r.Open <= 0 || r.High <= 0 || r.Low <= 0 || r.Close <= 0 || r.Volume <= 0 {
			dropped++
			continue
		}
		bars = append(bars, model.DailyBar{
			StockID: r.StockID,
			Date:    model.Day(d),
			Open:    r.Open,
			High:    r.High,
			Low:     r.Low,
			Close:   r.Close,
			Volume:  int64(r.Volume),
		})
	}
	if dropped > 0 {
		c.log.Warn().Int("dropped", dropped).Msg("bars dropped for data quality")
	}
	return bars
}

type finmindIndexRow struct {
	StockID string  `json:"stock_id"`
	Date    string  `json:"date"`
	Price   float64 `json:"price"`
}

func (c *FinMind) MarketIndex(ctx context.Context, from, to time.Time) ([]model.MarketIndexBar, error) {
	var rows []finmindIndexRow
	if err := c.get(ctx, "finmind market index", map[string]string{
		"dataset":    "TaiwanStockTotalReturnIndex",
		"start_date": model.Day(from).Format(model.DateFormat),
		"end_date":   model.Day(to).Format(model.DateFormat),
	}, &rows); err != nil {
		return nil, err
	}
	bars := make([]model.MarketIndexBar, 0, len(rows))
	for _, r := range rows {
		if r.StockID != "TAIEX" || r.Price <= 0 {
			continue
		}
		d, err := time.Parse(model.DateFormat, r.Date)
		if err != nil {
			continue
		}
		bars = append(bars, model.MarketIndexBar{Date: model.Day(d), Value: r.Price})
	}
	return bars, nil
}

// acquireBudget consumes one attempt from the shared budget, blocking or
// failing fast per configuration. Attempts are charged before the HTTP
// call goes out: providers count attempts, not successes.
func acquireBudget(ctx context.Context, b *ratelimit.Budget, wait bool, op string) error {
	if b == nil {
		return nil
	}
	if wait {
		if err := b.Acquire(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
	if err := b.TryAcquire(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
