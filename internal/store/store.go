// Package store persists the stock universe, daily bars, index closes
// and screening results in a SQLite database. All writes are idempotent
// upserts so re-running an ingest for a date never duplicates rows.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"zftrend/internal/model"
)

// Store wraps the SQLite handle. SQLite allows one writer at a time, so
// a mutex serializes write transactions coming off the worker pool.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// Open opens (or creates) the database and runs migrations.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode keeps readers unblocked while an ingest writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stock_info (
			stock_id TEXT PRIMARY KEY,
			name     TEXT NOT NULL,
			industry TEXT,
			market   TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS daily_price (
			stock_id   TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			open       REAL NOT NULL,
			high       REAL NOT NULL,
			low        REAL NOT NULL,
			close      REAL NOT NULL,
			volume     INTEGER NOT NULL,
			PRIMARY KEY (stock_id, trade_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_price_date ON daily_price(trade_date)`,

		`CREATE TABLE IF NOT EXISTS market_index (
			trade_date TEXT PRIMARY KEY,
			value      REAL NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS filter_result (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			filter_date    TEXT NOT NULL,
			filter_type    TEXT NOT NULL,
			stock_id       TEXT NOT NULL,
			stock_name     TEXT,
			industry       TEXT,
			return_20      REAL,
			strong         INTEGER NOT NULL DEFAULT 0,
			new_high       INTEGER NOT NULL DEFAULT 0,
			today_price    REAL NOT NULL,
			second_high_55 REAL,
			gap_ratio      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_filter_result_run ON filter_result(filter_date, filter_type)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// UpsertStockInfo refreshes the stock universe in one transaction.
func (s *Store) UpsertStockInfo(ctx context.Context, stocks []model.StockInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stock_info (stock_id, name, industry, market)
		VALUES (?,?,?,?)
		ON CONFLICT(stock_id) DO UPDATE SET name=excluded.name, industry=excluded.industry, market=excluded.market`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, st := range stocks {
		if _, err := stmt.ExecContext(ctx, st.StockID, st.Name, st.Industry, st.Market); err != nil {
			return fmt.Errorf("upsert stock %s: %w", st.StockID, err)
		}
	}
	return tx.Commit()
}

// UpsertDailyBars writes bars in one transaction and reports how many
// rows were written. Replays of the same bars are no-ops at row level.
func (s *Store) UpsertDailyBars(ctx context.Context, bars []model.DailyBar) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO daily_price (stock_id, trade_date, open, high, low, close, volume)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(stock_id, trade_date) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.StockID, b.Date.Format(model.DateFormat),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return 0, fmt.Errorf("upsert bar %s %s: %w", b.StockID, b.Date.Format(model.DateFormat), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(bars), nil
}

// UpsertMarketIndex writes index closes, keyed by trade date.
func (s *Store) UpsertMarketIndex(ctx context.Context, bars []model.MarketIndexBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO market_index (trade_date, value)
		VALUES (?,?)
		ON CONFLICT(trade_date) DO UPDATE SET value=excluded.value`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Date.Format(model.DateFormat), b.Value); err != nil {
			return fmt.Errorf("upsert index %s: %w", b.Date.Format(model.DateFormat), err)
		}
	}
	return tx.Commit()
}

// ListStocks returns the stored universe ordered by stock id.
func (s *Store) ListStocks(ctx context.Context) ([]model.StockInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stock_id, name, industry, market FROM stock_info ORDER BY stock_id`)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	defer rows.Close()

	var stocks []model.StockInfo
	for rows.Next() {
		var st model.StockInfo
		if err := rows.Scan(&st.StockID, &st.Name, &st.Industry, &st.Market); err != nil {
			return nil, err
		}
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}

// PriceSeries returns up to lookback bars for one stock at or before
// asOf, in ascending date order.
func (s *Store) PriceSeries(ctx context.Context, stockID string, asOf time.Time, lookback int) ([]model.DailyBar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trade_date, open, high, low, close, volume
		FROM daily_price WHERE stock_id = ? AND trade_date <= ?
		ORDER BY trade_date DESC LIMIT ?`,
		stockID, model.Day(asOf).Format(model.DateFormat), lookback)
	if err != nil {
		return nil, fmt.Errorf("price series %s: %w", stockID, err)
	}
	defer rows.Close()

	var bars []model.DailyBar
	for rows.Next() {
		var b model.DailyBar
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.StockID = stockID
		if b.Date, err = time.Parse(model.DateFormat, date); err != nil {
			return nil, fmt.Errorf("price series %s: bad date %q: %w", stockID, date, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseBars(bars)
	return bars, nil
}

// MarketIndexSeries returns up to lookback index closes at or before
// asOf, ascending.
func (s *Store) MarketIndexSeries(ctx context.Context, asOf time.Time, lookback int) ([]model.MarketIndexBar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trade_date, value FROM market_index
		WHERE trade_date <= ? ORDER BY trade_date DESC LIMIT ?`,
		model.Day(asOf).Format(model.DateFormat), lookback)
	if err != nil {
		return nil, fmt.Errorf("market index series: %w", err)
	}
	defer rows.Close()

	var bars []model.MarketIndexBar
	for rows.Next() {
		var b model.MarketIndexBar
		var date string
		if err := rows.Scan(&date, &b.Value); err != nil {
			return nil, err
		}
		if b.Date, err = time.Parse(model.DateFormat, date); err != nil {
			return nil, fmt.Errorf("market index series: bad date %q: %w", date, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// SaveScreeningResults replaces the result set for one date and filter
// type. Saving twice leaves exactly one set, so re-runs stay clean.
func (s *Store) SaveScreeningResults(ctx context.Context, date time.Time, filterType string, results []model.ScreeningResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := model.Day(date).Format(model.DateFormat)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM filter_result WHERE filter_date = ? AND filter_type = ?`, d, filterType); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO filter_result
		(filter_date, filter_type, stock_id, stock_name, industry,
		 return_20, strong, new_high, today_price, second_high_55, gap_ratio)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, d, filterType, r.StockID, r.StockName, r.Industry,
			nullFloat(r.Return20), boolInt(r.Strong), boolInt(r.NewHigh), r.TodayPrice,
			nullFloat(r.SecondHigh55), nullFloat(r.GapRatio)); err != nil {
			return fmt.Errorf("insert result %s: %w", r.StockID, err)
		}
	}
	return tx.Commit()
}

// ScreeningResults loads the stored result set for one date and type.
func (s *Store) ScreeningResults(ctx context.Context, date time.Time, filterType string) ([]model.ScreeningResult, error) {
	d := model.Day(date).Format(model.DateFormat)
	rows, err := s.db.QueryContext(ctx, `SELECT stock_id, stock_name, industry,
			return_20, strong, new_high, today_price, second_high_55, gap_ratio
		FROM filter_result WHERE filter_date = ? AND filter_type = ? ORDER BY stock_id`, d, filterType)
	if err != nil {
		return nil, fmt.Errorf("screening results: %w", err)
	}
	defer rows.Close()

	var results []model.ScreeningResult
	for rows.Next() {
		r := model.ScreeningResult{FilterDate: model.Day(date), FilterType: filterType}
		var ret, second, gap sql.NullFloat64
		var strong, newHigh int
		if err := rows.Scan(&r.StockID, &r.StockName, &r.Industry,
			&ret, &strong, &newHigh, &r.TodayPrice, &second, &gap); err != nil {
			return nil, err
		}
		r.Return20 = fromNull(ret)
		r.Strong = strong != 0
		r.NewHigh = newHigh != 0
		r.SecondHigh55 = fromNull(second)
		r.GapRatio = fromNull(gap)
		results = append(results, r)
	}
	return results, rows.Err()
}

// LatestTradeDate reports the newest bar date in the price table.
func (s *Store) LatestTradeDate(ctx context.Context) (time.Time, bool, error) {
	var date sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(trade_date) FROM daily_price`).Scan(&date)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest trade date: %w", err)
	}
	if !date.Valid {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(model.DateFormat, date.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest trade date: bad date %q: %w", date.String, err)
	}
	return d, true, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}

func reverseBars(bars []model.DailyBar) {
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
}

func nullFloat(v model.Value) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v.Float64, Valid: v.Valid}
}

func fromNull(n sql.NullFloat64) model.Value {
	return model.Value{Float64: n.Float64, Valid: n.Valid}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
