package model

import "time"

// StockFailure records one stock's fetch or compute failure within a run.
type StockFailure struct {
	StockID string
	Reason  string
}

// IngestSummary aggregates one ingestion pass. Per-stock failures are
// collected here rather than aborting the run.
type IngestSummary struct {
	From        time.Time
	To          time.Time
	Requested   int
	Succeeded   int
	Failed      int
	BarsWritten int
	Failures    []StockFailure
}

// RunReport is the user-visible outcome of a daily run.
type RunReport struct {
	Date    time.Time
	Skipped bool
	Reason  string

	Ingest IngestSummary

	StocksScreened int
	StocksFailed   int
	Matches        map[string]int
	Failures       []StockFailure
}
