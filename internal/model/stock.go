package model

// Market types as reported by the exchange list.
const (
	MarketTWSE = "twse" // listed
	MarketTPEX = "tpex" // over-the-counter
)

// StockInfo is reference data for one listed stock, refreshed monthly.
type StockInfo struct {
	StockID  string
	Name     string
	Industry string
	Market   string
}

// Value is an optional float64, in the database/sql null style. Indicator
// outputs use it to distinguish "insufficient history" from a real zero.
type Value struct {
	Float64 float64
	Valid   bool
}

// Some returns a valid Value.
func Some(f float64) Value { return Value{Float64: f, Valid: true} }
