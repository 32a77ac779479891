package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTWSE(t *testing.T, handler http.HandlerFunc) *TWSE {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewTWSE(srv.URL, nil, Options{MaxRetries: 1}, zerolog.Nop())
	c.retry.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestParseROCDate(t *testing.T) {
	d, err := parseROCDate("114/08/29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = parseROCDate("2025-08-29")
	assert.Error(t, err)
	_, err = parseROCDate("114/13/01")
	assert.Error(t, err)
}

func TestParseCommaFloat(t *testing.T) {
	v, err := parseCommaFloat("1,234,567.89")
	require.NoError(t, err)
	assert.Equal(t, 1234567.89, v)

	_, err = parseCommaFloat("--")
	assert.Error(t, err, "double dash marks a missing value")
	_, err = parseCommaFloat("")
	assert.Error(t, err)
}

func TestTWSEStockMonth_ParsesReportRows(t *testing.T) {
	c := newTestTWSE(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchangeReport/STOCK_DAY", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "20250801", q.Get("date"))
		assert.Equal(t, "2330", q.Get("stockNo"))
		w.Write([]byte(`{"stat":"OK","data":[
			["114/08/01","25,331,128","28,385,207,240","1,120.00","1,130.00","1,115.00","1,125.00","+10.00","35,203"],
			["114/08/04","18,002,334","20,102,998,110","1,125.00","1,128.00","--","--","0.00","28,004"],
			["114/08/05","21,440,871","24,300,151,002","1,130.00","1,140.00","1,126.00","1,138.00","+13.00","31,550"]
		]}`))
	})

	bars, err := c.StockMonth(context.Background(), "2330", 2025, time.August)
	require.NoError(t, err)
	require.Len(t, bars, 2, "row with missing prices is dropped")
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 1125.0, bars[0].Close)
	assert.Equal(t, int64(25331128), bars[0].Volume)
	assert.Equal(t, 1138.0, bars[1].Close)
}

func TestTWSEStockMonth_NoDataStatIsEmptyNotError(t *testing.T) {
	c := newTestTWSE(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stat":"很抱歉，沒有符合條件的資料!"}`))
	})

	bars, err := c.StockMonth(context.Background(), "9999", 2025, time.January)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestTWSEMarketIndex_WalksMonthsAndClipsRange(t *testing.T) {
	var dates []string
	c := newTestTWSE(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchangeReport/FMTQIK", r.URL.Path)
		dates = append(dates, r.URL.Query().Get("date"))
		switch r.URL.Query().Get("date") {
		case "20250701":
			w.Write([]byte(`{"stat":"OK","data":[
				["114/07/30","5,100,221,000","410,221,998,021","2,410,338","23,350.11","+120.55"],
				["114/07/31","4,988,102,335","399,102,556,810","2,377,901","23,410.87","+60.76"]
			]}`))
		case "20250801":
			w.Write([]byte(`{"stat":"OK","data":[
				["114/08/01","5,210,441,202","421,338,190,455","2,460,112","23,390.45","-20.42"],
				["114/08/29","5,002,118,930","402,876,221,004","2,398,240","24,050.33","+95.10"]
			]}`))
		}
	})

	bars, err := c.MarketIndex(context.Background(),
		time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"20250701", "20250801"}, dates, "one call per calendar month")
	require.Len(t, bars, 2, "rows outside the requested range are clipped")
	assert.Equal(t, 23410.87, bars[0].Value)
	assert.Equal(t, 23390.45, bars[1].Value)
}

func TestTWSE_UnsupportedOperations(t *testing.T) {
	c := NewTWSE("http://unused", nil, Options{}, zerolog.Nop())

	_, err := c.StockList(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = c.DailyBars(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrUnsupported)
}
