package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"zftrend/internal/model"
)

func testDate() time.Time {
	return time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
}

func TestExportScreening_WritesSheetPerRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.xlsx")
	w := NewWorkbook(path, zerolog.Nop())

	require.NoError(t, w.ExportScreening(testDate(), model.FilterTrend, []model.ScreeningResult{
		{StockID: "2330", StockName: "台積電", Industry: "半導體業", TodayPrice: 1128,
			Return20: model.Some(0.08), Strong: true},
	}))
	require.NoError(t, w.ExportScreening(testDate(), model.FilterThreeLine, []model.ScreeningResult{
		{StockID: "3008", StockName: "大立光", Industry: "光電業", TodayPrice: 2300,
			SecondHigh55: model.Some(2280), GapRatio: model.Some(0.0087)},
	}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"trend_20260828", "three_line_20260828"}, f.GetSheetList())

	rows, err := f.GetRows("trend_20260828")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "stock_id", rows[0][0])
	assert.Equal(t, "2330", rows[1][0])

	rows, err = f.GetRows("three_line_20260828")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "gap_ratio", rows[0][5])
}

func TestExportScreening_ReExportReplacesSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.xlsx")
	w := NewWorkbook(path, zerolog.Nop())

	results := []model.ScreeningResult{
		{StockID: "2330", StockName: "台積電", TodayPrice: 1128, Strong: true},
		{StockID: "2454", StockName: "聯發科", TodayPrice: 1350, NewHigh: true},
	}
	require.NoError(t, w.ExportScreening(testDate(), model.FilterTrend, results))
	require.NoError(t, w.ExportScreening(testDate(), model.FilterTrend, results[:1]))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Len(t, f.GetSheetList(), 1, "second export replaces, never appends")
	rows, err := f.GetRows("trend_20260828")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "header plus the single surviving row")
}

func TestExportStockList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.xlsx")
	w := NewWorkbook(path, zerolog.Nop())

	require.NoError(t, w.ExportStockList([]model.StockInfo{
		{StockID: "2330", Name: "台積電", Industry: "半導體業", Market: model.MarketTWSE},
		{StockID: "6488", Name: "環球晶", Industry: "半導體業", Market: model.MarketTPEX},
	}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("stock_list")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "tpex", rows[2][3])
}

func TestCheck_CreatesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.xlsx")
	require.NoError(t, NewWorkbook(path, zerolog.Nop()).Check())
	assert.FileExists(t, path)
}
