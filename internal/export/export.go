// Package export writes screening runs and the stock universe to an
// Excel workbook, one sheet per run. Re-exporting a run replaces its
// sheet instead of appending a duplicate.
package export

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"zftrend/internal/model"
)

// Exporter publishes run outputs somewhere a human reads them.
type Exporter interface {
	ExportScreening(date time.Time, filterType string, results []model.ScreeningResult) error
	ExportStockList(stocks []model.StockInfo) error
	Check() error
}

// Workbook is the Excel-backed Exporter.
type Workbook struct {
	path string
	log  zerolog.Logger
}

// NewWorkbook creates an Exporter writing to the xlsx file at path.
func NewWorkbook(path string, log zerolog.Logger) *Workbook {
	return &Workbook{path: path, log: log.With().Str("component", "export").Logger()}
}

func (w *Workbook) open() (*excelize.File, error) {
	if _, err := os.Stat(w.path); err == nil {
		f, err := excelize.OpenFile(w.path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		return f, nil
	}
	return excelize.NewFile(), nil
}

// ExportScreening writes one run's results onto a sheet named after the
// filter type and date, replacing any previous sheet of that name.
func (w *Workbook) ExportScreening(date time.Time, filterType string, results []model.ScreeningResult) error {
	sheet := fmt.Sprintf("%s_%s", filterType, model.Day(date).Format("20060102"))

	var header []string
	var toRow func(r model.ScreeningResult) []any
	switch filterType {
	case model.FilterThreeLine:
		header = []string{"stock_id", "name", "industry", "price", "second_high_55", "gap_ratio"}
		toRow = func(r model.ScreeningResult) []any {
			return []any{r.StockID, r.StockName, r.Industry, r.TodayPrice, cell(r.SecondHigh55), cell(r.GapRatio)}
		}
	default:
		header = []string{"stock_id", "name", "industry", "price", "return_20", "strong", "new_high"}
		toRow = func(r model.ScreeningResult) []any {
			return []any{r.StockID, r.StockName, r.Industry, r.TodayPrice, cell(r.Return20), r.Strong, r.NewHigh}
		}
	}

	rows := make([][]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, toRow(r))
	}
	if err := w.writeSheet(sheet, header, rows); err != nil {
		return err
	}
	w.log.Info().Str("sheet", sheet).Int("rows", len(results)).Msg("screening exported")
	return nil
}

// ExportStockList refreshes the stock_list sheet.
func (w *Workbook) ExportStockList(stocks []model.StockInfo) error {
	rows := make([][]any, 0, len(stocks))
	for _, s := range stocks {
		rows = append(rows, []any{s.StockID, s.Name, s.Industry, s.Market})
	}
	if err := w.writeSheet("stock_list", []string{"stock_id", "name", "industry", "market"}, rows); err != nil {
		return err
	}
	w.log.Info().Int("rows", len(stocks)).Msg("stock list exported")
	return nil
}

// Check verifies the workbook path is writable.
func (w *Workbook) Check() error {
	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(w.path)
}

func (w *Workbook) writeSheet(sheet string, header []string, rows [][]any) error {
	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(sheet); idx >= 0 {
		if err := f.DeleteSheet(sheet); err != nil {
			return fmt.Errorf("replace sheet %s: %w", sheet, err)
		}
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}

	for col, h := range header {
		name, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, name, h); err != nil {
			return err
		}
	}
	for i, row := range rows {
		for col, v := range row {
			name, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, name, v); err != nil {
				return err
			}
		}
	}

	// Drop the default sheet from freshly created workbooks.
	if sheet != "Sheet1" {
		if idx, _ := f.GetSheetIndex("Sheet1"); idx >= 0 {
			f.DeleteSheet("Sheet1")
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func cell(v model.Value) any {
	if !v.Valid {
		return ""
	}
	return v.Float64
}

// Noop discards all exports; used when no workbook path is configured.
type Noop struct{}

func (Noop) ExportScreening(time.Time, string, []model.ScreeningResult) error { return nil }
func (Noop) ExportStockList([]model.StockInfo) error                          { return nil }
func (Noop) Check() error                                                     { return nil }
