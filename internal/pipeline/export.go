package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"fsec/internal"
)

// Sink receives each parsed file's canonical records.
type Sink interface {
	WriteRecords(ctx context.Context, set internal.RecordSet) error
}

// XLSXSink writes one workbook per source file into Dir.
type XLSXSink struct {
	Dir string
}

func (s XLSXSink) WriteRecords(ctx context.Context, set internal.RecordSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ExportFrameToXLSX(set.Frame, outputPath(s.Dir, set.Source, ".xlsx"))
}

// ExportFrameToXLSX writes a header row of column names followed by every row.
// Nil cells are left blank and dates are written as dates.
func ExportFrameToXLSX(frame internal.Frame, path string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range frame.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return err
	}
	for i, row := range frame.Rows {
		r := i + 2
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
			if _, ok := v.(time.Time); ok {
				_ = f.SetCellStyle(sheet, cell, cell, dateStyle)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return f.SaveAs(path)
}

// outputPath places a file named after source's base name in dir.
func outputPath(dir, source, ext string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		base = "schedule"
	}
	return filepath.Join(dir, base+ext)
}
