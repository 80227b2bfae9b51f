// Package sheet reads schedule files of any supported format into a raw grid
// of cell text.
package sheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"fsec/internal"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported sheet format")
	ErrNoTable           = errors.New("no table found")
)

var (
	reSpaces   = regexp.MustCompile(`\s+`)
	rePDFCells = regexp.MustCompile(`\t+|\s{2,}`)
)

// Extensions lists the file extensions ReadGrid understands.
var Extensions = []string{".xlsx", ".xlsm", ".csv", ".html", ".htm", ".pdf", ".eml"}

func Supported(path string) bool {
	return supportedExt(strings.ToLower(filepath.Ext(path)))
}

func supportedExt(ext string) bool {
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

type Reader struct {
	logger *zap.Logger
}

func NewReader(logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{logger: logger}
}

// ReadGrid reads path and returns its first non-empty table.
func (r *Reader) ReadGrid(ctx context.Context, path string) (internal.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	grid, err := r.Decode(filepath.Ext(path), raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	r.logger.Debug("grid read", zap.String("path", path), zap.Int("rows", len(grid)))
	return grid, nil
}

// Decode parses raw content of the format named by ext.
func (r *Reader) Decode(ext string, raw []byte) (internal.Grid, error) {
	var (
		grid internal.Grid
		err  error
	)
	switch strings.ToLower(ext) {
	case ".xlsx", ".xlsm":
		grid, err = parseXLSX(raw)
	case ".csv":
		grid, err = parseCSV(raw)
	case ".html", ".htm":
		grid, err = parseHTML(string(raw))
	case ".pdf":
		grid, err = parsePDF(raw)
	case ".eml":
		grid, err = r.parseEmail(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, ErrNoTable
	}
	return grid, nil
}

func parseXLSX(content []byte) (internal.Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		if grid := trimGrid(rows); len(grid) > 0 {
			return grid, nil
		}
	}
	return nil, nil
}

func parseCSV(content []byte) (internal.Grid, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	cr := csv.NewReader(bytes.NewReader(content))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return trimGrid(rows), nil
}

// parseHTML returns the table with the most rows.
func parseHTML(html string) (internal.Grid, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var best internal.Grid
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var rows [][]string
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})
			rows = append(rows, cells)
		})
		if grid := trimGrid(rows); len(grid) > len(best) {
			best = grid
		}
	})
	return best, nil
}

// parsePDF turns each text line into a row, splitting cells on tabs or runs
// of two or more spaces.
func parsePDF(content []byte) (internal.Grid, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range splitLines(text) {
			rows = append(rows, splitPDFLine(line))
		}
	}
	return trimGrid(rows), nil
}

// parseEmail reads a saved message: the first spreadsheet attachment wins,
// then the largest table in the HTML body.
func (r *Reader) parseEmail(raw []byte) (internal.Grid, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	for _, att := range env.Attachments {
		ext := strings.ToLower(filepath.Ext(strings.TrimSpace(att.FileName)))
		if ext == ".eml" || !supportedExt(ext) {
			continue
		}
		grid, err := r.Decode(ext, att.Content)
		if err != nil {
			r.logger.Warn("attachment unreadable", zap.String("attachment", att.FileName), zap.Error(err))
			continue
		}
		r.logger.Debug("grid from attachment", zap.String("attachment", att.FileName), zap.String("subject", env.GetHeader("Subject")))
		return grid, nil
	}
	if env.HTML != "" {
		return parseHTML(env.HTML)
	}
	return nil, nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitPDFLine(line string) []string {
	parts := rePDFCells.Split(strings.TrimSpace(line), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, normalizeSpaces(p))
	}
	return out
}

func normalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// trimGrid drops trailing empty cells and trailing empty rows. Leading blank
// rows stay; header detection skips them.
func trimGrid(rows [][]string) internal.Grid {
	grid := make(internal.Grid, 0, len(rows))
	for _, row := range rows {
		end := len(row)
		for end > 0 && strings.TrimSpace(row[end-1]) == "" {
			end--
		}
		grid = append(grid, row[:end])
	}
	end := len(grid)
	for end > 0 && len(grid[end-1]) == 0 {
		end--
	}
	return grid[:end]
}
