package pipeline

import (
	"math"
	"strconv"
	"strings"

	"fsec/internal"
	"fsec/internal/util"
)

const (
	colAPI14 = "api14"
	colAPI10 = "api10"
)

// validateFrame applies the North American coordinate sign convention,
// range-checks coordinates and normalizes API well numbers.
func validateFrame(frame *internal.Frame, diags Diagnostics) {
	for c, name := range frame.Columns {
		if !isCoordinateColumn(name) {
			continue
		}
		limit := 180.0
		if strings.HasSuffix(name, "lat") {
			limit = 90
		}
		for _, row := range frame.Rows {
			f, ok := row[c].(float64)
			if !ok {
				continue
			}
			f = northAmericaSign(f)
			if math.Abs(f) > limit {
				diags.Addf(internal.SeverityWarning, "column %s: coordinate out of range", name)
				row[c] = nil
				continue
			}
			row[c] = f
		}
	}
	validateAPI(frame, diags)
}

// northAmericaSign forces latitudes (|v| < 50) north and longitudes west.
func northAmericaSign(f float64) float64 {
	if math.Abs(f) < 50 {
		return math.Abs(f)
	}
	return -math.Abs(f)
}

func validateAPI(frame *internal.Frame, diags Diagnostics) {
	i14, i10 := frame.Index(colAPI14), frame.Index(colAPI10)
	if i14 < 0 && i10 < 0 {
		return
	}
	if i14 < 0 {
		i14 = addColumn(frame, colAPI14)
	}
	if i10 < 0 {
		i10 = addColumn(frame, colAPI10)
	}

	for _, row := range frame.Rows {
		api14, ok14 := normalizeAPI(row[i14], 14)
		if row[i14] != nil && !ok14 {
			diags.Addf(internal.SeverityWarning, "column %s: invalid api number", colAPI14)
		}
		api10, ok10 := normalizeAPI(row[i10], 10)
		if row[i10] != nil && !ok10 {
			diags.Addf(internal.SeverityWarning, "column %s: invalid api number", colAPI10)
		}
		if !ok14 && ok10 {
			api14, ok14 = api10+"0000", true
		}
		if !ok10 && ok14 {
			api10, ok10 = api14[:10], true
		}
		row[i14] = nilIfEmpty(api14, ok14)
		row[i10] = nilIfEmpty(api10, ok10)
	}
}

// normalizeAPI reduces v to its digits and fits them to width, padding
// missing sidetrack and event codes with zeros.
func normalizeAPI(v any, width int) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		s = x
		if strings.ContainsAny(s, "eE") {
			if f, ok := util.ParseNumber(s); ok {
				s = strconv.FormatFloat(f, 'f', 0, 64)
			}
		}
	case float64:
		s = strconv.FormatFloat(x, 'f', 0, 64)
	case int64:
		s = strconv.FormatInt(x, 10)
	default:
		return "", false
	}

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	// Numeric cells lose the leading zero of single digit state codes.
	if len(d) == 9 || len(d) == 11 || len(d) == 13 {
		d = "0" + d
	}
	if len(d) < 10 {
		return "", false
	}
	if len(d) < width {
		d += strings.Repeat("0", width-len(d))
	}
	return d[:width], true
}

func addColumn(frame *internal.Frame, name string) int {
	frame.Columns = append(frame.Columns, name)
	for i := range frame.Rows {
		frame.Rows[i] = append(frame.Rows[i], nil)
	}
	return len(frame.Columns) - 1
}

func nilIfEmpty(s string, ok bool) any {
	if !ok || s == "" {
		return nil
	}
	return s
}
