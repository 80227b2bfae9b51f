package pipeline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"fsec/internal"
	"fsec/internal/util"
)

var nullTokens = map[string]struct{}{
	"": {}, "-": {}, "--": {}, "n/a": {}, "na": {}, "null": {}, "none": {}, "nan": {},
}

// coerceFrame casts every column the schema types in place. Cells that do not
// cast become nil and are counted as warnings.
func coerceFrame(frame *internal.Frame, schema internal.Schema, diags Diagnostics) {
	for c, name := range frame.Columns {
		typ, ok := schema.Type(name)
		if !ok {
			continue
		}
		coord := isCoordinateColumn(name)
		for _, row := range frame.Rows {
			if c >= len(row) {
				continue
			}
			v, ok := castCell(row[c], typ, coord)
			if !ok {
				diags.Addf(internal.SeverityWarning, "column %s: value not coercible to %s", name, typ)
			}
			row[c] = v
		}
	}
}

func castCell(v any, typ internal.ColumnType, coord bool) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case float64:
		return castFloat(x, typ)
	case int64:
		return castFloat(float64(x), typ)
	case time.Time:
		if typ == internal.TypeDateTime {
			return x, true
		}
		if typ == internal.TypeString {
			return x.Format(time.RFC3339), true
		}
		return nil, false
	case string:
		return castString(x, typ, coord)
	}
	return nil, false
}

func castString(s string, typ internal.ColumnType, coord bool) (any, bool) {
	s = util.CleanCell(s)
	if _, ok := nullTokens[strings.ToLower(s)]; ok {
		return nil, true
	}
	switch typ {
	case internal.TypeString:
		return s, true
	case internal.TypeFloat:
		parse := util.ParseNumber
		if coord {
			parse = util.ParseCoordinate
		}
		if f, ok := parse(s); ok {
			return f, true
		}
	case internal.TypeInteger:
		if f, ok := util.ParseNumber(s); ok {
			return castFloat(f, typ)
		}
	case internal.TypeDateTime:
		if t, ok := util.ParseDate(s); ok {
			return t, true
		}
	}
	return nil, false
}

func castFloat(f float64, typ internal.ColumnType) (any, bool) {
	switch typ {
	case internal.TypeFloat:
		return f, true
	case internal.TypeInteger:
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
			return nil, false
		}
		return int64(f), true
	case internal.TypeString:
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return nil, false
}

func isCoordinateColumn(name string) bool {
	return strings.HasSuffix(name, "lat") || strings.HasSuffix(name, "lon")
}
