package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reThousandsComma = regexp.MustCompile(`^[+-]?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	reNumeric        = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	reCoordinate     = regexp.MustCompile(`(?i)^([NSEW])?\s*([+-]?[\d.,]+)\s*°?\s*([NSEW])?$`)
)

var currencyReplacer = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", " ", "", " ", "")

// ParseNumber reads spreadsheet-formatted numbers: thousand separators,
// currency symbols, decimal commas and accounting negatives.
func ParseNumber(s string) (float64, bool) {
	s = CleanCell(s)
	if s == "" {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = currencyReplacer.Replace(s)
	s = normalizeNumericToken(s)
	if !reNumeric.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// ParseCoordinate accepts a plain number or one carrying a compass
// direction. South and west directions negate the value.
func ParseCoordinate(s string) (float64, bool) {
	if v, ok := ParseNumber(s); ok {
		return v, true
	}
	m := reCoordinate.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || (m[1] == "" && m[3] == "") {
		return 0, false
	}
	v, ok := ParseNumber(m[2])
	if !ok {
		return 0, false
	}
	dir := strings.ToUpper(m[1] + m[3])
	if strings.ContainsAny(dir, "SW") {
		v = -math.Abs(v)
	}
	return v, true
}

// CleanCell strips the artifacts exported sheets carry around values:
// formula prefixes and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}
	return strings.TrimSpace(strings.Trim(s, `"'`))
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if reThousandsComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
