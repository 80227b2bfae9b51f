package util

import (
	"strings"
	"time"
)

// TwoDigitYearPivot: two-digit years landing more than this many years in the
// future are moved to the previous century.
var TwoDigitYearPivot = 20

var (
	fourDigitYearLayouts = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"2006/01/02",
		"2006.01.02",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"1/2/2006 3:04:05 PM",
		"1/2/2006 3:04 PM",
		"1/2/2006",
		"01/02/2006",
		"1-2-2006",
		"01-02-2006",
		"1.2.2006",
		"01.02.2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 Jan 2006",
		"2-Jan-2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06", "2-Jan-06",
	}
)

// excelEpoch is day zero of the 1900 date system as excelize and Excel count it.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate accepts the date spellings operators use in their sheets,
// including raw spreadsheet serial numbers.
func ParseDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	if !strings.ContainsAny(s, "/-:") {
		if serial, ok := ParseNumber(s); ok && serial > 0 && serial < 2958466 {
			days := int(serial)
			frac := serial - float64(days)
			t := excelEpoch.AddDate(0, 0, days).Add(time.Duration(frac * float64(24*time.Hour)))
			return t.Round(time.Second), true
		}
	}
	return time.Time{}, false
}
