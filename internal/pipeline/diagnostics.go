package pipeline

import (
	"fmt"
	"sort"

	"fsec/internal"
)

// Diagnostics counts messages per severity for one parsed file.
type Diagnostics map[internal.Severity]map[string]int

func NewDiagnostics() Diagnostics {
	return Diagnostics{}
}

func (d Diagnostics) Add(sev internal.Severity, msg string) {
	if d[sev] == nil {
		d[sev] = map[string]int{}
	}
	d[sev][msg]++
}

func (d Diagnostics) Addf(sev internal.Severity, format string, args ...any) {
	d.Add(sev, fmt.Sprintf(format, args...))
}

func (d Diagnostics) Count(sev internal.Severity) int {
	n := 0
	for _, c := range d[sev] {
		n += c
	}
	return n
}

// Status is error if any error was recorded, else warning if any warning
// was, else ok.
func (d Diagnostics) Status() internal.Severity {
	switch {
	case d.Count(internal.SeverityError) > 0:
		return internal.SeverityError
	case d.Count(internal.SeverityWarning) > 0:
		return internal.SeverityWarning
	default:
		return internal.SeverityOK
	}
}

// Messages lists the distinct messages of sev in lexical order.
func (d Diagnostics) Messages(sev internal.Severity) []string {
	out := make([]string, 0, len(d[sev]))
	for m := range d[sev] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
