package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fsec/internal"
)

var testVocab = []string{"operator", "wellname", "api14", "fracstartdate", "fracenddate", "shllat", "shllon"}

func TestDetectHeaderAfterTitleRows(t *testing.T) {
	grid := internal.Grid{
		{"ACME ENERGY 3 MONTH FRAC SCHEDULE"},
		{},
		{"Prepared 1/5/2024", ""},
		{"Well Name", "API14", "Frac Start Date", "Frac End Date", "Notes"},
		{"Smith 1H", "42329000010000", "1/10/2024", "1/20/2024", ""},
	}
	d := NewHeaderDetector(DefaultHeaderConfig(), testVocab, zap.NewNop())

	h, err := d.Detect(grid)
	require.NoError(t, err)
	assert.True(t, h.Found)
	assert.Equal(t, 4, h.DataStart)
	assert.Equal(t, []string{"wellname", "api14", "fracstartdate", "fracenddate", "notes"}, h.Columns)
	assert.Equal(t, "Frac Start Date", h.Original[2])
}

func TestDetectHeaderPositionalFallback(t *testing.T) {
	grid := internal.Grid{
		{"Smith 1H", "42329000010000", "1/10/2024"},
		{"Jones 2H", "42329000020000"},
	}
	d := NewHeaderDetector(DefaultHeaderConfig(), testVocab, zap.NewNop())

	h, err := d.Detect(grid)
	require.NoError(t, err)
	assert.False(t, h.Found)
	assert.Equal(t, 0, h.DataStart)
	assert.Equal(t, []string{"A", "B", "C"}, h.Columns)
}

func TestDetectHeaderSpecificity(t *testing.T) {
	grid := internal.Grid{
		{"Well Name", "Spud"},
		{"Well Name", "Frac Start Date", "SHL Lat"},
	}

	strict := NewHeaderDetector(HeaderConfig{Sensitivity: 2, Specificity: 3}, testVocab, zap.NewNop())
	h, err := strict.Detect(grid)
	require.NoError(t, err)
	assert.Equal(t, 2, h.DataStart)

	loose := NewHeaderDetector(HeaderConfig{Sensitivity: 2, Specificity: 1}, testVocab, zap.NewNop())
	h, err = loose.Detect(grid)
	require.NoError(t, err)
	assert.Equal(t, 1, h.DataStart)
}

func TestDetectHeaderBlankCellsGetLabels(t *testing.T) {
	grid := internal.Grid{
		{"Operator", "", "Well Name"},
		{"Acme", "x", "Smith 1H"},
	}
	d := NewHeaderDetector(DefaultHeaderConfig(), testVocab, zap.NewNop())
	h, err := d.Detect(grid)
	require.NoError(t, err)
	assert.Equal(t, []string{"operator", "B", "wellname"}, h.Columns)
}

func TestDetectHeaderSampledIsDeterministic(t *testing.T) {
	grid := internal.Grid{
		{"Operator", "Well Name", "API14", "Frac Start Date", "Frac End Date", "SHL Lat", "SHL Lon"},
	}
	cfg := HeaderConfig{Sensitivity: 3, Specificity: 1, SampleSize: 4, Seed: 7}

	first, err := NewHeaderDetector(cfg, testVocab, zap.NewNop()).Detect(grid)
	require.NoError(t, err)
	second, err := NewHeaderDetector(cfg, testVocab, zap.NewNop()).Detect(grid)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, first.Found)
}

func TestDiagnosticsStatus(t *testing.T) {
	d := NewDiagnostics()
	assert.Equal(t, internal.SeverityOK, d.Status())

	d.Add(internal.SeverityOK, "header detected")
	assert.Equal(t, internal.SeverityOK, d.Status())

	d.Add(internal.SeverityWarning, "bad date")
	d.Add(internal.SeverityWarning, "bad date")
	assert.Equal(t, internal.SeverityWarning, d.Status())
	assert.Equal(t, 2, d.Count(internal.SeverityWarning))

	d.Addf(internal.SeverityError, "stage %s failed", "header")
	assert.Equal(t, internal.SeverityError, d.Status())
	assert.Equal(t, []string{"stage header failed"}, d.Messages(internal.SeverityError))
}
