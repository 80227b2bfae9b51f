package sheet

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fsec/internal"
)

func mkXLSX(sheets ...[][]any) []byte {
	f := excelize.NewFile()
	for i, rows := range sheets {
		name := f.GetSheetName(0)
		if i > 0 {
			name = "Sheet" + string(rune('1'+i))
			_, _ = f.NewSheet(name)
		}
		for r, row := range rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				_ = f.SetCellValue(name, cell, v)
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestReadGridXLSX(t *testing.T) {
	blob := mkXLSX(
		[][]any{},
		[][]any{
			{"Acme 3 Month Frac Schedule"},
			{},
			{"Well Name", "API14", "Frac Start"},
			{"Smith 1H", "42329000010000", "1/10/2024"},
		},
	)
	path := writeFile(t, "acme.xlsx", blob)

	grid, err := NewReader(nil).ReadGrid(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, grid, 4)
	assert.Equal(t, []string{"Acme 3 Month Frac Schedule"}, grid[0])
	assert.Empty(t, grid[1])
	assert.Equal(t, []string{"Well Name", "API14", "Frac Start"}, grid[2])
}

func TestReadGridCSV(t *testing.T) {
	content := "\xef\xbb\xbfWell Name,API14,Notes\nSmith 1H,42329000010000,\"pad \"\"A\"\"\"\nJones 2H,42329000020000\n,,\n"
	path := writeFile(t, "sched.csv", []byte(content))

	grid, err := NewReader(nil).ReadGrid(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, internal.Grid{
		{"Well Name", "API14", "Notes"},
		{"Smith 1H", "42329000010000", `pad "A"`},
		{"Jones 2H", "42329000020000"},
	}, grid)
}

func TestReadGridHTMLPicksLargestTable(t *testing.T) {
	html := `<html><body>
<table><tr><td>Contact</td><td>ops@example.com</td></tr></table>
<table>
  <tr><th>Well   Name</th><th>API14</th></tr>
  <tr><td>Smith 1H</td><td>42329000010000</td></tr>
  <tr><td>Jones 2H</td><td>42329000020000</td></tr>
</table></body></html>`

	grid, err := NewReader(nil).Decode(".html", []byte(html))
	require.NoError(t, err)
	assert.Equal(t, internal.Grid{
		{"Well Name", "API14"},
		{"Smith 1H", "42329000010000"},
		{"Jones 2H", "42329000020000"},
	}, grid)
}

func mkEmail(htmlBody string, attachName string, attach []byte) []byte {
	var b strings.Builder
	b.WriteString("From: ops@example.com\r\nTo: data@example.com\r\nSubject: March frac schedule\r\nMIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n\r\n")
	b.WriteString("--BOUNDARY\r\nContent-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(htmlBody + "\r\n")
	if attachName != "" {
		b.WriteString("--BOUNDARY\r\nContent-Type: application/octet-stream\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + attachName + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString(attach) + "\r\n")
	}
	b.WriteString("--BOUNDARY--\r\n")
	return []byte(b.String())
}

func TestReadGridEmailPrefersAttachment(t *testing.T) {
	body := "<table><tr><td>Body</td><td>Table</td></tr></table>"
	csv := []byte("Well Name,API14\nSmith 1H,42329000010000\n")

	grid, err := NewReader(nil).Decode(".eml", mkEmail(body, "schedule.csv", csv))
	require.NoError(t, err)
	assert.Equal(t, internal.Grid{{"Well Name", "API14"}, {"Smith 1H", "42329000010000"}}, grid)

	grid, err = NewReader(nil).Decode(".eml", mkEmail(body, "", nil))
	require.NoError(t, err)
	assert.Equal(t, internal.Grid{{"Body", "Table"}}, grid)
}

func TestReadGridErrors(t *testing.T) {
	r := NewReader(nil)

	_, err := r.Decode(".docx", []byte("x"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = r.Decode(".html", []byte("<p>no tables here</p>"))
	assert.True(t, errors.Is(err, ErrNoTable))

	_, err = r.ReadGrid(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ReadGrid(ctx, "whatever.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitPDFLine(t *testing.T) {
	assert.Equal(t, []string{"Smith 1H", "42329000010000", "1/10/2024"}, splitPDFLine("  Smith 1H   42329000010000\t1/10/2024 "))
}

func TestSupported(t *testing.T) {
	if !Supported("/in/Acme.XLSX") || Supported("/in/notes.txt") {
		t.Fatal("extension check wrong")
	}
}
