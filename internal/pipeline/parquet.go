package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"fsec/internal"
	"fsec/internal/util"
)

// ParquetSink writes one snappy-compressed parquet file per source file into
// Dir. Datetimes are stored as RFC 3339 text.
type ParquetSink struct {
	Dir string
}

func (s ParquetSink) WriteRecords(ctx context.Context, set internal.RecordSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := &bytes.Buffer{}
	if err := writeParquet(buf, set); err != nil {
		return fmt.Errorf("parquet %s: %w", set.Source, err)
	}
	return util.WriteFileAtomic(outputPath(s.Dir, set.Source, ".parquet"), func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	})
}

func writeParquet(buf *bytes.Buffer, set internal.RecordSet) error {
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(buildParquetSchema(set.Frame.Columns, set.Schema), pfw, 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range set.Frame.Rows {
		rec := make(map[string]any, len(set.Frame.Columns))
		for i, col := range set.Frame.Columns {
			rec[col] = parquetCell(row[i])
		}
		blob, err := json.Marshal(rec)
		if err != nil {
			_ = pw.WriteStop()
			return err
		}
		if err := pw.Write(string(blob)); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return err
	}
	return pfw.Close()
}

func buildParquetSchema(columns []string, schema internal.Schema) string {
	fields := make([]map[string]string, 0, len(columns))
	for _, name := range columns {
		typ, _ := schema.Type(name)
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", name, parquetPhysicalType(typ)),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func parquetPhysicalType(t internal.ColumnType) string {
	switch t {
	case internal.TypeFloat:
		return "type=DOUBLE"
	case internal.TypeInteger:
		return "type=INT64"
	default:
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	}
}

func parquetCell(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	return v
}
