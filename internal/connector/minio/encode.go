package minio

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"github.com/xuri/excelize/v2"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/core"
)

// Format is an object file format, also used as the key extension.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatXLSX    Format = "xlsx"
)

// ContentType is the upload content type of a format.
func (f Format) ContentType() string {
	return "application/" + string(f)
}

const sheetName = "Sheet1"

// Encode renders the table in the given format.
func Encode(t *core.Table, f Format) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatParquet:
		data, err = encodeParquet(t)
	case FormatCSV:
		data, err = encodeCSV(t)
	case FormatJSON:
		data, err = encodeJSONLines(t)
	case FormatXLSX:
		data, err = encodeXLSX(t)
	default:
		err = fmt.Errorf("unsupported file type %q", f)
	}
	if err != nil {
		return nil, wrapError(CodeEncodeFailed, false, err)
	}
	return data, nil
}

// text renders a value for the text formats. nil stays nil.
func text(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.UTC().Format(config.InLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return core.String(v)
	}
}

func parquetTag(c core.Column) string {
	var physical string
	switch c.Type {
	case core.TypeInt:
		physical = "type=INT64"
	case core.TypeFloat:
		physical = "type=DOUBLE"
	case core.TypeBool:
		physical = "type=BOOLEAN"
	case core.TypeTimestamp:
		physical = "type=INT64, convertedtype=TIMESTAMP_MILLIS"
	default:
		physical = "type=BYTE_ARRAY, convertedtype=UTF8"
	}
	return fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, physical)
}

func parquetSchema(schema core.Schema) (string, error) {
	fields := make([]map[string]string, 0, len(schema))
	for _, c := range schema {
		fields = append(fields, map[string]string{"Tag": parquetTag(c)})
	}
	b, err := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	})
	return string(b), err
}

func encodeParquet(t *core.Table) ([]byte, error) {
	schema := t.PhysicalSchema()
	def, err := parquetSchema(schema)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(def, pfw, 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range t.Rows {
		row := make(map[string]any, len(schema))
		for _, c := range schema {
			v := core.Coerce(c.Type, r[c.Name])
			if ts, ok := v.(time.Time); ok {
				v = ts.UnixMilli()
			}
			row[c.Name] = v
		}
		line, err := json.Marshal(row)
		if err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := pfw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCSV(t *core.Table) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(t.Schema.Names()); err != nil {
		return nil, err
	}
	record := make([]string, len(t.Schema))
	for _, r := range t.Rows {
		for i, c := range t.Schema {
			record[i] = ""
			if s, ok := coerceText(c, r[c.Name]).(string); ok {
				record[i] = s
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func coerceText(c core.Column, v any) any {
	if c.Type == core.TypeJSON {
		s, err := core.JSONText(v)
		if err == nil {
			return s
		}
	}
	return text(v)
}

func encodeJSONLines(t *core.Table) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	for _, r := range t.Rows {
		row := make(map[string]any, len(t.Schema))
		for _, c := range t.Schema {
			v := r[c.Name]
			if ts, ok := v.(time.Time); ok {
				v = ts.UTC().Format(config.InLayout)
			}
			row[c.Name] = v
		}
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeXLSX(t *core.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(t.Schema))
	for i, name := range t.Schema.Names() {
		header[i] = name
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, err
	}
	for i, r := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(t.Schema))
		for j, c := range t.Schema {
			v := r[c.Name]
			switch v.(type) {
			case map[string]any, []any:
				v = coerceText(c, v)
			}
			values[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
