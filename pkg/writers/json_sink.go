package writers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/goccy/go-json"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/money"
	"github.com/TFMV/rawlayer/pkg/temporal"
)

// TimestampLayout is how the JSON sink renders timestamps: UTC at microsecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// JSONSink writes one table as newline-delimited JSON, one object per row with keys in
// column order. Money is written as a string to keep it exact.
type JSONSink struct {
	file   *partialFile
	buf    *bufio.Writer
	schema *arrow.Schema
	line   []byte
}

// NewJSONSink creates an NDJSON sink for config.Schema.
func NewJSONSink(config core.WriterConfig) (core.RecordSink, error) {
	if config.Schema == nil {
		return nil, errors.New("schema is required for JSON sink")
	}
	if c := config.Compression; c != "" && c != "none" {
		return nil, &core.ConfigError{Field: "output.compression", Value: c, Message: "json output is not compressed"}
	}

	file, err := createPartial(config.Path)
	if err != nil {
		return nil, fmt.Errorf("json sink: %w", err)
	}

	return &JSONSink{
		file:   file,
		buf:    bufio.NewWriterSize(file.writer(), 1<<20),
		schema: config.Schema,
	}, nil
}

// Schema returns the schema rows are written with.
func (w *JSONSink) Schema() *arrow.Schema {
	return w.schema
}

// Write writes every row of record.
func (w *JSONSink) Write(ctx context.Context, record arrow.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	numRows := int(record.NumRows())
	fields := record.Schema().Fields()
	for i := 0; i < numRows; i++ {
		line := append(w.line[:0], '{')
		for j, field := range fields {
			if j > 0 {
				line = append(line, ',')
			}
			key, _ := json.Marshal(field.Name)
			line = append(line, key...)
			line = append(line, ':')

			var err error
			line, err = appendJSONValue(line, record.Column(j), i)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", field.Name, err)
			}
		}
		line = append(line, '}', '\n')
		if _, err := w.buf.Write(line); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		w.line = line
	}

	return nil
}

func appendJSONValue(dst []byte, col arrow.Array, i int) ([]byte, error) {
	if col.IsNull(i) {
		return append(dst, "null"...), nil
	}

	switch col := col.(type) {
	case *array.String:
		b, err := json.Marshal(col.Value(i))
		if err != nil {
			return dst, err
		}
		return append(dst, b...), nil
	case *array.Boolean:
		return strconv.AppendBool(dst, col.Value(i)), nil
	case *array.Int64:
		return strconv.AppendInt(dst, col.Value(i), 10), nil
	case *array.Decimal128:
		scale := col.DataType().(*arrow.Decimal128Type).Scale
		d := money.FromDecimal128(col.Value(i), scale)
		return strconv.AppendQuote(dst, d.StringFixed(scale)), nil
	case *array.Timestamp:
		t := temporal.FromMicros(col.Value(i))
		return strconv.AppendQuote(dst, t.Format(TimestampLayout)), nil
	default:
		return dst, fmt.Errorf("unsupported column type %s", col.DataType())
	}
}

// Close flushes buffered rows and commits the file.
func (w *JSONSink) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.discard()
		return fmt.Errorf("failed to flush rows: %w", err)
	}
	return w.file.commit()
}

// Abort removes the partially written file.
func (w *JSONSink) Abort() error {
	return w.file.discard()
}
