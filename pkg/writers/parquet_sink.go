package writers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/TFMV/rawlayer/pkg/core"
)

// ParquetSink writes one table to a Parquet file.
type ParquetSink struct {
	writer *pqarrow.FileWriter
	file   *partialFile
	schema *arrow.Schema
}

// ParquetCompression maps a codec name to its Parquet codec. Empty selects snappy.
func ParquetCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, &core.ConfigError{
			Field:   "output.compression",
			Value:   name,
			Message: "parquet supports snappy, zstd, gzip or none",
		}
	}
}

// NewParquetSink creates a Parquet sink for config.Schema.
func NewParquetSink(config core.WriterConfig) (core.RecordSink, error) {
	if config.Schema == nil {
		return nil, errors.New("schema is required for Parquet sink")
	}
	codec, err := ParquetCompression(config.Compression)
	if err != nil {
		return nil, err
	}

	file, err := createPartial(config.Path)
	if err != nil {
		return nil, fmt.Errorf("parquet sink: %w", err)
	}

	writeProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(false),
		parquet.WithMaxRowGroupLength(max(config.BatchSize, 1)),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(config.Schema, file.writer(), writeProps, arrowProps)
	if err != nil {
		file.discard()
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	return &ParquetSink{
		writer: writer,
		file:   file,
		schema: config.Schema,
	}, nil
}

// Schema returns the schema the file is written with.
func (w *ParquetSink) Schema() *arrow.Schema {
	return w.schema
}

// Write writes a record batch as one row group.
func (w *ParquetSink) Write(ctx context.Context, record arrow.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Close writes the footer and commits the file.
func (w *ParquetSink) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.discard()
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return w.file.commit()
}

// Abort removes the partially written file.
func (w *ParquetSink) Abort() error {
	return w.file.discard()
}
