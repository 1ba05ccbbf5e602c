package readers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/rawlayer/pkg/core"
)

// JSONReader parses newline-delimited JSON against a declared schema.
type JSONReader struct {
	schema *arrow.Schema
	reader *array.JSONReader
	file   *os.File
}

// NewJSONReader opens the NDJSON file at config.Path. NDJSON carries no schema, so
// config.Schema is required.
func NewJSONReader(config core.ReaderConfig) (core.DatasetReader, error) {
	if config.Path == "" {
		return nil, errors.New("path is required for JSON reader")
	}
	if config.Schema == nil {
		return nil, errors.New("schema is required for JSON reader")
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	f, err := os.Open(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}

	reader := array.NewJSONReader(bufio.NewReader(f), config.Schema,
		array.WithChunk(int(batchSize)),
		array.WithAllocator(memory.DefaultAllocator))

	return &JSONReader{schema: config.Schema, reader: reader, file: f}, nil
}

// Read returns the next record batch. The record is owned by the reader and stays
// valid until the next call to Read or Close.
func (r *JSONReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.reader.Next() {
		if err := r.reader.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		return nil, io.EOF
	}
	return r.reader.Record(), nil
}

func (r *JSONReader) Schema() *arrow.Schema {
	return r.schema
}

func (r *JSONReader) NumRows() int64 {
	return -1
}

func (r *JSONReader) Close() error {
	r.reader.Release()
	return r.file.Close()
}
