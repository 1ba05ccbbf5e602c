package readers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/TFMV/rawlayer/pkg/core"
)

// DefaultBatchSize is the number of rows per record when the config leaves it unset.
const DefaultBatchSize = 10_000

// ParquetReader streams a Parquet file as record batches.
type ParquetReader struct {
	schema        *arrow.Schema
	parquetReader *file.Reader
	arrowReader   *pqarrow.FileReader
	records       pqarrow.RecordReader
	numRows       int64
	batchSize     int64
}

// NewParquetReader opens the Parquet file at config.Path.
func NewParquetReader(config core.ReaderConfig) (core.DatasetReader, error) {
	if config.Path == "" {
		return nil, errors.New("path is required for Parquet reader")
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	parquetReader, err := file.OpenParquetFile(config.Path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}

	arrowProps := pqarrow.ArrowReadProperties{
		Parallel:  true,
		BatchSize: batchSize,
	}
	arrowReader, err := pqarrow.NewFileReader(parquetReader, arrowProps, memory.DefaultAllocator)
	if err != nil {
		parquetReader.Close()
		return nil, fmt.Errorf("failed to create Arrow reader: %w", err)
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		parquetReader.Close()
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}

	return &ParquetReader{
		schema:        schema,
		parquetReader: parquetReader,
		arrowReader:   arrowReader,
		numRows:       parquetReader.NumRows(),
		batchSize:     batchSize,
	}, nil
}

// Read returns the next record batch. The record is owned by the reader and stays
// valid until the next call to Read or Close.
func (r *ParquetReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.records == nil {
		rr, err := r.arrowReader.GetRecordReader(ctx, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create record reader: %w", err)
		}
		r.records = rr
	}
	if !r.records.Next() {
		if err := r.records.Err(); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read Parquet batch: %w", err)
		}
		return nil, io.EOF
	}
	return r.records.Record(), nil
}

// Schema returns the Arrow schema stored in the file.
func (r *ParquetReader) Schema() *arrow.Schema {
	return r.schema
}

// NumRows returns the row count from the file footer.
func (r *ParquetReader) NumRows() int64 {
	return r.numRows
}

// NumRowGroups returns the number of row groups in the file.
func (r *ParquetReader) NumRowGroups() int {
	return r.parquetReader.NumRowGroups()
}

// Close releases the reader.
func (r *ParquetReader) Close() error {
	if r.records != nil {
		r.records.Release()
		r.records = nil
	}
	return r.parquetReader.Close()
}
