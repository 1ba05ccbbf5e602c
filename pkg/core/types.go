// Package core provides the core types and interfaces shared by the generator, the
// writers and the readers of the rawlayer dataset generator.
package core

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// DatasetReader defines an interface for reading a generated table back.
type DatasetReader interface {
	// Read returns a record batch and an error if any.
	// Returns io.EOF when there are no more batches.
	Read(ctx context.Context) (arrow.Record, error)

	// Schema returns the schema of the dataset.
	Schema() *arrow.Schema

	// NumRows returns the total number of rows when known, -1 otherwise.
	NumRows() int64

	// Close closes the reader and releases resources.
	Close() error
}

// RecordSink is the output port the batched writer hands finished record batches to.
// A sink receives the batches of exactly one table.
type RecordSink interface {
	// Write writes a record batch to the destination.
	Write(ctx context.Context, record arrow.Record) error

	// Close commits the table and flushes any pending data.
	Close() error

	// Abort discards everything written so far. The table must not be visible afterwards.
	Abort() error
}

// ReaderConfig provides configuration for creating a reader.
type ReaderConfig struct {
	// Type is the type of the reader.
	Type string

	// Path is the path to the file.
	Path string

	// BatchSize is the size of batches to read.
	BatchSize int64

	// Schema is the expected schema, required for formats that do not embed one.
	Schema *arrow.Schema
}

// WriterConfig provides configuration for creating a sink.
type WriterConfig struct {
	// Type is the type of the sink (parquet, arrow, json, duckdb).
	Type string

	// Path is the path to the output file, or the database file for duckdb.
	Path string

	// Table is the logical table name.
	Table string

	// Schema is the declared physical schema of the table.
	Schema *arrow.Schema

	// Compression is the codec name for formats that support it.
	Compression string

	// BatchSize is the maximum number of rows per record batch.
	BatchSize int64
}
