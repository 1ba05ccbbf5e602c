package readers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/rawlayer/pkg/core"
)

// ArrowReader streams the record batches of an Arrow IPC file.
type ArrowReader struct {
	schema  *arrow.Schema
	reader  *ipc.FileReader
	file    *os.File
	next    int
	current arrow.Record
}

// NewArrowReader opens the Arrow IPC file at config.Path.
func NewArrowReader(config core.ReaderConfig) (core.DatasetReader, error) {
	if config.Path == "" {
		return nil, errors.New("path is required for Arrow reader")
	}

	f, err := os.Open(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Arrow file: %w", err)
	}

	reader, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create Arrow file reader: %w", err)
	}

	return &ArrowReader{
		schema: reader.Schema(),
		reader: reader,
		file:   f,
	}, nil
}

// Read returns the next record batch. The record is owned by the reader and stays
// valid until the next call to Read or Close.
func (r *ArrowReader) Read(ctx context.Context) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.release()
	if r.next >= r.reader.NumRecords() {
		return nil, io.EOF
	}
	rec, err := r.reader.RecordAt(r.next)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %d: %w", r.next, err)
	}
	r.next++
	r.current = rec
	return rec, nil
}

func (r *ArrowReader) release() {
	if r.current != nil {
		r.current.Release()
		r.current = nil
	}
}

// Schema returns the schema of the Arrow file.
func (r *ArrowReader) Schema() *arrow.Schema {
	return r.schema
}

// NumRows is unknown without reading every batch, so it returns -1.
func (r *ArrowReader) NumRows() int64 {
	return -1
}

// NumRecords returns the number of record batches in the file.
func (r *ArrowReader) NumRecords() int {
	return r.reader.NumRecords()
}

// Close releases the reader and closes the file.
func (r *ArrowReader) Close() error {
	r.release()
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to close Arrow reader: %w", err)
	}
	return r.file.Close()
}
