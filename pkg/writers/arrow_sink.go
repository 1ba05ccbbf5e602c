package writers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"github.com/TFMV/rawlayer/pkg/core"
)

// ArrowSink writes one table to an Arrow IPC file.
type ArrowSink struct {
	writer *ipc.FileWriter
	file   *partialFile
	schema *arrow.Schema
}

func arrowCompression(name string) ([]ipc.Option, error) {
	switch strings.ToLower(name) {
	case "", "none", "uncompressed":
		return nil, nil
	case "zstd":
		return []ipc.Option{ipc.WithZstd()}, nil
	case "lz4":
		return []ipc.Option{ipc.WithLZ4()}, nil
	default:
		return nil, &core.ConfigError{
			Field:   "output.compression",
			Value:   name,
			Message: "arrow supports zstd, lz4 or none",
		}
	}
}

// NewArrowSink creates an Arrow IPC sink for config.Schema.
func NewArrowSink(config core.WriterConfig) (core.RecordSink, error) {
	if config.Schema == nil {
		return nil, errors.New("schema is required for Arrow sink")
	}
	opts, err := arrowCompression(config.Compression)
	if err != nil {
		return nil, err
	}

	file, err := createPartial(config.Path)
	if err != nil {
		return nil, fmt.Errorf("arrow sink: %w", err)
	}

	writer, err := ipc.NewFileWriter(file.writer(), append(opts, ipc.WithSchema(config.Schema))...)
	if err != nil {
		file.discard()
		return nil, fmt.Errorf("failed to create Arrow writer: %w", err)
	}

	return &ArrowSink{
		writer: writer,
		file:   file,
		schema: config.Schema,
	}, nil
}

// Schema returns the schema the file is written with.
func (w *ArrowSink) Schema() *arrow.Schema {
	return w.schema
}

// Write writes a record batch to the file.
func (w *ArrowSink) Write(ctx context.Context, record arrow.Record) error {
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
func (w *ArrowSink) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.discard()
		return fmt.Errorf("failed to close Arrow writer: %w", err)
	}
	return w.file.commit()
}

// Abort removes the partially written file.
func (w *ArrowSink) Abort() error {
	return w.file.discard()
}
