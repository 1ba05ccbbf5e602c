// Package readers streams generated tables back as Arrow record batches.
package readers

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/TFMV/rawlayer/pkg/core"
)

// Factory creates a reader based on the given configuration.
type Factory struct {
	readers map[string]Creator
	exts    map[string]string
}

// Creator is a function that creates a reader from a configuration.
type Creator func(config core.ReaderConfig) (core.DatasetReader, error)

// NewFactory creates a new reader factory.
func NewFactory() *Factory {
	return &Factory{
		readers: make(map[string]Creator),
		exts:    make(map[string]string),
	}
}

// Register registers a creator for a reader type and the file extension it reads.
func (f *Factory) Register(typ, ext string, creator Creator) {
	f.readers[typ] = creator
	if ext != "" {
		f.exts[ext] = typ
	}
}

// Create creates a reader based on the given configuration. An empty type is
// inferred from the file extension.
func (f *Factory) Create(config core.ReaderConfig) (core.DatasetReader, error) {
	if config.Type == "" {
		config.Type = f.exts[strings.ToLower(filepath.Ext(config.Path))]
	}
	creator, ok := f.readers[config.Type]
	if !ok {
		return nil, &core.ConfigError{Field: "format", Value: config.Type, Message: "unsupported reader type"}
	}
	return creator(config)
}

// DefaultFactory is the default reader factory with built-in reader types.
var DefaultFactory = NewFactory()

func init() {
	DefaultFactory.Register("parquet", ".parquet", NewParquetReader)
	DefaultFactory.Register("arrow", ".arrow", NewArrowReader)
	DefaultFactory.Register("json", ".ndjson", NewJSONReader)
}

// Each calls fn for every record batch of r until the reader is exhausted. The
// record passed to fn is only valid for the duration of the call.
func Each(ctx context.Context, r core.DatasetReader, fn func(arrow.Record) error) error {
	for {
		rec, err := r.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
