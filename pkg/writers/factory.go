// Package writers turns typed rows into bounded Arrow record batches and hands them to
// format-specific sinks.
package writers

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/TFMV/rawlayer/pkg/core"
)

// Factory creates a sink based on the given configuration.
type Factory struct {
	// registered sinks by type
	sinks map[string]Creator
	exts  map[string]string
}

// Creator is a function that creates a sink from a configuration.
type Creator func(config core.WriterConfig) (core.RecordSink, error)

// NewFactory creates a new sink factory.
func NewFactory() *Factory {
	return &Factory{
		sinks: make(map[string]Creator),
		exts:  make(map[string]string),
	}
}

// Register registers a creator for a sink type. ext is the file extension of the
// tables it writes, empty for sinks that do not write one file per table.
func (f *Factory) Register(typ, ext string, creator Creator) {
	f.sinks[typ] = creator
	f.exts[typ] = ext
}

// Create creates a sink based on the given configuration.
func (f *Factory) Create(config core.WriterConfig) (core.RecordSink, error) {
	creator, ok := f.sinks[config.Type]
	if !ok {
		return nil, &core.ConfigError{Field: "output.format", Value: config.Type, Message: "unsupported writer type"}
	}
	return creator(config)
}

// Types returns the registered sink types.
func (f *Factory) Types() []string {
	out := make([]string, 0, len(f.sinks))
	for typ := range f.sinks {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Path returns the file a table is written to in dir by sinks of type typ, or dir itself
// for sinks without per-table files.
func (f *Factory) Path(dir, typ, table string) (string, error) {
	ext, ok := f.exts[typ]
	if !ok {
		return "", fmt.Errorf("unsupported writer type: %s", typ)
	}
	if ext == "" {
		return dir, nil
	}
	return filepath.Join(dir, table+ext), nil
}

// DefaultFactory is the default sink factory with built-in sink types.
var DefaultFactory = NewFactory()

func init() {
	DefaultFactory.Register("parquet", ".parquet", NewParquetSink)
	DefaultFactory.Register("arrow", ".arrow", NewArrowSink)
	DefaultFactory.Register("json", ".ndjson", NewJSONSink)
}
