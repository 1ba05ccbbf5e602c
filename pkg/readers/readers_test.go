package readers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/generate"
	"github.com/TFMV/rawlayer/pkg/schema"
	"github.com/TFMV/rawlayer/pkg/writers"
)

func generateDir(t *testing.T, format string) (string, *generate.Result) {
	t.Helper()
	dir := t.TempDir()
	res, err := generate.Run(context.Background(), generate.Request{Seed: 7, Scale: "xs", BatchSize: 250},
		func(tb schema.Table) (core.RecordSink, error) {
			path, err := writers.DefaultFactory.Path(dir, format, tb.Name)
			if err != nil {
				return nil, err
			}
			return writers.DefaultFactory.Create(core.WriterConfig{
				Type: format, Path: path, Table: tb.Name, Schema: tb.Schema, BatchSize: 250,
			})
		}, generate.Options{})
	require.NoError(t, err)
	return dir, res
}

func TestReadBackMatchesRun(t *testing.T) {
	for _, format := range []string{"parquet", "arrow", "json"} {
		t.Run(format, func(t *testing.T) {
			dir, res := generateDir(t, format)
			for _, tb := range schema.Tables() {
				path, err := writers.DefaultFactory.Path(dir, format, tb.Name)
				require.NoError(t, err)

				r, err := DefaultFactory.Create(core.ReaderConfig{Path: path, Schema: tb.Schema, BatchSize: 100})
				require.NoError(t, err)

				var rows int64
				require.NoError(t, Each(context.Background(), r, func(rec arrow.Record) error {
					rows += rec.NumRows()
					return nil
				}))
				require.NoError(t, schema.Conform(tb, r.Schema()))
				require.NoError(t, r.Close())

				want, ok := res.Table(tb.Name)
				require.True(t, ok)
				assert.Equal(t, want.Rows, rows, tb.Name)
			}
		})
	}
}

func TestParquetReaderBatches(t *testing.T) {
	dir, res := generateDir(t, "parquet")
	r, err := NewParquetReader(core.ReaderConfig{Path: filepath.Join(dir, "orders.parquet"), BatchSize: 100})
	require.NoError(t, err)
	defer r.Close()

	orders, _ := res.Table(schema.Orders)
	assert.Equal(t, orders.Rows, r.NumRows())
	assert.Equal(t, int(orders.Batches), r.(*ParquetReader).NumRowGroups())

	rec, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.NumRows(), int64(100))
	ids := rec.Column(0).(*array.String)
	assert.Len(t, ids.Value(0), 36)
}

func TestArrowReaderRecords(t *testing.T) {
	dir, res := generateDir(t, "arrow")
	r, err := NewArrowReader(core.ReaderConfig{Path: filepath.Join(dir, "users.arrow")})
	require.NoError(t, err)
	defer r.Close()

	users, _ := res.Table(schema.Users)
	assert.Equal(t, int(users.Batches), r.(*ArrowReader).NumRecords())
	assert.Equal(t, int64(-1), r.NumRows())
}

func TestReaderErrors(t *testing.T) {
	_, err := DefaultFactory.Create(core.ReaderConfig{Path: "orders.csv"})
	assert.True(t, core.IsConfigError(err))

	_, err = NewJSONReader(core.ReaderConfig{Path: "orders.ndjson"})
	assert.Error(t, err)

	_, err = NewParquetReader(core.ReaderConfig{Path: filepath.Join(t.TempDir(), "missing.parquet")})
	assert.Error(t, err)

	dir, _ := generateDir(t, "parquet")
	r, err := DefaultFactory.Create(core.ReaderConfig{Path: filepath.Join(dir, "orgs.parquet")})
	require.NoError(t, err)
	defer r.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
