package writers

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/schema"
)

func writeOrders(t *testing.T, typ, compression, dir string, n int) string {
	t.Helper()
	orders := schema.MustLookup(schema.Orders)
	path, err := DefaultFactory.Path(dir, typ, orders.Name)
	require.NoError(t, err)

	sink, err := DefaultFactory.Create(core.WriterConfig{
		Type:        typ,
		Path:        path,
		Table:       orders.Name,
		Schema:      orders.Schema,
		Compression: compression,
		BatchSize:   3,
	})
	require.NoError(t, err)

	b, err := NewBatcher(orders, sink, 3, memory.NewGoAllocator())
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, b.Append(ctx, testOrder(i)))
	}
	require.NoError(t, b.Close(ctx))
	return path
}

func TestParquetSinkRoundTrip(t *testing.T) {
	for _, codec := range []string{"", "snappy", "zstd", "gzip", "none"} {
		t.Run("codec="+codec, func(t *testing.T) {
			path := writeOrders(t, "parquet", codec, t.TempDir(), 7)
			assert.Equal(t, ".parquet", filepath.Ext(path))
			assert.NoFileExists(t, path+PartialSuffix)

			rdr, err := file.OpenParquetFile(path, false)
			require.NoError(t, err)
			defer rdr.Close()
			assert.Equal(t, int64(7), rdr.NumRows())
			assert.Equal(t, 3, rdr.NumRowGroups())

			fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
			require.NoError(t, err)
			tbl, err := fr.ReadTable(context.Background())
			require.NoError(t, err)
			defer tbl.Release()

			assert.NoError(t, schema.Conform(schema.MustLookup(schema.Orders), tbl.Schema()))
		})
	}

	_, err := DefaultFactory.Create(core.WriterConfig{Type: "parquet", Path: filepath.Join(t.TempDir(), "x.parquet"),
		Schema: schema.MustLookup(schema.Orders).Schema, Compression: "brotli"})
	assert.True(t, core.IsConfigError(err))
}

func TestArrowSinkRoundTrip(t *testing.T) {
	path := writeOrders(t, "arrow", "zstd", t.TempDir(), 5)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := ipc.NewFileReader(f)
	require.NoError(t, err)
	defer r.Close()

	assert.NoError(t, schema.Conform(schema.MustLookup(schema.Orders), r.Schema()))
	assert.Equal(t, 2, r.NumRecords())

	var rows int64
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		require.NoError(t, err)
		rows += rec.NumRows()
	}
	assert.Equal(t, int64(5), rows)
}

func TestJSONSinkWritesOrderedRows(t *testing.T) {
	path := writeOrders(t, "json", "", t.TempDir(), 2)
	assert.Equal(t, ".ndjson", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 2)

	assert.Equal(t,
		`{"order_id":"order","org_id":"org","user_id":"user","product_id":"product","quantity":1,"unit_price":"10.01",`+
			`"currency":"USD","status":"placed","order_ts":"2024-11-03T10:04:05.123456Z","updated_at":"2024-11-03T11:04:05.123456Z"}`,
		lines[1])
}

func TestAbortLeavesNoTable(t *testing.T) {
	for _, typ := range []string{"parquet", "arrow", "json"} {
		t.Run(typ, func(t *testing.T) {
			dir := t.TempDir()
			orders := schema.MustLookup(schema.Orders)
			path, err := DefaultFactory.Path(dir, typ, orders.Name)
			require.NoError(t, err)

			// A table from an earlier run is replaced, never left half-updated.
			require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

			sink, err := DefaultFactory.Create(core.WriterConfig{Type: typ, Path: path, Schema: orders.Schema})
			require.NoError(t, err)
			b, err := NewBatcher(orders, sink, 1, nil)
			require.NoError(t, err)
			require.NoError(t, b.Append(context.Background(), testOrder(0)))
			assert.FileExists(t, path+PartialSuffix)

			require.NoError(t, b.Abort())
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestFailedCommitLeavesNoPartial(t *testing.T) {
	for _, typ := range []string{"parquet", "arrow", "json"} {
		t.Run(typ, func(t *testing.T) {
			dir := t.TempDir()
			orders := schema.MustLookup(schema.Orders)
			path, err := DefaultFactory.Path(dir, typ, orders.Name)
			require.NoError(t, err)

			sink, err := DefaultFactory.Create(core.WriterConfig{Type: typ, Path: path, Schema: orders.Schema})
			require.NoError(t, err)
			b, err := NewBatcher(orders, sink, 1, nil)
			require.NoError(t, err)
			require.NoError(t, b.Append(context.Background(), testOrder(0)))

			// A directory in the way makes the final rename fail.
			require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0o755))

			require.Error(t, b.Close(context.Background()))
			assert.NoFileExists(t, path+PartialSuffix)
			assert.DirExists(t, path)
		})
	}
}

func TestCancelledContextStopsWrites(t *testing.T) {
	orders := schema.MustLookup(schema.Orders)
	dir := t.TempDir()
	sink, err := NewParquetSink(core.WriterConfig{Path: filepath.Join(dir, "orders.parquet"), Schema: orders.Schema})
	require.NoError(t, err)
	b, err := NewBatcher(orders, sink, 1, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = b.Append(ctx, testOrder(0))
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, b.Abort())
}

func TestFactory(t *testing.T) {
	assert.Equal(t, []string{"arrow", "json", "parquet"}, DefaultFactory.Types())

	_, err := DefaultFactory.Create(core.WriterConfig{Type: "csv"})
	assert.True(t, core.IsConfigError(err))

	f := NewFactory()
	f.Register("db", "", func(core.WriterConfig) (core.RecordSink, error) { return &captureSink{}, nil })
	p, err := f.Path("/tmp/out.db", "db", "orders")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.db", p)
	assert.True(t, strings.HasSuffix(mustPath(t, DefaultFactory, "parquet"), "orders.parquet"))
}

func mustPath(t *testing.T, f *Factory, typ string) string {
	t.Helper()
	p, err := f.Path("out", typ, "orders")
	require.NoError(t, err)
	return p
}
