package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/rawlayer/integrations"
	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/generate"
	"github.com/TFMV/rawlayer/pkg/schema"
)

type ingestCall struct {
	table string
	rows  int64
	mode  integrations.IngestMode
}

// recordingConn records the statements a sink issues.
type recordingConn struct {
	execs   []string
	ingests []ingestCall
	closed  bool
}

func (c *recordingConn) Exec(_ context.Context, sql string) (int64, error) {
	c.execs = append(c.execs, sql)
	return 0, nil
}

func (c *recordingConn) Query(context.Context, string) (array.RecordReader, error) {
	return nil, nil
}

func (c *recordingConn) Ingest(_ context.Context, table string, rec arrow.Record, mode integrations.IngestMode) (int64, error) {
	c.ingests = append(c.ingests, ingestCall{table: table, rows: rec.NumRows(), mode: mode})
	return rec.NumRows(), nil
}

func (c *recordingConn) GetTableSchema(context.Context, *string, *string, string) (*arrow.Schema, error) {
	return nil, nil
}

func (c *recordingConn) Close() { c.closed = true }

type recordingDB struct{ conn *recordingConn }

func (d *recordingDB) OpenConnection() (integrations.Connection, error) { return d.conn, nil }
func (d *recordingDB) Close() {}
func (d *recordingDB) ConnCount() int { return 1 }

func orgRecord(t *testing.T, n int) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema.MustLookup(schema.Orgs).Schema)
	defer b.Release()
	for i := 0; i < n; i++ {
		for _, f := range b.Fields() {
			f.AppendEmptyValue()
		}
	}
	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

func newTestSink(t *testing.T) (*Sink, *recordingConn) {
	t.Helper()
	conn := &recordingConn{}
	orgs := schema.MustLookup(schema.Orgs)
	s, err := NewSink(context.Background(), &recordingDB{conn: conn}, core.WriterConfig{
		Type: "duckdb", Table: orgs.Name, Schema: orgs.Schema,
	})
	require.NoError(t, err)
	return s, conn
}

func TestSinkStagesThenRenames(t *testing.T) {
	s, conn := newTestSink(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, orgRecord(t, 3)))
	require.NoError(t, s.Write(ctx, orgRecord(t, 2)))
	require.NoError(t, s.Close())

	assert.Equal(t, []ingestCall{
		{table: "orgs__partial", rows: 3, mode: integrations.IngestCreate},
		{table: "orgs__partial", rows: 2, mode: integrations.IngestAppend},
	}, conn.ingests)
	assert.Equal(t, []string{
		`DROP TABLE IF EXISTS "orgs__partial"`,
		`DROP TABLE IF EXISTS "orgs"`,
		`ALTER TABLE "orgs__partial" RENAME TO "orgs"`,
	}, conn.execs)
	assert.Equal(t, int64(5), s.Rows())
	assert.True(t, conn.closed)
	assert.NoError(t, s.Close())
}

func TestSinkEmptyTableStillCreated(t *testing.T) {
	s, conn := newTestSink(t)
	require.NoError(t, s.Close())
	require.Len(t, conn.ingests, 1)
	assert.Equal(t, int64(0), conn.ingests[0].rows)
	assert.Equal(t, integrations.IngestCreate, conn.ingests[0].mode)
}

func TestSinkAbortDropsStaging(t *testing.T) {
	s, conn := newTestSink(t)
	require.NoError(t, s.Write(context.Background(), orgRecord(t, 1)))
	require.NoError(t, s.Abort())
	assert.Equal(t, `DROP TABLE IF EXISTS "orgs__partial"`, conn.execs[len(conn.execs)-1])
	assert.NotContains(t, conn.execs, `DROP TABLE IF EXISTS "orgs"`)
}

func TestSinkRejectsForeignSchema(t *testing.T) {
	s, _ := newTestSink(t)
	defer s.Abort()
	other := schema.MustLookup(schema.Products).Schema
	b := array.NewRecordBuilder(memory.NewGoAllocator(), other)
	defer b.Release()
	rec := b.NewRecord()
	defer rec.Release()
	err := s.Write(context.Background(), rec)
	assert.True(t, core.IsSchemaMismatchError(err))
}

func TestDuckDBIngest(t *testing.T) {
	driver := DefaultDriverPath()
	if _, err := os.Stat(driver); err != nil {
		t.Skipf("DuckDB driver not available at %s", driver)
	}

	db, err := NewDuckDB(WithPath(filepath.Join(t.TempDir(), "raw.duckdb")), WithDriverPath(driver))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	res, err := generate.Run(ctx, generate.Request{Seed: 42, Scale: "xs", BatchSize: 200},
		func(tb schema.Table) (core.RecordSink, error) {
			return NewSink(ctx, db, core.WriterConfig{Type: "duckdb", Table: tb.Name, Schema: tb.Schema})
		}, generate.Options{})
	require.NoError(t, err)

	conn, err := db.OpenConnection()
	require.NoError(t, err)
	defer conn.Close()
	for _, tr := range res.Tables {
		n, err := integrations.RowCount(ctx, conn, tr.Table)
		require.NoError(t, err)
		assert.Equal(t, tr.Rows, n, tr.Table)
	}
	assert.Equal(t, 1, db.ConnCount())
}
