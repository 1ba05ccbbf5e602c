package integrations_test

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/rawlayer/integrations"
)

// mockConn answers every query with a single-row record.
type mockConn struct {
	rec   arrow.Record
	query string
	err   error
}

func (m *mockConn) Exec(context.Context, string) (int64, error) { return 0, nil }

func (m *mockConn) Query(_ context.Context, sql string) (array.RecordReader, error) {
	m.query = sql
	if m.err != nil {
		return nil, m.err
	}
	return array.NewRecordReader(m.rec.Schema(), []arrow.Record{m.rec})
}

func (m *mockConn) Ingest(context.Context, string, arrow.Record, integrations.IngestMode) (int64, error) {
	return 0, nil
}

func (m *mockConn) GetTableSchema(context.Context, *string, *string, string) (*arrow.Schema, error) {
	return m.rec.Schema(), nil
}

func (m *mockConn) Close() {}

func countRecord(t *testing.T, n int64) arrow.Record {
	t.Helper()
	sc := arrow.NewSchema([]arrow.Field{{Name: "count_star()", Type: arrow.PrimitiveTypes.Int64}}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), sc)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(n)
	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

func TestRowCount(t *testing.T) {
	conn := &mockConn{rec: countRecord(t, 500)}
	n, err := integrations.RowCount(context.Background(), conn, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(500), n)
	assert.Equal(t, `SELECT COUNT(*) FROM "orders"`, conn.query)

	conn.err = errors.New("table does not exist")
	_, err = integrations.RowCount(context.Background(), conn, "orders")
	assert.ErrorContains(t, err, "does not exist")
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"users"`, integrations.QuoteIdent("users"))
	assert.Equal(t, `"a""b"`, integrations.QuoteIdent(`a"b`))
}
