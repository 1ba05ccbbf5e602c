// Package integrations defines the database ports a generated dataset can be loaded into.
package integrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// IngestMode selects how a bulk ingest treats the target table.
type IngestMode int

const (
	// IngestCreate creates the target table and fails if it exists.
	IngestCreate IngestMode = iota
	// IngestAppend appends to an existing table.
	IngestAppend
)

// Database is a store the generated tables can be loaded into.
type Database interface {
	OpenConnection() (Connection, error)
	// Close closes the database together with every connection still open.
	Close()
	ConnCount() int
}

// Connection is one session on a Database.
type Connection interface {
	// Exec runs a statement that returns no rows and reports the affected row count.
	Exec(ctx context.Context, sql string) (int64, error)
	// Query runs sql. The caller releases the reader.
	Query(ctx context.Context, sql string) (array.RecordReader, error)
	// Ingest bulk loads rec into table.
	Ingest(ctx context.Context, table string, rec arrow.Record, mode IngestMode) (int64, error)
	GetTableSchema(ctx context.Context, catalog, schema *string, table string) (*arrow.Schema, error)
	Close()
}

// QuoteIdent quotes a SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// RowCount returns COUNT(*) of table.
func RowCount(ctx context.Context, conn Connection, table string) (int64, error) {
	rr, err := conn.Query(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(table))
	if err != nil {
		return 0, err
	}
	defer rr.Release()

	if !rr.Next() {
		if err := rr.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("no rows returned for COUNT query on %s", table)
	}
	rec := rr.Record()
	if rec.NumCols() < 1 || rec.NumRows() < 1 {
		return 0, fmt.Errorf("invalid row count result")
	}
	switch col := rec.Column(0).(type) {
	case *array.Int64:
		return col.Value(0), nil
	case *array.Int32:
		return int64(col.Value(0)), nil
	case *array.Uint64:
		return int64(col.Value(0)), nil
	default:
		return 0, fmt.Errorf("unexpected row count type %s", col.DataType())
	}
}
