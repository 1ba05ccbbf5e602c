package duckdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/rawlayer/integrations"
	"github.com/TFMV/rawlayer/pkg/core"
)

// StagingSuffix names the table a sink ingests into before it commits.
const StagingSuffix = "__partial"

// Sink ingests one table into DuckDB. Batches land in a staging table that replaces the
// target only on Close, so an aborted table never becomes visible.
type Sink struct {
	conn    integrations.Connection
	table   string
	staging string
	schema  *arrow.Schema
	created bool
	rows    int64
}

// NewSink opens a connection on db for one table.
func NewSink(ctx context.Context, db integrations.Database, config core.WriterConfig) (*Sink, error) {
	if config.Schema == nil {
		return nil, errors.New("schema is required for DuckDB sink")
	}
	if config.Table == "" {
		return nil, errors.New("table is required for DuckDB sink")
	}
	conn, err := db.OpenConnection()
	if err != nil {
		return nil, fmt.Errorf("duckdb sink: %w", err)
	}
	s := &Sink{
		conn:    conn,
		table:   config.Table,
		staging: config.Table + StagingSuffix,
		schema:  config.Schema,
	}
	if _, err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+integrations.QuoteIdent(s.staging)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("duckdb sink: drop stale staging table: %w", err)
	}
	return s, nil
}

// Schema returns the declared schema the sink accepts.
func (s *Sink) Schema() *arrow.Schema {
	return s.schema
}

// Rows returns the number of rows ingested so far.
func (s *Sink) Rows() int64 {
	return s.rows
}

func (s *Sink) Write(ctx context.Context, record arrow.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !record.Schema().Equal(s.schema) {
		return &core.SchemaMismatchError{Table: s.table, Reason: "record schema differs from the declared schema"}
	}
	return s.ingest(ctx, record)
}

func (s *Sink) ingest(ctx context.Context, record arrow.Record) error {
	mode := integrations.IngestAppend
	if !s.created {
		mode = integrations.IngestCreate
	}
	if _, err := s.conn.Ingest(ctx, s.staging, record, mode); err != nil {
		return fmt.Errorf("duckdb ingest %s: %w", s.table, err)
	}
	s.created = true
	s.rows += record.NumRows()
	return nil
}

// Close swaps the staging table in as the target table.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	defer s.release()

	ctx := context.Background()
	if !s.created {
		empty := array.NewRecordBuilder(memory.DefaultAllocator, s.schema)
		rec := empty.NewRecord()
		empty.Release()
		err := s.ingest(ctx, rec)
		rec.Release()
		if err != nil {
			return err
		}
	}
	stmts := []string{
		"DROP TABLE IF EXISTS " + integrations.QuoteIdent(s.table),
		"ALTER TABLE " + integrations.QuoteIdent(s.staging) + " RENAME TO " + integrations.QuoteIdent(s.table),
	}
	for _, sql := range stmts {
		if _, err := s.conn.Exec(ctx, sql); err != nil {
			return fmt.Errorf("duckdb commit %s: %w", s.table, err)
		}
	}
	return nil
}

// Abort drops the staging table.
func (s *Sink) Abort() error {
	if s.conn == nil {
		return nil
	}
	defer s.release()
	if _, err := s.conn.Exec(context.Background(), "DROP TABLE IF EXISTS "+integrations.QuoteIdent(s.staging)); err != nil {
		return fmt.Errorf("duckdb abort %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) release() {
	s.conn.Close()
	s.conn = nil
}
