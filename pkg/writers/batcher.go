package writers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/shopspring/decimal"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/entity"
	"github.com/TFMV/rawlayer/pkg/money"
	"github.com/TFMV/rawlayer/pkg/schema"
	"github.com/TFMV/rawlayer/pkg/temporal"
)

// DefaultBatchSize is the number of rows per record batch when none is configured.
const DefaultBatchSize = 100_000

// Batcher accumulates the rows of one table into Arrow builders and hands a record batch
// to its sink every batchSize rows. It holds at most one batch in memory.
type Batcher struct {
	table     schema.Table
	sink      core.RecordSink
	builder   *array.RecordBuilder
	batchSize int

	pending int
	rows    int64
	batches int64
	elapsed time.Duration

	// cells holds the converted values of the row being appended.
	cells  []any
	closed bool
}

// NewBatcher returns a Batcher writing table to sink. A sink that reports its schema must
// match the declared schema of table exactly.
func NewBatcher(table schema.Table, sink core.RecordSink, batchSize int, alloc memory.Allocator) (*Batcher, error) {
	if batchSize <= 0 {
		return nil, &core.ConfigError{Field: "batch_size", Value: batchSize, Message: "must be positive"}
	}
	if s, ok := sink.(interface{ Schema() *arrow.Schema }); ok {
		if err := schema.Conform(table, s.Schema()); err != nil {
			return nil, err
		}
	}
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	builder := array.NewRecordBuilder(alloc, table.Schema)
	builder.Reserve(min(batchSize, DefaultBatchSize))

	return &Batcher{
		table:     table,
		sink:      sink,
		builder:   builder,
		batchSize: batchSize,
		cells:     make([]any, table.Schema.NumFields()),
	}, nil
}

// Table returns the declared table the batcher writes.
func (b *Batcher) Table() schema.Table {
	return b.table
}

// Rows returns the number of rows appended so far.
func (b *Batcher) Rows() int64 {
	return b.rows
}

// Batches returns the number of record batches handed to the sink so far.
func (b *Batcher) Batches() int64 {
	return b.batches
}

// WriteTime returns the time spent in the sink.
func (b *Batcher) WriteTime() time.Duration {
	return b.elapsed
}

// Append adds row to the current batch. The row is checked against the declared schema
// before any of its values reach the builders, so a rejected row leaves the batch intact.
func (b *Batcher) Append(ctx context.Context, row entity.Row) error {
	if b.closed {
		return fmt.Errorf("append to closed batcher for %s", b.table.Name)
	}
	if row.Table() != b.table.Name {
		return &core.SchemaMismatchError{Table: b.table.Name, Reason: fmt.Sprintf("got a %s row", row.Table())}
	}

	values := row.Values()
	if len(values) != len(b.cells) {
		return &core.SchemaMismatchError{
			Table:  b.table.Name,
			Reason: fmt.Sprintf("row has %d values, schema declares %d columns", len(values), len(b.cells)),
		}
	}
	for i, v := range values {
		cell, err := convert(b.table.Schema.Field(i), v)
		if err != nil {
			return &core.SchemaMismatchError{Table: b.table.Name, Column: b.table.Schema.Field(i).Name, Reason: err.Error()}
		}
		b.cells[i] = cell
	}
	for i, cell := range b.cells {
		appendCell(b.builder.Field(i), cell)
	}

	b.pending++
	b.rows++
	if b.pending >= b.batchSize {
		return b.Flush(ctx)
	}
	return nil
}

// Flush hands the pending rows to the sink as one record batch.
func (b *Batcher) Flush(ctx context.Context) error {
	if b.pending == 0 {
		return nil
	}
	rec := b.builder.NewRecord()
	defer rec.Release()
	b.pending = 0

	start := time.Now()
	if err := b.sink.Write(ctx, rec); err != nil {
		return fmt.Errorf("failed to write %s batch: %w", b.table.Name, err)
	}
	b.elapsed += time.Since(start)
	b.batches++
	return nil
}

// Close flushes the last batch and commits the table.
func (b *Batcher) Close(ctx context.Context) error {
	if b.closed {
		return nil
	}
	if err := b.Flush(ctx); err != nil {
		return err
	}
	b.closed = true
	b.builder.Release()
	if err := b.sink.Close(); err != nil {
		// A failed commit can leave partial output that only the sink knows how to drop.
		return errors.Join(fmt.Errorf("failed to commit %s: %w", b.table.Name, err), b.sink.Abort())
	}
	return nil
}

// Abort drops pending rows and discards everything the sink received.
func (b *Batcher) Abort() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.builder.Release()
	return b.sink.Abort()
}

// convert checks v against field and returns the value to append: nil for a null, or a
// value of the builder's native type.
func convert(field arrow.Field, v any) (any, error) {
	if p, ok := v.(*string); ok {
		if p == nil {
			v = nil
		} else {
			v = *p
		}
	}
	if v == nil {
		if !field.Nullable {
			return nil, fmt.Errorf("null in non-nullable column")
		}
		return nil, nil
	}

	switch dt := field.Type.(type) {
	case *arrow.StringType:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case *arrow.BooleanType:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	case *arrow.Int64Type:
		if x, ok := v.(int64); ok {
			return x, nil
		}
	case *arrow.Decimal128Type:
		if d, ok := v.(decimal.Decimal); ok {
			if dt.Precision != money.Precision || dt.Scale != money.Scale {
				return nil, fmt.Errorf("column is %s, money is decimal(%d, %d)", dt, money.Precision, money.Scale)
			}
			n, err := money.ToDecimal128(d)
			if err != nil {
				return nil, err
			}
			return n, nil
		}
	case *arrow.TimestampType:
		if t, ok := v.(time.Time); ok {
			if !temporal.IsNormalized(t) {
				return nil, fmt.Errorf("timestamp %s is not UTC at microsecond precision", t.Format(time.RFC3339Nano))
			}
			return temporal.Micros(t), nil
		}
	default:
		return nil, fmt.Errorf("unsupported column type %s", field.Type)
	}
	return nil, fmt.Errorf("value of type %T does not fit column type %s", v, field.Type)
}

func appendCell(fb array.Builder, cell any) {
	if cell == nil {
		fb.AppendNull()
		return
	}
	switch fb := fb.(type) {
	case *array.StringBuilder:
		fb.Append(cell.(string))
	case *array.BooleanBuilder:
		fb.Append(cell.(bool))
	case *array.Int64Builder:
		fb.Append(cell.(int64))
	case *array.Decimal128Builder:
		fb.Append(cell.(decimal128.Num))
	case *array.TimestampBuilder:
		fb.Append(cell.(arrow.Timestamp))
	}
}
