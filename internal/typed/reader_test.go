package typed

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/rawlayer/pkg/money"
	"github.com/TFMV/rawlayer/pkg/temporal"
)

type TestRow struct {
	ID    int32  `arrow:"id"`
	Name  string `arrow:"name"`
	Valid bool   `arrow:"valid"`
}

type chargeRow struct {
	ChargeID uuid.UUID       `arrow:"charge_id"`
	Email    *string         `arrow:"email"`
	Amount   decimal.Decimal `arrow:"amount"`
	PaidTS   time.Time       `arrow:"paid_ts"`
}

func TestReader(t *testing.T) {
	schema := arrow.NewSchema(
		[]arrow.Field{
			{Name: "id", Type: arrow.PrimitiveTypes.Int32},
			{Name: "name", Type: arrow.BinaryTypes.String},
			{Name: "valid", Type: arrow.FixedWidthTypes.Boolean},
		},
		nil,
	)
	pool := memory.NewGoAllocator()

	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()
	b.Field(0).(*array.Int32Builder).AppendValues([]int32{1, 2, 3}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"Alice", "Bob", "Charlie"}, nil)
	b.Field(2).(*array.BooleanBuilder).AppendValues([]bool{true, false, true}, nil)
	first := b.NewRecord()
	defer first.Release()

	b.Field(0).(*array.Int32Builder).Append(4)
	b.Field(1).(*array.StringBuilder).Append("Dana")
	b.Field(2).(*array.BooleanBuilder).Append(false)
	second := b.NewRecord()
	defer second.Release()

	reader := NewReader[TestRow](first, second)
	assert.Equal(t, int64(4), reader.NumRows())

	row, err := reader.Value(0)
	assert.NoError(t, err)
	assert.Equal(t, TestRow{ID: 1, Name: "Alice", Valid: true}, row)

	row, err = reader.Value(3)
	assert.NoError(t, err)
	assert.Equal(t, TestRow{ID: 4, Name: "Dana", Valid: false}, row)

	_, err = reader.Value(4)
	assert.Error(t, err)
	_, err = reader.Value(-1)
	assert.Error(t, err)

	var names []string
	require.NoError(t, reader.Each(func(r TestRow) error {
		names = append(names, r.Name)
		return nil
	}))
	assert.Equal(t, []string{"Alice", "Bob", "Charlie", "Dana"}, names)
}

func TestReaderWarehouseTypes(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "charge_id", Type: arrow.BinaryTypes.String},
		{Name: "email", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "amount", Type: money.Type},
		{Name: "paid_ts", Type: temporal.Type},
	}, nil)

	id := uuid.MustParse("0b5c2c4e-5f6d-4e8a-9b1c-2d3e4f5a6b7c")
	paid := time.Date(2024, 11, 3, 10, 4, 5, 123456000, time.UTC)

	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	for i := 0; i < 2; i++ {
		b.Field(0).(*array.StringBuilder).Append(id.String())
		b.Field(2).(*array.Decimal128Builder).Append(decimal128.FromI64(1999))
		b.Field(3).(*array.TimestampBuilder).Append(temporal.Micros(paid))
	}
	b.Field(1).(*array.StringBuilder).Append("ann@example.com")
	b.Field(1).(*array.StringBuilder).AppendNull()
	rec := b.NewRecord()
	defer rec.Release()

	reader := NewReader[chargeRow](rec)
	row, err := reader.Value(0)
	require.NoError(t, err)
	assert.Equal(t, id, row.ChargeID)
	require.NotNil(t, row.Email)
	assert.Equal(t, "ann@example.com", *row.Email)
	assert.Equal(t, "19.99", row.Amount.StringFixed(2))
	assert.True(t, paid.Equal(row.PaidTS))

	row, err = reader.Value(1)
	require.NoError(t, err)
	assert.Nil(t, row.Email)
}

func TestReaderMissingField(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int32}}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	b.Field(0).(*array.Int32Builder).Append(1)
	rec := b.NewRecord()
	defer rec.Release()

	_, err := NewReader[TestRow](rec).Value(0)
	assert.ErrorContains(t, err, "name")

	assert.Panics(t, func() { NewReader[int](rec) })
}
