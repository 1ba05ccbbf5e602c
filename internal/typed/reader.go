// Package typed decodes Arrow records into Go structs by `arrow` field tags.
package typed

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/TFMV/rawlayer/pkg/money"
	"github.com/TFMV/rawlayer/pkg/temporal"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
)

// Reader exposes the rows of a sequence of records as values of T.
// Pointer fields receive nil for null cells; other fields keep their zero value.
type Reader[T any] struct {
	records []arrow.Record
	names   []string
	columns [][]int
}

// NewReader panics when T is not a struct.
func NewReader[T any](records ...arrow.Record) *Reader[T] {
	var a T
	r := reflect.TypeOf(a)
	for r.Kind() == reflect.Ptr {
		r = r.Elem()
	}
	if r.Kind() != reflect.Struct {
		panic("rawlayer/typed: " + r.String() + " is not supported")
	}

	names := make([]string, r.NumField())
	for j := range names {
		field := r.Field(j)
		names[j] = field.Tag.Get("arrow")
		if names[j] == "" {
			names[j] = field.Name
		}
	}
	return &Reader[T]{records: records, names: names, columns: make([][]int, len(records))}
}

func (r *Reader[T]) NumRows() int64 {
	var rows int64
	for _, record := range r.records {
		rows += record.NumRows()
	}
	return rows
}

// Value decodes row i, counted across all records.
func (r *Reader[T]) Value(i int) (T, error) {
	var row T

	k := -1
	var previousRows int64
	for idx, rec := range r.records {
		if int64(i) < previousRows+rec.NumRows() {
			k = idx
			i -= int(previousRows)
			break
		}
		previousRows += rec.NumRows()
	}
	if i < 0 || k < 0 {
		return row, errors.New("index out of range")
	}
	record := r.records[k]

	cols, err := r.resolve(k)
	if err != nil {
		return row, err
	}

	rowVal := reflect.ValueOf(&row).Elem()
	for j, c := range cols {
		if err := setValue(rowVal.Field(j), record.Column(c), i); err != nil {
			return row, fmt.Errorf("field %s: %w", r.names[j], err)
		}
	}
	return row, nil
}

// Each decodes every row in order.
func (r *Reader[T]) Each(fn func(T) error) error {
	n := int(r.NumRows())
	for i := 0; i < n; i++ {
		row, err := r.Value(i)
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader[T]) resolve(k int) ([]int, error) {
	if r.columns[k] != nil {
		return r.columns[k], nil
	}
	sc := r.records[k].Schema()
	cols := make([]int, len(r.names))
	for j, name := range r.names {
		indices := sc.FieldIndices(name)
		if len(indices) != 1 {
			return nil, errors.New("field " + name + " not found or ambiguous")
		}
		cols[j] = indices[0]
	}
	r.columns[k] = cols
	return cols, nil
}

func setValue(field reflect.Value, col arrow.Array, idx int) error {
	if col.IsNull(idx) {
		return nil
	}
	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(field.Type().Elem())
		if err := setValue(ptr.Elem(), col, idx); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		field.SetBool(arr.Value(idx))
	case *array.Float32:
		field.SetFloat(float64(arr.Value(idx)))
	case *array.Float64:
		field.SetFloat(arr.Value(idx))
	case *array.Int8:
		field.SetInt(int64(arr.Value(idx)))
	case *array.Int16:
		field.SetInt(int64(arr.Value(idx)))
	case *array.Int32:
		field.SetInt(int64(arr.Value(idx)))
	case *array.Int64:
		field.SetInt(arr.Value(idx))
	case *array.Uint64:
		field.SetUint(arr.Value(idx))
	case *array.String:
		if field.Type() == uuidType {
			id, err := uuid.Parse(arr.Value(idx))
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(id))
			return nil
		}
		field.SetString(arr.Value(idx))
	case *array.Timestamp:
		if field.Type() != timeType {
			return errors.New("timestamp column needs a time.Time field")
		}
		field.Set(reflect.ValueOf(temporal.FromMicros(arr.Value(idx))))
	case *array.Decimal128:
		if field.Type() != decimalType {
			return errors.New("decimal column needs a decimal.Decimal field")
		}
		scale := arr.DataType().(*arrow.Decimal128Type).Scale
		field.Set(reflect.ValueOf(money.FromDecimal128(arr.Value(idx), scale)))
	default:
		return errors.New("unsupported type " + reflect.TypeOf(col).String())
	}
	return nil
}
