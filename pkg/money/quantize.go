// Package money converts approximate numeric values into the exact fixed-point form
// the warehouse stores money in: DECIMAL(38,2).
package money

import (
	"math"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/shopspring/decimal"

	"github.com/TFMV/rawlayer/pkg/core"
)

const (
	// Precision is the total number of digits of the external decimal type.
	Precision = 38
	// Scale is the number of fractional digits of the external decimal type.
	Scale = 2
)

// Type is the Arrow type of every money column.
var Type = &arrow.Decimal128Type{Precision: Precision, Scale: Scale}

// limit is the smallest magnitude that no longer fits: 10^(Precision-Scale).
var limit = decimal.New(1, Precision-Scale)

// Quantize returns x as an exact decimal with exactly two fractional digits, rounding
// half away from zero on the shortest decimal representation of x.
func Quantize(x float64) (decimal.Decimal, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return decimal.Zero, &core.PrecisionError{
			Value:  strconv.FormatFloat(x, 'g', -1, 64),
			Reason: "not a finite number",
		}
	}
	return QuantizeDecimal(decimal.NewFromFloat(x))
}

// QuantizeDecimal rounds d to two fractional digits, half away from zero.
// It is idempotent.
func QuantizeDecimal(d decimal.Decimal) (decimal.Decimal, error) {
	q := d.Round(Scale)
	if q.Abs().Cmp(limit) >= 0 {
		return decimal.Zero, &core.PrecisionError{
			Value:  d.String(),
			Reason: "exceeds DECIMAL(38,2)",
		}
	}
	return q, nil
}

// Mul returns quantize(a × b). The product is computed exactly before rounding.
func Mul(a, b decimal.Decimal) (decimal.Decimal, error) {
	return QuantizeDecimal(a.Mul(b))
}

// IsQuantized reports whether d carries exactly two fractional digits and fits
// DECIMAL(38,2).
func IsQuantized(d decimal.Decimal) bool {
	return d.Exponent() == -Scale && d.Abs().Cmp(limit) < 0
}

// ToDecimal128 converts a quantized value to its Arrow representation at scale 2.
func ToDecimal128(d decimal.Decimal) (decimal128.Num, error) {
	if d.Exponent() != -Scale {
		return decimal128.Num{}, &core.PrecisionError{
			Value:  d.String(),
			Reason: "value is not quantized to 2 fractional digits",
		}
	}
	n := decimal128.FromBigInt(d.Coefficient())
	if !n.FitsInPrecision(Precision) {
		return decimal128.Num{}, &core.PrecisionError{
			Value:  d.String(),
			Reason: "exceeds DECIMAL(38,2)",
		}
	}
	return n, nil
}

// FromDecimal128 converts an Arrow decimal with the given scale back to a decimal.
func FromDecimal128(n decimal128.Num, scale int32) decimal.Decimal {
	return decimal.NewFromBigInt(n.BigInt(), -scale)
}
