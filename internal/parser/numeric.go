package parser

import (
	"math/big"
	"strings"
)

// DefaultPrecision and DefaultScale match the warehouse's NUMERIC(19,8)
// money columns, the only RoundingNumeric shape this pipeline currently
// targets.
const (
	DefaultPrecision = 19
	DefaultScale     = 8
)

var maxInt63 = big.NewInt(1<<63 - 1)

// RenderRoundingNumeric clamps and rounds a raw decimal string (as
// test_decoding prints a numeric/decimal column) to fit NUMERIC(precision,
// scale), returning the canonical fixed-point rendering.
//
// Values whose integer part has more digits than precision-scale are
// clamped to the largest representable magnitude ("999...9.999...9") with
// the original sign. Otherwise the value is rounded half-away-from-zero
// to scale decimal places. When precision is 19 the rounded unscaled
// integer is additionally clamped to ±(2^63-1): Redshift stores
// NUMERIC(19,x) using a 64-bit two's-complement unscaled integer
// internally, and a value at the edge of 19 digits can overflow that
// representation even though it fits in the printed precision.
func RenderRoundingNumeric(raw string, precision, scale int) string {
	raw = strings.TrimSpace(raw)
	negative := strings.HasPrefix(raw, "-")
	unsigned := strings.TrimPrefix(raw, "-")
	unsigned = strings.TrimPrefix(unsigned, "+")

	intPart, fracPart, _ := strings.Cut(unsigned, ".")
	intDigits := strings.TrimLeft(intPart, "0")
	if intDigits == "" {
		intDigits = "0"
	}
	maxIntDigits := precision - scale

	if len(intDigits) > maxIntDigits {
		sign := ""
		if negative {
			sign = "-"
		}
		return sign + strings.Repeat("9", maxIntDigits) + "." + strings.Repeat("9", scale)
	}

	r := new(big.Rat)
	if _, ok := r.SetString(unsigned); !ok {
		r.SetInt64(0)
	}
	scaleFactor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scaleFactor))

	num := scaled.Num()
	den := scaled.Denom()
	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	remTimes2 := new(big.Int).Lsh(new(big.Int).Abs(rem), 1)
	if remTimes2.Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}

	if precision == 19 && q.CmpAbs(maxInt63) > 0 {
		q.Set(maxInt63)
	}

	unscaled := q.Abs(q).String()
	for len(unscaled) <= scale {
		unscaled = "0" + unscaled
	}
	split := len(unscaled) - scale
	result := unscaled[:split] + "." + unscaled[split:]
	if negative && q.Sign() != 0 {
		result = "-" + result
	}
	return result
}
