package fixed

import (
	"fmt"

	"lukechampine.com/uint128"
)

// UQ64x64 is an unsigned 128-bit fixed-point number with 64 integer and
// 64 fractional bits: value = raw / 2^64. This is the same encoding DEX
// contracts use for sqrt prices; here it carries profit, capital, gas and
// trade-size figures in the demo arbitrage payload.
type UQ64x64 struct {
	Raw uint128.Uint128
}

// Q64x64 is the signed variant. Sign is carried out-of-band because the
// magnitude math is identical to the unsigned form.
type Q64x64 struct {
	Neg bool
	Raw uint128.Uint128
}

var ErrQ64Overflow = fmt.Errorf("q64: integer part exceeds 64 bits")

// UQ64FromUint converts a whole number to UQ64x64.
func UQ64FromUint(v uint64) UQ64x64 {
	return UQ64x64{Raw: uint128.Uint128{Lo: 0, Hi: v}}
}

// UQ64FromRatio builds num/den as a UQ64x64 using shift-then-divide.
// den must be non-zero.
func UQ64FromRatio(num, den uint64) (UQ64x64, error) {
	if den == 0 {
		return UQ64x64{}, fmt.Errorf("q64: division by zero")
	}
	// (num << 64) / den without overflow: the shifted value occupies Hi.
	shifted := uint128.Uint128{Lo: 0, Hi: num}
	return UQ64x64{Raw: shifted.Div64(den)}, nil
}

// UQ64FromUsd8 re-scales an 8-decimal USD amount into UQ64x64.
func UQ64FromUsd8(u Usd8) (UQ64x64, error) {
	if u < 0 {
		return UQ64x64{}, ErrNegativeAmount
	}
	whole := UQ64FromUint(uint64(u))
	return UQ64x64{Raw: whole.Raw.Div64(uint64(Usd8Scale))}, nil
}

// Q64FromUsd8 re-scales a signed 8-decimal USD amount into Q64x64.
func Q64FromUsd8(u Usd8) Q64x64 {
	neg := u < 0
	raw := int64(u)
	if neg {
		raw = -raw
	}
	uq, _ := UQ64FromUsd8(Usd8(raw))
	return Q64x64{Neg: neg, Raw: uq.Raw}
}

// Uint returns the integer part, truncating the fraction.
func (q UQ64x64) Uint() uint64 {
	return q.Raw.Hi
}

// Mul64 multiplies by a whole number, reporting overflow of the integer part.
func (q UQ64x64) Mul64(v uint64) (UQ64x64, error) {
	hi, carry := mul64(q.Raw.Hi, v)
	if carry != 0 {
		return UQ64x64{}, ErrQ64Overflow
	}
	lo, loCarry := mul64(q.Raw.Lo, v)
	hi2 := hi + loCarry
	if hi2 < hi {
		return UQ64x64{}, ErrQ64Overflow
	}
	return UQ64x64{Raw: uint128.Uint128{Lo: lo, Hi: hi2}}, nil
}

func mul64(a, b uint64) (lo, hi uint64) {
	p := uint128.From64(a).Mul64(b)
	return p.Lo, p.Hi
}

// DecimalString renders the value with the requested number of fractional
// digits using integer long division of the fractional half. No floats.
func (q UQ64x64) DecimalString(fracDigits int) string {
	if fracDigits <= 0 {
		return fmt.Sprintf("%d", q.Raw.Hi)
	}
	frac := uint128.Uint128{Lo: q.Raw.Lo, Hi: 0}
	digits := make([]byte, 0, fracDigits)
	for i := 0; i < fracDigits; i++ {
		frac = frac.Mul64(10)
		digits = append(digits, byte('0'+frac.Hi))
		frac.Hi = 0
	}
	return fmt.Sprintf("%d.%s", q.Raw.Hi, digits)
}

// DecimalString renders the signed value; see UQ64x64.DecimalString.
func (q Q64x64) DecimalString(fracDigits int) string {
	s := (UQ64x64{Raw: q.Raw}).DecimalString(fracDigits)
	if q.Neg && !q.Raw.IsZero() {
		return "-" + s
	}
	return s
}

// Bytes returns the 16-byte little-endian encoding of the raw value.
func (q UQ64x64) Bytes() [16]byte {
	var b [16]byte
	q.Raw.PutBytes(b[:])
	return b
}

// UQ64FromBytes reads a little-endian 16-byte raw value.
func UQ64FromBytes(b []byte) UQ64x64 {
	return UQ64x64{Raw: uint128.FromBytes(b)}
}

// TwosComplement returns the two's-complement raw 128-bit encoding of the
// signed value, for packed wire layouts that store i128.
func (q Q64x64) TwosComplement() uint128.Uint128 {
	if !q.Neg || q.Raw.IsZero() {
		return q.Raw
	}
	zero := uint128.Uint128{}
	return zero.SubWrap(q.Raw)
}

// Q64FromTwosComplement decodes a raw i128 two's-complement value.
func Q64FromTwosComplement(raw uint128.Uint128) Q64x64 {
	if raw.Hi>>63 == 0 {
		return Q64x64{Raw: raw}
	}
	zero := uint128.Uint128{}
	return Q64x64{Neg: true, Raw: zero.SubWrap(raw)}
}
