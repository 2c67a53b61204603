package fixed

import (
	"fmt"
	"strings"

	cosmosmath "cosmossdk.io/math"
	"lukechampine.com/uint128"
)

// Usd8 is an amount of US dollars held as a signed 64-bit integer with
// 8 implied decimal places: value = raw / 10^8.
//
// All arithmetic stays on the raw integer. Conversions to and from decimal
// strings go through cosmossdk.io/math, never through binary floats.
type Usd8 int64

const (
	// Usd8Decimals is the number of implied fractional digits.
	Usd8Decimals = 8

	// Usd8Scale is 10^Usd8Decimals.
	Usd8Scale = int64(100_000_000)
)

var (
	ErrUsd8Overflow   = fmt.Errorf("usd8: value out of int64 range")
	ErrTooManyDigits  = fmt.Errorf("usd8: more than %d fractional digits", Usd8Decimals)
	ErrNegativeAmount = fmt.Errorf("usd8: negative amount where unsigned required")
)

// Usd8FromDecimalString parses a decimal string such as "125.50" into a
// Usd8 value. Strings with more than 8 fractional digits are rejected
// rather than silently rounded.
func Usd8FromDecimalString(s string) (Usd8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("usd8: empty string")
	}
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		if frac := len(s) - dot - 1; frac > Usd8Decimals {
			return 0, ErrTooManyDigits
		}
	}
	dec, err := cosmosmath.LegacyNewDecFromStr(s)
	if err != nil {
		return 0, fmt.Errorf("usd8: parse %q: %w", s, err)
	}
	raw := dec.MulInt64(Usd8Scale).TruncateInt()
	if !raw.IsInt64() {
		return 0, ErrUsd8Overflow
	}
	return Usd8(raw.Int64()), nil
}

// String renders the value with exactly 8 fractional digits, e.g.
// Usd8(12550000000).String() == "125.50000000".
func (u Usd8) String() string {
	raw := int64(u)
	sign := ""
	if raw < 0 {
		sign = "-"
		raw = -raw
	}
	return fmt.Sprintf("%s%d.%08d", sign, raw/Usd8Scale, raw%Usd8Scale)
}

// Dec converts to a cosmossdk legacy decimal for display-layer math.
func (u Usd8) Dec() cosmosmath.LegacyDec {
	return cosmosmath.LegacyNewDec(int64(u)).QuoInt64(Usd8Scale)
}

// Add returns u+v, reporting overflow instead of wrapping.
func (u Usd8) Add(v Usd8) (Usd8, error) {
	sum := int64(u) + int64(v)
	if (int64(u) > 0 && int64(v) > 0 && sum < 0) || (int64(u) < 0 && int64(v) < 0 && sum >= 0) {
		return 0, ErrUsd8Overflow
	}
	return Usd8(sum), nil
}

// Sub returns u-v, reporting overflow instead of wrapping.
func (u Usd8) Sub(v Usd8) (Usd8, error) {
	return u.Add(-v)
}

// MulBps applies a basis-point factor: u * bps / 10_000.
// Intermediate math is 128-bit so the full int64 range is safe.
func (u Usd8) MulBps(bps uint32) Usd8 {
	neg := u < 0
	raw := int64(u)
	if neg {
		raw = -raw
	}
	wide := uint128.From64(uint64(raw)).Mul64(uint64(bps)).Div64(10_000)
	out := int64(wide.Lo)
	if neg {
		out = -out
	}
	return Usd8(out)
}

// GasCostUsd8 computes gasUnits * gasPriceWei * nativeUsdPrice / 10^nativeDecimals
// entirely in integers. nativeUsd is the USD price of one whole native token.
// The single division by the native-token scale happens last so no precision is
// lost to intermediate truncation.
func GasCostUsd8(gasUnits uint64, gasPriceWei uint64, nativeUsd Usd8, nativeDecimals uint8) (Usd8, error) {
	if nativeUsd < 0 {
		return 0, ErrNegativeAmount
	}
	wei := uint128.From64(gasUnits).Mul64(gasPriceWei)
	if wei.Hi != 0 {
		return 0, ErrUsd8Overflow
	}
	total := wei.Mul64(uint64(nativeUsd))
	scale := uint128.From64(1)
	for i := uint8(0); i < nativeDecimals; i++ {
		scale = scale.Mul64(10)
	}
	total = total.Div(scale)
	if total.Hi != 0 || total.Lo > uint64(1)<<62 {
		return 0, ErrUsd8Overflow
	}
	return Usd8(total.Lo), nil
}
