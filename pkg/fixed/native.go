package fixed

import (
	"fmt"

	"lukechampine.com/uint128"
)

// Native carries a token amount in its venue-native precision, together
// with the token's decimal count. The fabric never normalizes these:
// consumers receive amount and decimals and derive display values
// themselves (18 for most EVM tokens, 6 for USDC/USDT, 8 for BTC).
type Native struct {
	Amount   uint128.Uint128
	Decimals uint8
}

// NativeFrom64 wraps a 64-bit raw amount.
func NativeFrom64(amount uint64, decimals uint8) Native {
	return Native{Amount: uint128.From64(amount), Decimals: decimals}
}

// DecimalString renders the amount at native precision via integer math.
func (n Native) DecimalString() string {
	scale := uint128.From64(1)
	for i := uint8(0); i < n.Decimals; i++ {
		scale = scale.Mul64(10)
	}
	whole := n.Amount.Div(scale)
	frac := n.Amount.Mod(scale)
	if n.Decimals == 0 {
		return whole.String()
	}
	fracStr := frac.String()
	for len(fracStr) < int(n.Decimals) {
		fracStr = "0" + fracStr
	}
	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}
