package instrument

import "lukechampine.com/uint128"

// cantorPair computes the Cantor pairing of a and b in canonical order:
// inputs are sorted first so cantorPair(a, b) == cantorPair(b, a).
// Inputs must already be projected to 31 bits; with a,b <= 2^31-1 the
// intermediate (a+b)*(a+b+1) stays within 64 bits.
func cantorPair(a, b uint64) uint64 {
	if a > b {
		a, b = b, a
	}
	s := a + b
	return s*(s+1)/2 + b
}

// cantorTriple pairs three values after a full sort, as pair(pair(x,y), z).
// Inputs are projected to 21 bits; the outer pairing can still exceed 64
// bits, so it runs at 128-bit width and keeps the low 64 bits. The result
// stays a pure function of the sorted triple, which is all the identity
// scheme requires.
func cantorTriple(a, b, c uint64) uint64 {
	x, y, z := sort3(a, b, c)
	lo, hi := cantorPair(x, y), z
	if lo > hi {
		lo, hi = hi, lo
	}
	s := uint128.From64(lo).Add64(hi)
	paired := s.Mul(s.Add64(1)).Div64(2).Add64(hi)
	return paired.Lo
}

func sort3(a, b, c uint64) (uint64, uint64, uint64) {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return a, b, c
}

// project31 folds a 64-bit asset id onto 31 bits for pairwise pooling.
func project31(v uint64) uint64 {
	return (v ^ v>>31) & 0x7FFF_FFFF
}

// project21 folds a 64-bit asset id onto 21 bits for triangular pooling.
func project21(v uint64) uint64 {
	return (v ^ v>>21 ^ v>>42) & 0x1F_FFFF
}
