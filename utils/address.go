package utils

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// EthAddressLen is the byte length of an EVM contract address.
const EthAddressLen = 20

// ParseEthAddress decodes a 0x-prefixed (or bare) 40-hex-digit EVM address.
func ParseEthAddress(s string) ([EthAddressLen]byte, error) {
	var out [EthAddressLen]byte
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != EthAddressLen*2 {
		return out, fmt.Errorf("address %q: want %d hex digits, got %d", s, EthAddressLen*2, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("address %q: %w", s, err)
	}
	copy(out[:], raw)
	return out, nil
}

// EthAddressHex renders a 20-byte address as lowercase 0x hex.
func EthAddressHex(addr [EthAddressLen]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// ShortAddress renders "0x1234..abcd" for log lines.
func ShortAddress(addr [EthAddressLen]byte) string {
	full := hex.EncodeToString(addr[:])
	return "0x" + full[:4] + ".." + full[len(full)-4:]
}

// AddressLow64 truncates an address to its low 8 bytes. Instrument ids
// use this as the token's 64-bit asset id.
func AddressLow64(addr [EthAddressLen]byte) uint64 {
	return binary.BigEndian.Uint64(addr[EthAddressLen-8:])
}

// AddressPrefix64 truncates an address to its leading 8 bytes. Compact
// wire fields that display a token tag use the prefix because it matches
// the visible start of the hex address.
func AddressPrefix64(addr [EthAddressLen]byte) uint64 {
	return binary.BigEndian.Uint64(addr[:8])
}

// CompactKey renders a 16-byte cache key in base58 so identifiers stay
// copy-pasteable in logs and dashboards.
func CompactKey(key [16]byte) string {
	return base58.Encode(key[:])
}

// ParseCompactKey reverses CompactKey.
func ParseCompactKey(s string) ([16]byte, error) {
	var out [16]byte
	raw, err := base58.Decode(s)
	if err != nil {
		return out, fmt.Errorf("compact key %q: %w", s, err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("compact key %q: want %d bytes, got %d", s, len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
