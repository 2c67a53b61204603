package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEthAddressRoundTrip(t *testing.T) {
	addr, err := ParseEthAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	require.NoError(t, err)
	assert.Equal(t, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", EthAddressHex(addr))
	assert.Equal(t, "0xc02a..6cc2", ShortAddress(addr))

	// Bare form parses too.
	bare, err := ParseEthAddress("C02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	require.NoError(t, err)
	assert.Equal(t, addr, bare)

	_, err = ParseEthAddress("0x1234")
	assert.Error(t, err)
	_, err = ParseEthAddress("0xZZZaaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	assert.Error(t, err)
}

func TestAddressTruncations(t *testing.T) {
	addr, err := ParseEthAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2791bca1f2de4661), AddressPrefix64(addr))
	assert.Equal(t, uint64(0x99a7a9449aa84174), AddressLow64(addr))
}

func TestCompactKeyRoundTrip(t *testing.T) {
	key := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	s := CompactKey(key)
	back, err := ParseCompactKey(s)
	require.NoError(t, err)
	assert.Equal(t, key, back)

	_, err = ParseCompactKey("0OIl") // invalid base58 alphabet
	assert.Error(t, err)
}
