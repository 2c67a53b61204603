package tlv

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/uint128"

	"github.com/yimingwow/marketfabric/pkg/fixed"
	"github.com/yimingwow/marketfabric/pkg/instrument"
)

// DemoDeFiArbitrageSize is the exact packed payload length.
const DemoDeFiArbitrageSize = 184

// DemoDeFiArbitrage is the dashboard demo arbitrage payload. It proves
// precision composition end to end: profit, capital, gas and trade size
// travel as Q64.64 so the dashboard can render sub-cent values without a
// float anywhere between strategy and screen.
//
// The payload is always emitted under extended TLV framing.
type DemoDeFiArbitrage struct {
	// Strategy identity
	StrategyID uint16
	SignalID   uint64
	Confidence uint8 // 0-100
	ChainID    uint8 // 1=Ethereum, 137=Polygon

	// Economics, Q64.64
	ExpectedProfit   fixed.Q64x64  // USD
	RequiredCapital  fixed.UQ64x64 // USD
	EstimatedGasCost fixed.UQ64x64 // native token

	// Pool descriptors
	VenueA uint16
	VenueB uint16
	PoolA  [20]uint8
	PadA   [12]uint8
	PoolB  [20]uint8
	PadB   [12]uint8

	// Trade execution
	TokenIn       uint64 // leading 8 bytes of the token address
	TokenOut      uint64
	OptimalAmount fixed.UQ64x64

	// Risk parameters
	SlippageBps     uint16
	MaxGasPriceGwei uint32
	ValidUntil      uint32 // unix seconds
	Priority        uint8  // 0-255, higher is more urgent
	Reserved        [5]uint8

	TimestampNs uint64
}

// IsValid reports whether the opportunity is still actionable at the
// given unix-seconds clock reading.
func (d *DemoDeFiArbitrage) IsValid(nowUnix uint32) bool {
	return nowUnix <= d.ValidUntil
}

// VenueAID typed view of the first pool's venue.
func (d *DemoDeFiArbitrage) VenueAID() instrument.VenueId { return instrument.VenueId(d.VenueA) }

// VenueBID typed view of the second pool's venue.
func (d *DemoDeFiArbitrage) VenueBID() instrument.VenueId { return instrument.VenueId(d.VenueB) }

// Encode lays the struct out packed, little-endian, exactly
// DemoDeFiArbitrageSize bytes. Every multi-byte field goes through
// byte-wise stores; the layout carries unaligned fields by construction.
func (d *DemoDeFiArbitrage) Encode() ([]byte, error) {
	buf := make([]byte, DemoDeFiArbitrageSize)
	off := 0

	binary.LittleEndian.PutUint16(buf[off:], d.StrategyID)
	off += 2
	binary.LittleEndian.PutUint64(buf[off:], d.SignalID)
	off += 8
	buf[off] = d.Confidence
	buf[off+1] = d.ChainID
	off += 2

	d.ExpectedProfit.TwosComplement().PutBytes(buf[off : off+16])
	off += 16
	d.RequiredCapital.Raw.PutBytes(buf[off : off+16])
	off += 16
	d.EstimatedGasCost.Raw.PutBytes(buf[off : off+16])
	off += 16

	binary.LittleEndian.PutUint16(buf[off:], d.VenueA)
	binary.LittleEndian.PutUint16(buf[off+2:], d.VenueB)
	off += 4
	off += copy(buf[off:], d.PoolA[:])
	off += copy(buf[off:], d.PadA[:])
	off += copy(buf[off:], d.PoolB[:])
	off += copy(buf[off:], d.PadB[:])

	binary.LittleEndian.PutUint64(buf[off:], d.TokenIn)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], d.TokenOut)
	off += 8
	d.OptimalAmount.Raw.PutBytes(buf[off : off+16])
	off += 16

	binary.LittleEndian.PutUint16(buf[off:], d.SlippageBps)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], d.MaxGasPriceGwei)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], d.ValidUntil)
	off += 4
	buf[off] = d.Priority
	off++
	off += copy(buf[off:], d.Reserved[:])

	binary.LittleEndian.PutUint64(buf[off:], d.TimestampNs)
	off += 8

	if off != DemoDeFiArbitrageSize {
		return nil, fmt.Errorf("tlv: demo defi layout drifted: %d != %d", off, DemoDeFiArbitrageSize)
	}
	return buf, nil
}

// DecodeDemoDeFiArbitrage reverses Encode.
func DecodeDemoDeFiArbitrage(data []byte) (*DemoDeFiArbitrage, error) {
	if len(data) != DemoDeFiArbitrageSize {
		return nil, fmt.Errorf("%w: demo defi wants %d bytes, got %d", ErrBadSize, DemoDeFiArbitrageSize, len(data))
	}
	var d DemoDeFiArbitrage
	off := 0

	d.StrategyID = binary.LittleEndian.Uint16(data[off:])
	off += 2
	d.SignalID = binary.LittleEndian.Uint64(data[off:])
	off += 8
	d.Confidence = data[off]
	d.ChainID = data[off+1]
	off += 2

	d.ExpectedProfit = fixed.Q64FromTwosComplement(uint128.FromBytes(data[off : off+16]))
	off += 16
	d.RequiredCapital = fixed.UQ64FromBytes(data[off : off+16])
	off += 16
	d.EstimatedGasCost = fixed.UQ64FromBytes(data[off : off+16])
	off += 16

	d.VenueA = binary.LittleEndian.Uint16(data[off:])
	d.VenueB = binary.LittleEndian.Uint16(data[off+2:])
	off += 4
	off += copy(d.PoolA[:], data[off:])
	off += copy(d.PadA[:], data[off:])
	off += copy(d.PoolB[:], data[off:])
	off += copy(d.PadB[:], data[off:])

	d.TokenIn = binary.LittleEndian.Uint64(data[off:])
	off += 8
	d.TokenOut = binary.LittleEndian.Uint64(data[off:])
	off += 8
	d.OptimalAmount = fixed.UQ64FromBytes(data[off : off+16])
	off += 16

	d.SlippageBps = binary.LittleEndian.Uint16(data[off:])
	off += 2
	d.MaxGasPriceGwei = binary.LittleEndian.Uint32(data[off:])
	off += 4
	d.ValidUntil = binary.LittleEndian.Uint32(data[off:])
	off += 4
	d.Priority = data[off]
	off++
	off += copy(d.Reserved[:], data[off:])

	d.TimestampNs = binary.LittleEndian.Uint64(data[off:])
	return &d, nil
}
