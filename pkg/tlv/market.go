package tlv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"lukechampine.com/uint128"

	"github.com/yimingwow/marketfabric/pkg/instrument"
)

// Payload sizes for the market-data schemas.
const (
	TradeSize         = 48
	QuoteSize         = 56
	PoolSwapSize      = 88
	PoolLiquiditySize = 72
	PoolSyncSize      = 56
	BlockHeaderSize   = 56
	TickerSize        = 56
)

var (
	ErrZeroReserve    = errors.New("tlv: zero pool reserve")
	ErrNegativeAmount = errors.New("tlv: negative amount")
)

// Trade is one executed trade. Prices and volumes are 8-decimal
// fixed-point integers; the instrument travels as its full 16-byte
// cache key so consumers can rebuild the bijective id without lookups.
type Trade struct {
	InstrumentKey [16]uint8
	Price         int64  // 8-decimal USD
	Volume        uint64 // 8-decimal units
	Side          uint8  // 0=buy 1=sell
	Reserved      [7]uint8
	TimestampNs   uint64
}

// Instrument rebuilds the full instrument id from the cache key.
func (t *Trade) Instrument() instrument.ID {
	return instrument.FromCacheKey(t.InstrumentKey)
}

// Encode serializes the trade as a fixed little-endian layout.
func (t *Trade) Encode() ([]byte, error) { return encodeBin(t, TradeSize) }

// DecodeTrade parses a trade payload.
func DecodeTrade(data []byte) (*Trade, error) {
	var t Trade
	if err := decodeBin(data, &t, TradeSize); err != nil {
		return nil, err
	}
	return &t, nil
}

// Quote is a top-of-book update.
type Quote struct {
	InstrumentKey [16]uint8
	BidPrice      int64
	BidSize       uint64
	AskPrice      int64
	AskSize       uint64
	TimestampNs   uint64
}

func (q *Quote) Encode() ([]byte, error) { return encodeBin(q, QuoteSize) }

func DecodeQuote(data []byte) (*Quote, error) {
	var q Quote
	if err := decodeBin(data, &q, QuoteSize); err != nil {
		return nil, err
	}
	return &q, nil
}

// Ticker is a rolled-up 24h statistics update.
type Ticker struct {
	InstrumentKey [16]uint8
	LastPrice     int64
	Volume24h     uint64
	High24h       int64
	Low24h        int64
	TimestampNs   uint64
}

func (t *Ticker) Encode() ([]byte, error) { return encodeBin(t, TickerSize) }

func DecodeTicker(data []byte) (*Ticker, error) {
	var t Ticker
	if err := decodeBin(data, &t, TickerSize); err != nil {
		return nil, err
	}
	return &t, nil
}

// BlockHeader announces a new block on a chain venue so downstream
// consumers can align pool events to block boundaries.
type BlockHeader struct {
	Venue       uint16
	Reserved    [6]uint8
	Number      uint64
	Hash        [32]uint8
	TimestampNs uint64
}

func (b *BlockHeader) Encode() ([]byte, error) { return encodeBin(b, BlockHeaderSize) }

func DecodeBlockHeader(data []byte) (*BlockHeader, error) {
	var b BlockHeader
	if err := decodeBin(data, &b, BlockHeaderSize); err != nil {
		return nil, err
	}
	return &b, nil
}

// PoolSwap is a DEX swap event. Amounts are native-precision 128-bit
// integers; decimals ride along so consumers derive display values
// themselves. The sqrt price is the pool's post-swap Q64.64 value.
type PoolSwap struct {
	PoolKey          [16]uint8
	AmountIn         uint128.Uint128
	AmountOut        uint128.Uint128
	TokenInDecimals  uint8
	TokenOutDecimals uint8
	Reserved         [6]uint8
	SqrtPriceQ64     uint128.Uint128
	TickAfter        int32
	Reserved2        [4]uint8
	TimestampNs      uint64
}

// Encode uses an explicit offset walk: the 128-bit fields make this a
// packed layout, and byte-wise stores keep it identical on every target.
func (p *PoolSwap) Encode() ([]byte, error) {
	buf := make([]byte, PoolSwapSize)
	off := 0
	off += copy(buf[off:], p.PoolKey[:])
	p.AmountIn.PutBytes(buf[off : off+16])
	off += 16
	p.AmountOut.PutBytes(buf[off : off+16])
	off += 16
	buf[off] = p.TokenInDecimals
	buf[off+1] = p.TokenOutDecimals
	off += 2
	off += copy(buf[off:], p.Reserved[:])
	p.SqrtPriceQ64.PutBytes(buf[off : off+16])
	off += 16
	binary.LittleEndian.PutUint32(buf[off:], uint32(p.TickAfter))
	off += 4
	off += copy(buf[off:], p.Reserved2[:])
	binary.LittleEndian.PutUint64(buf[off:], p.TimestampNs)
	return buf, nil
}

func DecodePoolSwap(data []byte) (*PoolSwap, error) {
	if len(data) != PoolSwapSize {
		return nil, fmt.Errorf("%w: pool_swap wants %d bytes, got %d", ErrBadSize, PoolSwapSize, len(data))
	}
	var p PoolSwap
	off := 0
	off += copy(p.PoolKey[:], data[off:off+16])
	p.AmountIn = uint128.FromBytes(data[off : off+16])
	off += 16
	p.AmountOut = uint128.FromBytes(data[off : off+16])
	off += 16
	p.TokenInDecimals = data[off]
	p.TokenOutDecimals = data[off+1]
	off += 2
	off += copy(p.Reserved[:], data[off:off+6])
	p.SqrtPriceQ64 = uint128.FromBytes(data[off : off+16])
	off += 16
	p.TickAfter = int32(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	off += copy(p.Reserved2[:], data[off:off+4])
	p.TimestampNs = binary.LittleEndian.Uint64(data[off : off+8])
	return &p, nil
}

// PoolLiquidity carries a mint or burn event; the TLV type distinguishes
// the direction.
type PoolLiquidity struct {
	PoolKey     [16]uint8
	Amount0     uint128.Uint128
	Amount1     uint128.Uint128
	LpAmount    uint128.Uint128
	TimestampNs uint64
}

func (p *PoolLiquidity) Encode() ([]byte, error) {
	buf := make([]byte, PoolLiquiditySize)
	off := copy(buf, p.PoolKey[:])
	p.Amount0.PutBytes(buf[off : off+16])
	off += 16
	p.Amount1.PutBytes(buf[off : off+16])
	off += 16
	p.LpAmount.PutBytes(buf[off : off+16])
	off += 16
	binary.LittleEndian.PutUint64(buf[off:], p.TimestampNs)
	return buf, nil
}

func DecodePoolLiquidity(data []byte) (*PoolLiquidity, error) {
	if len(data) != PoolLiquiditySize {
		return nil, fmt.Errorf("%w: pool liquidity wants %d bytes, got %d", ErrBadSize, PoolLiquiditySize, len(data))
	}
	var p PoolLiquidity
	off := copy(p.PoolKey[:], data[:16])
	p.Amount0 = uint128.FromBytes(data[off : off+16])
	off += 16
	p.Amount1 = uint128.FromBytes(data[off : off+16])
	off += 16
	p.LpAmount = uint128.FromBytes(data[off : off+16])
	off += 16
	p.TimestampNs = binary.LittleEndian.Uint64(data[off : off+8])
	return &p, nil
}

// PoolSync is a full reserve refresh for constant-product pools.
type PoolSync struct {
	PoolKey     [16]uint8
	Reserve0    uint128.Uint128
	Reserve1    uint128.Uint128
	TimestampNs uint64
}

// Validate rejects empty reserves: a zero reserve means the pool cannot
// price anything and any quote derived from it would divide by zero.
func (p *PoolSync) Validate() error {
	if p.Reserve0.IsZero() || p.Reserve1.IsZero() {
		return ErrZeroReserve
	}
	return nil
}

func (p *PoolSync) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, PoolSyncSize)
	off := copy(buf, p.PoolKey[:])
	p.Reserve0.PutBytes(buf[off : off+16])
	off += 16
	p.Reserve1.PutBytes(buf[off : off+16])
	off += 16
	binary.LittleEndian.PutUint64(buf[off:], p.TimestampNs)
	return buf, nil
}

func DecodePoolSync(data []byte) (*PoolSync, error) {
	if len(data) != PoolSyncSize {
		return nil, fmt.Errorf("%w: pool_sync wants %d bytes, got %d", ErrBadSize, PoolSyncSize, len(data))
	}
	var p PoolSync
	off := copy(p.PoolKey[:], data[:16])
	p.Reserve0 = uint128.FromBytes(data[off : off+16])
	off += 16
	p.Reserve1 = uint128.FromBytes(data[off : off+16])
	off += 16
	p.TimestampNs = binary.LittleEndian.Uint64(data[off : off+8])
	return &p, nil
}

// encodeBin serializes a fixed-layout struct with the little-endian bin
// encoder and asserts the result matches the registered size.
func encodeBin(v interface{}, want int) ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBinEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("tlv: encode: %w", err)
	}
	if buf.Len() != want {
		return nil, fmt.Errorf("tlv: encoded %d bytes, schema says %d", buf.Len(), want)
	}
	return buf.Bytes(), nil
}

// decodeBin parses a fixed-layout struct, requiring an exact-size payload.
func decodeBin(data []byte, v interface{}, want int) error {
	if len(data) != want {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrBadSize, want, len(data))
	}
	if err := bin.NewBinDecoder(data).Decode(v); err != nil {
		return fmt.Errorf("tlv: decode: %w", err)
	}
	return nil
}
