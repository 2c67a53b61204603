package tlv

import (
	"encoding/binary"
	"fmt"
)

// OrderBook layout constants. The payload is variable: a fixed prefix
// followed by bid levels then ask levels, 16 bytes per level.
const (
	orderBookPrefixSize = 16 + 2 + 2 + 4 + 8
	orderBookLevelSize  = 16
)

// BookLevel is one price level, 8-decimal fixed-point on both axes.
type BookLevel struct {
	Price int64
	Size  uint64
}

// OrderBook is a depth snapshot or delta. Bids descend, asks ascend;
// producers are responsible for level ordering.
type OrderBook struct {
	InstrumentKey [16]uint8
	Depth         uint16 // levels per side the producer tracks
	Flags         uint16 // bit 0: 1=snapshot 0=delta
	Bids          []BookLevel
	Asks          []BookLevel
	TimestampNs   uint64
}

// Snapshot flag bit.
const BookSnapshot uint16 = 1

// Encode lays out prefix, bids, asks. Level counts travel in the prefix
// so the decoder needs no sentinel records.
func (b *OrderBook) Encode() ([]byte, error) {
	total := orderBookPrefixSize + (len(b.Bids)+len(b.Asks))*orderBookLevelSize
	if len(b.Bids) > 0xFFFF || len(b.Asks) > 0xFFFF {
		return nil, fmt.Errorf("tlv: order book sides exceed u16 level counts")
	}
	buf := make([]byte, total)
	off := copy(buf, b.InstrumentKey[:])
	binary.LittleEndian.PutUint16(buf[off:], b.Depth)
	binary.LittleEndian.PutUint16(buf[off+2:], b.Flags)
	binary.LittleEndian.PutUint16(buf[off+4:], uint16(len(b.Bids)))
	binary.LittleEndian.PutUint16(buf[off+6:], uint16(len(b.Asks)))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], b.TimestampNs)
	off += 8
	for _, lvl := range b.Bids {
		binary.LittleEndian.PutUint64(buf[off:], uint64(lvl.Price))
		binary.LittleEndian.PutUint64(buf[off+8:], lvl.Size)
		off += orderBookLevelSize
	}
	for _, lvl := range b.Asks {
		binary.LittleEndian.PutUint64(buf[off:], uint64(lvl.Price))
		binary.LittleEndian.PutUint64(buf[off+8:], lvl.Size)
		off += orderBookLevelSize
	}
	return buf, nil
}

// DecodeOrderBook reverses Encode, requiring the payload length to match
// the declared level counts exactly.
func DecodeOrderBook(data []byte) (*OrderBook, error) {
	if len(data) < orderBookPrefixSize {
		return nil, fmt.Errorf("%w: order book prefix wants %d bytes, got %d", ErrBadSize, orderBookPrefixSize, len(data))
	}
	var b OrderBook
	off := copy(b.InstrumentKey[:], data[:16])
	b.Depth = binary.LittleEndian.Uint16(data[off:])
	b.Flags = binary.LittleEndian.Uint16(data[off+2:])
	nBids := int(binary.LittleEndian.Uint16(data[off+4:]))
	nAsks := int(binary.LittleEndian.Uint16(data[off+6:]))
	off += 8
	b.TimestampNs = binary.LittleEndian.Uint64(data[off:])
	off += 8

	want := orderBookPrefixSize + (nBids+nAsks)*orderBookLevelSize
	if len(data) != want {
		return nil, fmt.Errorf("%w: order book wants %d bytes for %d+%d levels, got %d", ErrBadSize, want, nBids, nAsks, len(data))
	}
	readLevels := func(n int) []BookLevel {
		if n == 0 {
			return nil
		}
		out := make([]BookLevel, n)
		for i := range out {
			out[i].Price = int64(binary.LittleEndian.Uint64(data[off:]))
			out[i].Size = binary.LittleEndian.Uint64(data[off+8:])
			off += orderBookLevelSize
		}
		return out
	}
	b.Bids = readLevels(nBids)
	b.Asks = readLevels(nAsks)
	return &b, nil
}
