package ring

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// RecordSize is the slot width. One record occupies exactly one cache
// line so adjacent slots never share a line.
const RecordSize = 64

// Record is the fixed shared-memory message slot:
//
//	 0: 8  timestamp_ns
//	 8:24  fingerprint or symbol, NUL-padded
//	24:40  venue tag, NUL-padded
//	40:48  primary value (price)
//	48:56  secondary value (volume)
//	56     side / flag bits
//	57:64  low 7 bytes of the xxhash of the full event id
//
// The ring is the low-latency display path; the full event id and exact
// fixed-point figures travel on the TLV path. The 56-bit id hash is a
// dedup discriminator, not a recoverable identifier.
type Record struct {
	TimestampNs uint64
	Fingerprint [16]byte
	Venue       [16]byte
	Primary     float64
	Secondary   float64
	SideFlags   uint8
	IDHash      [7]byte
}

// SetID stores the truncated hash of an event id string.
func (r *Record) SetID(id string) {
	var full [8]byte
	binary.LittleEndian.PutUint64(full[:], xxhash.Sum64String(id))
	copy(r.IDHash[:], full[:7])
}

// SetFingerprint stores a symbol or fingerprint, truncating to 16 bytes.
func (r *Record) SetFingerprint(s string) {
	r.Fingerprint = [16]byte{}
	copy(r.Fingerprint[:], s)
}

// SetVenue stores a venue tag, truncating to 16 bytes.
func (r *Record) SetVenue(s string) {
	r.Venue = [16]byte{}
	copy(r.Venue[:], s)
}

func (r *Record) encodeTo(slot []byte) {
	binary.LittleEndian.PutUint64(slot[0:8], r.TimestampNs)
	copy(slot[8:24], r.Fingerprint[:])
	copy(slot[24:40], r.Venue[:])
	binary.LittleEndian.PutUint64(slot[40:48], math.Float64bits(r.Primary))
	binary.LittleEndian.PutUint64(slot[48:56], math.Float64bits(r.Secondary))
	slot[56] = r.SideFlags
	copy(slot[57:64], r.IDHash[:])
}

func decodeRecord(slot []byte) Record {
	var r Record
	r.TimestampNs = binary.LittleEndian.Uint64(slot[0:8])
	copy(r.Fingerprint[:], slot[8:24])
	copy(r.Venue[:], slot[24:40])
	r.Primary = math.Float64frombits(binary.LittleEndian.Uint64(slot[40:48]))
	r.Secondary = math.Float64frombits(binary.LittleEndian.Uint64(slot[48:56]))
	r.SideFlags = slot[56]
	copy(r.IDHash[:], slot[57:64])
	return r
}
