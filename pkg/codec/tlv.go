package codec

import "encoding/binary"

// TLV framing. Two layouts share the payload space:
//
//	standard:  type(1) length(1) payload
//	extended:  0xFF(1) reserved(1) type(1) length(2, little-endian) payload
//
// Extended framing is selected whenever the payload exceeds 255 bytes or
// the logical type is ExtendedMarker itself.
const (
	// ExtendedMarker introduces an extended TLV. A logical type of this
	// value can only ever be carried inside extended framing, since a
	// standard record's leading byte would read as the marker.
	ExtendedMarker uint8 = 0xFF

	standardTLVOverhead = 2
	extendedTLVOverhead = 5
)

// TLV is one parsed type-length-value record. Payload aliases the input
// buffer; callers that retain it past the buffer's lifetime must copy.
type TLV struct {
	Type     uint8
	Extended bool
	Payload  []byte
}

// NeedsExtended reports whether a (type, payload-length) pair requires
// the extended layout.
func NeedsExtended(tlvType uint8, payloadLen int) bool {
	return payloadLen > 255 || tlvType == ExtendedMarker
}

func encodedTLVSize(tlvType uint8, payloadLen int) int {
	if NeedsExtended(tlvType, payloadLen) {
		return extendedTLVOverhead + payloadLen
	}
	return standardTLVOverhead + payloadLen
}

func appendTLV(dst []byte, tlvType uint8, payload []byte) []byte {
	if NeedsExtended(tlvType, len(payload)) {
		dst = append(dst, ExtendedMarker, 0, tlvType)
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(payload)))
		dst = append(dst, l[:]...)
		return append(dst, payload...)
	}
	dst = append(dst, tlvType, uint8(len(payload)))
	return append(dst, payload...)
}

// ParseTLVs walks payload end to end and returns the records in order.
// The walk must consume the slice exactly; leftover or missing bytes are
// a TruncatedTLV error.
func ParseTLVs(payload []byte) ([]TLV, error) {
	var out []TLV
	for len(payload) > 0 {
		if payload[0] == ExtendedMarker {
			if len(payload) < extendedTLVOverhead {
				return nil, ErrInvalidExtendedTLV
			}
			actual := payload[2]
			length := int(binary.LittleEndian.Uint16(payload[3:5]))
			if len(payload) < extendedTLVOverhead+length {
				return nil, ErrTruncatedTLV
			}
			out = append(out, TLV{
				Type:     actual,
				Extended: true,
				Payload:  payload[extendedTLVOverhead : extendedTLVOverhead+length],
			})
			payload = payload[extendedTLVOverhead+length:]
			continue
		}
		if len(payload) < standardTLVOverhead {
			return nil, ErrTruncatedTLV
		}
		length := int(payload[1])
		if len(payload) < standardTLVOverhead+length {
			return nil, ErrTruncatedTLV
		}
		out = append(out, TLV{
			Type:    payload[0],
			Payload: payload[standardTLVOverhead : standardTLVOverhead+length],
		})
		payload = payload[standardTLVOverhead+length:]
	}
	return out, nil
}
