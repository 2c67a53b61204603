package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Stream framing for non-datagram carriers: each message travels as a
// u32 little-endian byte length followed by the message itself. Datagram
// and shared-memory carriers embed the header directly.

// WriteFrame writes one framed message to w.
func WriteFrame(w io.Writer, msg []byte) error {
	if len(msg) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(msg)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one framed message from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(prefix[:])
	if length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	msg := make([]byte, length)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return msg, nil
}

// Resync scans buf for the next magic marker and returns its offset, or
// -1 when none is present. Receivers use it after detecting misalignment.
func Resync(buf []byte) int {
	for i := 0; i+4 <= len(buf); i++ {
		if binary.LittleEndian.Uint32(buf[i:]) == Magic {
			return i
		}
	}
	return -1
}
