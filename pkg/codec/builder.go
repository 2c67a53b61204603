package codec

import (
	"time"
)

// Builder assembles a header plus an ordered TLV payload into wire bytes.
//
//	msg, err := codec.NewBuilder(codec.DomainMarketData, codec.SourceBinanceCollector).
//		AddTLV(1, tradeBytes).
//		WithSequence(42).
//		Build()
type Builder struct {
	domain     Domain
	source     Source
	sequence   uint64
	instrument uint64
	timestamp  uint64
	tlvs       []builderTLV
	err        error
}

type builderTLV struct {
	tlvType uint8
	payload []byte
}

// NewBuilder starts a message for the given domain and source.
func NewBuilder(domain Domain, source Source) *Builder {
	return &Builder{domain: domain, source: source}
}

// AddTLV appends a TLV. Extended framing is chosen automatically when the
// payload exceeds 255 bytes or the type is the extended marker value.
func (b *Builder) AddTLV(tlvType uint8, payload []byte) *Builder {
	b.tlvs = append(b.tlvs, builderTLV{tlvType: tlvType, payload: payload})
	return b
}

// WithSequence sets the producer sequence number.
func (b *Builder) WithSequence(seq uint64) *Builder {
	b.sequence = seq
	return b
}

// WithInstrument sets the optional primary-subject instrument id.
func (b *Builder) WithInstrument(id uint64) *Builder {
	b.instrument = id
	return b
}

// WithTimestamp overrides the build-time timestamp. Used by replay and
// tests; normal producers let Build stamp the current time.
func (b *Builder) WithTimestamp(ns uint64) *Builder {
	b.timestamp = ns
	return b
}

// Build serializes the message: header with payload size, timestamp and
// checksum filled, followed by the TLVs in insertion order.
func (b *Builder) Build() ([]byte, error) {
	payloadSize := 0
	for _, t := range b.tlvs {
		payloadSize += encodedTLVSize(t.tlvType, len(t.payload))
	}
	if payloadSize > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	if HeaderSize+payloadSize > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	ts := b.timestamp
	if ts == 0 {
		ts = uint64(time.Now().UnixNano())
	}

	h := Header{
		Magic:        Magic,
		Version:      Version,
		Domain:       b.domain,
		Source:       b.source,
		PayloadSize:  uint16(payloadSize),
		Sequence:     b.sequence,
		TimestampNs:  ts,
		InstrumentID: b.instrument,
	}

	msg := make([]byte, HeaderSize, HeaderSize+payloadSize)
	h.EncodeTo(msg)
	for _, t := range b.tlvs {
		msg = appendTLV(msg, t.tlvType, t.payload)
	}

	h.Checksum = ComputeChecksum(msg)
	h.EncodeTo(msg[:HeaderSize])
	return msg, nil
}

// Payload returns the TLV bytes that follow the header of a serialized
// message. The header must already have been validated.
func Payload(msg []byte) []byte {
	h := decodeHeader(msg)
	return msg[HeaderSize : HeaderSize+int(h.PayloadSize)]
}

// SequenceOf reads the sequence field of a serialized message without a
// full parse. The message must be at least HeaderSize bytes.
func SequenceOf(msg []byte) uint64 {
	return decodeHeader(msg).Sequence
}

// RestampSequence rewrites the sequence field of a serialized message in
// place and refreshes the checksum. Relays use this to assign the global
// sequence on pass-through.
func RestampSequence(msg []byte, seq uint64) {
	h := decodeHeader(msg)
	h.Sequence = seq
	h.EncodeTo(msg[:HeaderSize])
	h.Checksum = ComputeChecksum(msg)
	h.EncodeTo(msg[:HeaderSize])
}
