package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/yimingwow/marketfabric/pkg/codec"
	"github.com/yimingwow/marketfabric/pkg/tlv"
)

var (
	ErrConnectionClosed = errors.New("transport: connection closed")
	ErrTimeout          = errors.New("transport: timeout")
)

// connectTimeout bounds producer and subscriber dials.
const connectTimeout = 5 * time.Second

// Producer writes framed messages to a relay socket. It satisfies
// pkg.MessageSink.
type Producer struct {
	conn net.Conn
	log  *zap.Logger
}

// NewProducer dials the relay's domain socket.
func NewProducer(ctx context.Context, socketPath string, log *zap.Logger) (*Producer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", socketPath, err)
	}
	return &Producer{conn: conn, log: log.With(zap.String("socket", socketPath))}, nil
}

// Publish frames and writes one serialized message.
func (p *Producer) Publish(ctx context.Context, msg []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		p.conn.SetWriteDeadline(deadline)
	} else {
		p.conn.SetWriteDeadline(time.Time{})
	}
	if err := codec.WriteFrame(p.conn, msg); err != nil {
		return fmt.Errorf("transport: publish: %w", err)
	}
	return nil
}

// Close releases the connection.
func (p *Producer) Close() error { return p.conn.Close() }

// Message is one delivery to a subscriber: the parsed header, the raw
// frame and its TLVs.
type Message struct {
	Header codec.Header
	Raw    []byte
	TLVs   []codec.TLV
}

// Subscriber reads the relay's fan-out stream. Gap repair happens on the
// relay side; what arrives here is the delivered stream plus recovery
// responses, surfaced so strategies can observe resynchronization.
type Subscriber struct {
	conn        net.Conn
	policy      codec.ChecksumPolicy
	idleTimeout time.Duration
	log         *zap.Logger
}

// NewSubscriber dials the relay socket. idleTimeout of zero means reads
// block forever.
func NewSubscriber(ctx context.Context, socketPath string, policy codec.ChecksumPolicy, idleTimeout time.Duration, log *zap.Logger) (*Subscriber, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := net.Dialer{Timeout: connectTimeout}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", socketPath, err)
	}
	return &Subscriber{
		conn:        conn,
		policy:      policy,
		idleTimeout: idleTimeout,
		log:         log.With(zap.String("socket", socketPath)),
	}, nil
}

// Next blocks for the next message and parses it. Malformed frames are
// skipped with a counter-style log line: the stream stays usable.
func (s *Subscriber) Next(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.idleTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		raw, err := codec.ReadFrame(s.conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, ErrTimeout
			}
			return nil, ErrConnectionClosed
		}
		header, err := codec.ParseHeader(raw, s.policy)
		if err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		tlvs, err := codec.ParseTLVs(codec.Payload(raw))
		if err != nil {
			s.log.Warn("dropping frame with bad TLVs", zap.Error(err))
			continue
		}
		return &Message{Header: header, Raw: raw, TLVs: tlvs}, nil
	}
}

// RequestRecovery asks the relay to replay or snapshot [start, end].
func (s *Subscriber) RequestRecovery(domain codec.Domain, consumerID [16]byte, start, end uint64, requestType uint8) error {
	req := tlv.RecoveryRequest{
		ConsumerID:    consumerID,
		StartSequence: start,
		EndSequence:   end,
		RequestType:   requestType,
	}
	payload, err := req.Encode()
	if err != nil {
		return err
	}
	msg, err := codec.NewBuilder(domain, codec.SourceUnknown).
		AddTLV(tlv.TypeRecoveryRequest, payload).
		Build()
	if err != nil {
		return err
	}
	return codec.WriteFrame(s.conn, msg)
}

// Close releases the connection.
func (s *Subscriber) Close() error { return s.conn.Close() }
