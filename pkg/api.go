package pkg

import (
	"context"

	"github.com/yimingwow/marketfabric/pkg/codec"
)

// MessageSink accepts serialized protocol messages. The socket producer
// (transport.Producer) satisfies it; relays and rings do not implement
// Publish.
type MessageSink interface {
	Publish(ctx context.Context, msg []byte) error
}

// MessageHandler receives validated, in-order, in-domain messages. The
// header is already parsed; the raw frame follows for TLV dispatch.
type MessageHandler interface {
	HandleMessage(header codec.Header, msg []byte) error
}

// SnapshotProvider resynchronizes a consumer whose sequence gap exceeds
// the retransmit threshold. Implementations live with the collectors:
// only the original producer can rebuild state the relay never kept.
// The returned messages are unsequenced; the relay stamps them so the
// gap [startSeq, endSeq] reads as filled.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, domain codec.Domain, startSeq, endSeq uint64) ([][]byte, error)
}

// LagNotification describes a broadcast overflow in which n messages were
// skipped for one consumer. The relay does not send it: a consumer whose
// queue overflows sees a sequence gap, which the relay repairs through
// recovery.
type LagNotification struct {
	Missed uint64
}
