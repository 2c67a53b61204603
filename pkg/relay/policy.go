package relay

import (
	"time"

	"github.com/yimingwow/marketfabric/pkg/codec"
)

// Policy is everything that differs between the three domain brokers.
// The relay skeleton is shared; behavior is data.
type Policy struct {
	Domain codec.Domain

	// ValidateChecksums enforces the header CRC on ingress. Market data
	// skips it: relay-side CRCs cost roughly 30% throughput on data that
	// is redundant and recoverable via reconnect plus snapshot.
	ValidateChecksums bool

	// RequireSequence rejects ingress with a zero producer sequence.
	RequireSequence bool

	// MaxTimestampSkew rejects ingress whose timestamp strays further
	// than this from the relay clock. Zero disables the check.
	MaxTimestampSkew time.Duration

	// ReplayCapacity is the retransmit buffer depth in messages.
	ReplayCapacity int
}

// MarketDataPolicy: maximum throughput, short replay, recovery by
// resubscribe plus snapshot.
func MarketDataPolicy() Policy {
	return Policy{
		Domain:         codec.DomainMarketData,
		ReplayCapacity: 1_000,
	}
}

// SignalPolicy: signals drive capital allocation, corruption must halt.
func SignalPolicy() Policy {
	return Policy{
		Domain:            codec.DomainSignal,
		ValidateChecksums: true,
		ReplayCapacity:    10_000,
	}
}

// ExecutionPolicy: checksums plus sequence and timestamp hygiene.
func ExecutionPolicy() Policy {
	return Policy{
		Domain:            codec.DomainExecution,
		ValidateChecksums: true,
		RequireSequence:   true,
		MaxTimestampSkew:  5 * time.Second,
		ReplayCapacity:    100_000,
	}
}

// ChecksumPolicy maps the relay policy onto the codec's parse behavior.
func (p Policy) ChecksumPolicy() codec.ChecksumPolicy {
	if p.ValidateChecksums {
		return codec.ChecksumEnforce
	}
	return codec.ChecksumSkip
}

// Config carries the deployment knobs of one broker.
type Config struct {
	Policy Policy

	// SocketPath is the unix domain socket the broker listens on.
	SocketPath string

	// GapSnapshotThreshold is the largest sequence gap served from the
	// replay buffer; anything larger escalates to a snapshot.
	GapSnapshotThreshold uint64

	// BroadcastBuffer is the per-consumer fan-out queue depth.
	BroadcastBuffer int

	// ConsumerIdleTimeout closes consumers idle past this; 0 = infinite.
	ConsumerIdleTimeout time.Duration

	// SnapshotWait bounds how long a snapshot request may take.
	SnapshotWait time.Duration

	// RecoveryPerSecond rate-limits recovery requests per consumer.
	RecoveryPerSecond int
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.GapSnapshotThreshold == 0 {
		c.GapSnapshotThreshold = 100
	}
	if c.BroadcastBuffer == 0 {
		c.BroadcastBuffer = 8_192
	}
	if c.SnapshotWait == 0 {
		c.SnapshotWait = 30 * time.Second
	}
	if c.RecoveryPerSecond == 0 {
		c.RecoveryPerSecond = 10
	}
	if c.Policy.ReplayCapacity == 0 {
		c.Policy.ReplayCapacity = 1_000
	}
	return c
}
