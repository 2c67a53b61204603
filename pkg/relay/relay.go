package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yimingwow/marketfabric/pkg"
	"github.com/yimingwow/marketfabric/pkg/codec"
	"github.com/yimingwow/marketfabric/pkg/tlv"
)

// Routing and resource errors surfaced by the ingress path.
var (
	ErrInvalidRelayDomain  = errors.New("relay: message domain does not match broker")
	ErrStaleTimestamp      = errors.New("relay: timestamp outside accepted skew")
	ErrMissingSequence     = errors.New("relay: zero producer sequence")
	ErrSnapshotUnavailable = errors.New("relay: no snapshot provider registered")
	ErrClosed              = errors.New("relay: closed")
)

// Relay is one domain broker: it listens on a unix socket, validates
// ingress against the domain policy, stamps a global sequence, fans out
// to subscribers and serves gap recovery. The three domain brokers are
// this one skeleton under three policies.
type Relay struct {
	cfg      Config
	log      *zap.Logger
	snapshot pkg.SnapshotProvider

	globalSeq atomic.Uint64
	stats     Stats
	replay    *replayBuffer

	mu        sync.RWMutex
	consumers map[uuid.UUID]*consumer
	listener  net.Listener
	closed    bool
}

// NewMarketData builds the market-data broker (TLV 1-19, no checksums).
func NewMarketData(cfg Config, log *zap.Logger) *Relay {
	cfg.Policy = MarketDataPolicy()
	return New(cfg, log)
}

// NewSignal builds the signal broker (TLV 20-39, checksums enforced).
func NewSignal(cfg Config, log *zap.Logger) *Relay {
	cfg.Policy = SignalPolicy()
	return New(cfg, log)
}

// NewExecution builds the execution broker (TLV 40-79, checksums plus
// sequence and timestamp hygiene).
func NewExecution(cfg Config, log *zap.Logger) *Relay {
	cfg.Policy = ExecutionPolicy()
	return New(cfg, log)
}

// New builds a broker from an explicit policy. Core types stay
// instantiable without any process-wide singleton.
func New(cfg Config, log *zap.Logger) *Relay {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		cfg:       cfg,
		log:       log.With(zap.String("domain", cfg.Policy.Domain.String())),
		replay:    newReplayBuffer(cfg.Policy.ReplayCapacity),
		consumers: make(map[uuid.UUID]*consumer),
	}
}

// SetSnapshotProvider registers the external collaborator that serves
// large-gap recovery.
func (r *Relay) SetSnapshotProvider(p pkg.SnapshotProvider) {
	r.mu.Lock()
	r.snapshot = p
	r.mu.Unlock()
}

// Stats returns a point-in-time counter snapshot.
func (r *Relay) Stats() StatsSnapshot { return r.stats.Snapshot() }

// GlobalSequence returns the last stamped global sequence.
func (r *Relay) GlobalSequence() uint64 { return r.globalSeq.Load() }

// Serve binds the domain socket and accepts connections until ctx ends.
// A stale socket file from a crashed predecessor is removed before bind.
func (r *Relay) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(r.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("relay: socket dir: %w", err)
	}
	if err := os.Remove(r.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("relay: unlink stale socket: %w", err)
	}
	listener, err := net.Listen("unix", r.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("relay: bind %s: %w", r.cfg.SocketPath, err)
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		listener.Close()
		return ErrClosed
	}
	r.listener = listener
	r.mu.Unlock()

	r.log.Info("relay listening", zap.String("socket", r.cfg.SocketPath))

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || r.isClosed() {
				return nil
			}
			r.log.Error("accept failed", zap.Error(err))
			continue
		}
		registered := make(chan struct{})
		go r.handleConn(ctx, conn, registered)
		// Accept the next connection only once this one is in the fan-out,
		// so a client that connected earlier receives every frame ingested
		// from a client that connected later.
		<-registered
	}
}

func (r *Relay) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// handleConn serves one connection. Every connection is a subscriber;
// frames it writes are treated as producer ingress, except recovery
// requests, which are serviced in place.
func (r *Relay) handleConn(ctx context.Context, conn net.Conn, registered chan<- struct{}) {
	c := newConsumer(r.cfg.BroadcastBuffer, r.cfg.RecoveryPerSecond)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(registered)
		conn.Close()
		return
	}
	r.consumers[c.id] = c
	r.mu.Unlock()
	close(registered)
	r.stats.ActiveConsumers.Add(1)
	r.log.Info("consumer connected", zap.String("consumer", c.id.String()))

	done := make(chan struct{})
	go r.writeLoop(c, conn, done)

	r.readLoop(ctx, c, conn)

	r.dropConsumer(c)
	conn.Close()
	<-done
	r.log.Info("consumer disconnected",
		zap.String("consumer", c.id.String()),
		zap.String("state", c.State().String()))
}

func (r *Relay) dropConsumer(c *consumer) {
	r.mu.Lock()
	if _, ok := r.consumers[c.id]; ok {
		delete(r.consumers, c.id)
		close(c.out)
		r.stats.ActiveConsumers.Add(-1)
	}
	r.mu.Unlock()
	c.disconnect()
}

// readLoop drains frames from the connection: producer ingress plus
// consumer-originated recovery requests.
func (r *Relay) readLoop(ctx context.Context, c *consumer, conn net.Conn) {
	for {
		if r.cfg.ConsumerIdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(r.cfg.ConsumerIdleTimeout))
		}
		frame, err := codec.ReadFrame(conn)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil && !r.isClosed() {
				r.log.Debug("read ended", zap.Error(err))
			}
			return
		}
		if req, ok := r.decodeRecoveryRequest(frame); ok {
			r.serviceRecovery(c, req.StartSequence, req.EndSequence)
			continue
		}
		if _, err := r.Ingest(frame); err != nil {
			r.log.Warn("ingress rejected", zap.Error(err))
		}
	}
}

// writeLoop forwards broadcast frames, detecting gaps introduced by
// overflow drops and repairing them before delivery continues. Recovery
// frames drain first so replayed history lands ahead of live traffic.
func (r *Relay) writeLoop(c *consumer, conn net.Conn, done chan struct{}) {
	defer close(done)
	write := func(frame []byte) bool {
		conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if err := codec.WriteFrame(conn, frame); err != nil {
			r.log.Warn("consumer write failed, closing",
				zap.String("consumer", c.id.String()), zap.Error(err))
			conn.Close()
			return false
		}
		return true
	}
	for {
		select {
		case frame := <-c.recovery:
			if !write(frame) {
				return
			}
			continue
		default:
		}
		select {
		case frame := <-c.recovery:
			if !write(frame) {
				return
			}
		case frame, ok := <-c.out:
			if !ok {
				return
			}
			start, end, gap, dup := c.observeDelivery(frameSequence(frame))
			if dup {
				r.stats.Duplicates.Add(1)
				continue
			}
			if gap {
				r.serviceRecovery(c, start, end)
				// Drain the repair before the frame that revealed the gap.
				for len(c.recovery) > 0 {
					if !write(<-c.recovery) {
						return
					}
				}
			}
			if missed := c.takeMissed(); missed > 0 {
				r.stats.LaggedDeliveries.Add(missed)
				r.log.Warn("consumer lagged",
					zap.String("consumer", c.id.String()),
					zap.Uint64("missed", missed))
			}
			if !write(frame) {
				return
			}
		}
	}
}

// frameSequence reads the stamped sequence without a full parse; the
// frame was validated on ingress.
func frameSequence(frame []byte) uint64 {
	return codec.SequenceOf(frame)
}

// decodeRecoveryRequest recognizes a consumer-originated recovery frame:
// a valid header of this domain whose first TLV is a RecoveryRequest.
func (r *Relay) decodeRecoveryRequest(frame []byte) (*tlv.RecoveryRequest, bool) {
	header, err := codec.ParseHeader(frame, codec.ChecksumSkip)
	if err != nil {
		return nil, false
	}
	tlvs, err := codec.ParseTLVs(frame[codec.HeaderSize : codec.HeaderSize+int(header.PayloadSize)])
	if err != nil || len(tlvs) == 0 || tlvs[0].Type != tlv.TypeRecoveryRequest {
		return nil, false
	}
	req, err := tlv.DecodeRecoveryRequest(tlvs[0].Payload)
	if err != nil {
		return nil, false
	}
	return req, true
}

// Ingest validates one serialized message against the domain policy,
// stamps the next global sequence, appends it to the replay buffer and
// fans it out. It returns the stamped sequence.
//
// Failure semantics: every rejection drops the message, bumps a counter
// and leaves the connection open; corruption is an operational metric,
// not a consumer-visible event.
func (r *Relay) Ingest(msg []byte) (uint64, error) {
	header, err := codec.ParseHeader(msg, r.cfg.Policy.ChecksumPolicy())
	if err != nil {
		r.stats.MessagesDropped.Add(1)
		if errors.Is(err, codec.ErrChecksumMismatch) {
			r.stats.ChecksumFailures.Add(1)
			r.log.Warn("checksum failure on ingress")
		}
		return 0, err
	}
	if header.Domain != r.cfg.Policy.Domain {
		r.stats.MessagesDropped.Add(1)
		return 0, fmt.Errorf("%w: got %s", ErrInvalidRelayDomain, header.Domain)
	}
	if r.cfg.Policy.RequireSequence && header.Sequence == 0 {
		r.stats.MessagesDropped.Add(1)
		return 0, ErrMissingSequence
	}
	if skew := r.cfg.Policy.MaxTimestampSkew; skew > 0 {
		now := time.Now().UnixNano()
		ts := int64(header.TimestampNs)
		if ts < now-int64(skew) || ts > now+int64(skew) {
			r.stats.MessagesDropped.Add(1)
			return 0, fmt.Errorf("%w: %d vs now %d", ErrStaleTimestamp, ts, now)
		}
	}

	tlvs, err := codec.ParseTLVs(msg[codec.HeaderSize : codec.HeaderSize+int(header.PayloadSize)])
	if err != nil {
		r.stats.MessagesDropped.Add(1)
		return 0, err
	}
	for _, record := range tlvs {
		if err := tlv.Validate(r.cfg.Policy.Domain, record.Type, len(record.Payload)); err != nil {
			r.stats.MessagesDropped.Add(1)
			if errors.Is(err, tlv.ErrOutOfDomain) {
				r.stats.OutOfDomainTLVs.Add(1)
			}
			return 0, err
		}
	}

	// Stamp the relay's global sequence into the header's sequence field.
	// This overwrites the producer's own sequence, which is not forwarded
	// in any other field: consumers see only the global sequence.
	seq := r.globalSeq.Add(1)
	stamped := make([]byte, len(msg))
	copy(stamped, msg)
	codec.RestampSequence(stamped, seq)

	r.replay.Append(seq, stamped)
	r.broadcast(stamped)

	r.stats.MessagesProcessed.Add(1)
	r.stats.BytesProcessed.Add(uint64(len(msg)))
	return seq, nil
}

func (r *Relay) broadcast(frame []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.consumers {
		c.offer(frame)
	}
}

// serviceRecovery closes the gap [start, end] for one consumer. Gaps at
// or under the snapshot threshold retransmit from the replay buffer;
// larger ones ask the snapshot provider and stamp its messages into the
// hole. Recovery traffic is rate-limited per consumer.
func (r *Relay) serviceRecovery(c *consumer, start, end uint64) {
	if start > end {
		return
	}
	if !c.limiter.allow() {
		r.log.Warn("recovery request throttled", zap.String("consumer", c.id.String()))
		return
	}
	r.stats.RecoveryRequests.Add(1)
	gap := end - start + 1
	r.log.Warn("sequence gap detected",
		zap.String("consumer", c.id.String()),
		zap.Uint64("start", start), zap.Uint64("end", end), zap.Uint64("gap", gap))

	if gap <= r.cfg.GapSnapshotThreshold {
		r.retransmit(c, start, end)
	} else {
		r.snapshotRecover(c, start, end)
	}
}

func (r *Relay) retransmit(c *consumer, start, end uint64) {
	frames, err := r.replay.Range(start, end)
	if err != nil {
		r.stats.ReplayMisses.Add(1)
		r.log.Warn("retransmit range evicted, escalating to snapshot",
			zap.Uint64("start", start), zap.Uint64("end", end))
		r.snapshotRecover(c, start, end)
		return
	}
	for _, frame := range frames {
		c.offerRecovery(frame)
	}
	c.recoveryComplete()
	r.sendRecoveryResponse(c, start, end, tlv.RecoveryComplete)
}

func (r *Relay) snapshotRecover(c *consumer, start, end uint64) {
	r.mu.RLock()
	provider := r.snapshot
	r.mu.RUnlock()
	r.stats.SnapshotRequests.Add(1)
	if provider == nil {
		r.log.Warn("snapshot needed but no provider registered",
			zap.Uint64("start", start), zap.Uint64("end", end))
		r.sendRecoveryResponse(c, start, end, tlv.RecoveryUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SnapshotWait)
	defer cancel()
	msgs, err := provider.Snapshot(ctx, r.cfg.Policy.Domain, start, end)
	if err != nil {
		r.log.Warn("snapshot provider failed", zap.Error(err))
		r.sendRecoveryResponse(c, start, end, tlv.RecoveryUnavailable)
		return
	}
	// Stamp the snapshot stream into the gap so the consumer's sequence
	// tracking reads it as filled.
	seq := start
	for _, msg := range msgs {
		if seq > end {
			break
		}
		stamped := make([]byte, len(msg))
		copy(stamped, msg)
		codec.RestampSequence(stamped, seq)
		c.offerRecovery(stamped)
		seq++
	}
	c.recoveryComplete()
	r.sendRecoveryResponse(c, start, end, tlv.RecoveryComplete)
}

// sendRecoveryResponse notifies the consumer how its gap was resolved.
func (r *Relay) sendRecoveryResponse(c *consumer, start, end uint64, disposition uint8) {
	resp := tlv.RecoveryResponse{
		ConsumerID:    [16]byte(c.id),
		StartSequence: start,
		EndSequence:   end,
		Disposition:   disposition,
	}
	payload, err := resp.Encode()
	if err != nil {
		return
	}
	msg, err := codec.NewBuilder(r.cfg.Policy.Domain, codec.SourceRelay).
		AddTLV(tlv.TypeRecoveryResponse, payload).
		Build()
	if err != nil {
		return
	}
	c.offerRecovery(msg)
}

// Close shuts the broker down: listener first, then every consumer
// channel, which ends their write loops.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	listener := r.listener
	consumers := r.consumers
	r.consumers = make(map[uuid.UUID]*consumer)
	r.mu.Unlock()

	var first error
	if listener != nil {
		if err := listener.Close(); err != nil {
			first = err
		}
	}
	for _, c := range consumers {
		close(c.out)
		c.disconnect()
		r.stats.ActiveConsumers.Add(-1)
	}
	r.log.Info("relay closed")
	return first
}
