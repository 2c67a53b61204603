package relay

import (
	"sync"

	"github.com/google/uuid"
)

// ConsumerState is the per-consumer delivery state machine:
// Connected -> Synced -> Recovering -> Synced, Disconnected terminal.
type ConsumerState uint8

const (
	StateConnected ConsumerState = iota
	StateSynced
	StateRecovering
	StateDisconnected
)

func (s ConsumerState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSynced:
		return "synced"
	case StateRecovering:
		return "recovering"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// consumer is one subscribed connection's fan-out endpoint. The out
// channel is the bounded broadcast queue; overflow increments missed
// instead of blocking the ingress path.
type consumer struct {
	id       uuid.UUID
	out      chan []byte
	recovery chan []byte
	limiter  *recoveryLimiter

	mu          sync.Mutex
	state       ConsumerState
	lastSeq     uint64
	missed      uint64
	recoverFrom uint64
	recoverTo   uint64
}

func newConsumer(buffer, recoveryPerSecond int) *consumer {
	return &consumer{
		id:       uuid.New(),
		out:      make(chan []byte, buffer),
		recovery: make(chan []byte, buffer),
		limiter:  newRecoveryLimiter(recoveryPerSecond),
		state:    StateConnected,
	}
}

// offer enqueues a frame without blocking. On overflow the frame is
// dropped for this consumer and the miss recorded; the consumer stays
// live and continues from current once it drains.
func (c *consumer) offer(frame []byte) bool {
	select {
	case c.out <- frame:
		return true
	default:
		c.mu.Lock()
		c.missed++
		c.mu.Unlock()
		return false
	}
}

// offerRecovery enqueues a replayed or snapshot frame. Recovery frames
// carry already-passed sequences, so they travel on their own channel
// and skip gap tracking entirely.
func (c *consumer) offerRecovery(frame []byte) bool {
	select {
	case c.recovery <- frame:
		return true
	default:
		return false
	}
}

// takeMissed returns and clears the overflow count.
func (c *consumer) takeMissed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.missed
	c.missed = 0
	return n
}

// observeDelivery advances the sequence tracking and returns the gap
// range (start, end, true) when the observed sequence jumped past the
// expected one. Duplicates and reordered messages return gap=false with
// dup=true and are dropped by the caller.
func (c *consumer) observeDelivery(seq uint64) (start, end uint64, gap, dup bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnected {
		// First delivery synchronizes the cursor wherever the stream is.
		c.state = StateSynced
		c.lastSeq = seq
		return 0, 0, false, false
	}
	expected := c.lastSeq + 1
	switch {
	case seq == expected:
		c.lastSeq = seq
		return 0, 0, false, false
	case seq > expected:
		start, end = expected, seq-1
		c.lastSeq = seq
		c.state = StateRecovering
		c.recoverFrom, c.recoverTo = start, end
		return start, end, true, false
	default:
		return 0, 0, false, true
	}
}

// recoveryComplete transitions Recovering back to Synced.
func (c *consumer) recoveryComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRecovering {
		c.state = StateSynced
		c.recoverFrom, c.recoverTo = 0, 0
	}
}

// disconnect is terminal.
func (c *consumer) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisconnected
}

// State returns the current state machine position.
func (c *consumer) State() ConsumerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
