package relay

import "sync/atomic"

// Stats are the broker's operational counters. Everything an operator
// sees about absorbed errors flows through here; consumer business logic
// never sees a malformed message.
type Stats struct {
	MessagesProcessed atomic.Uint64
	MessagesDropped   atomic.Uint64
	BytesProcessed    atomic.Uint64
	ChecksumFailures  atomic.Uint64
	OutOfDomainTLVs   atomic.Uint64
	Duplicates        atomic.Uint64
	RecoveryRequests  atomic.Uint64
	SnapshotRequests  atomic.Uint64
	ReplayMisses      atomic.Uint64
	LaggedDeliveries  atomic.Uint64
	ActiveConsumers   atomic.Int64
}

// StatsSnapshot is a point-in-time copy for stat queries.
type StatsSnapshot struct {
	MessagesProcessed uint64
	MessagesDropped   uint64
	BytesProcessed    uint64
	ChecksumFailures  uint64
	OutOfDomainTLVs   uint64
	Duplicates        uint64
	RecoveryRequests  uint64
	SnapshotRequests  uint64
	ReplayMisses      uint64
	LaggedDeliveries  uint64
	ActiveConsumers   int64
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		MessagesProcessed: s.MessagesProcessed.Load(),
		MessagesDropped:   s.MessagesDropped.Load(),
		BytesProcessed:    s.BytesProcessed.Load(),
		ChecksumFailures:  s.ChecksumFailures.Load(),
		OutOfDomainTLVs:   s.OutOfDomainTLVs.Load(),
		Duplicates:        s.Duplicates.Load(),
		RecoveryRequests:  s.RecoveryRequests.Load(),
		SnapshotRequests:  s.SnapshotRequests.Load(),
		ReplayMisses:      s.ReplayMisses.Load(),
		LaggedDeliveries:  s.LaggedDeliveries.Load(),
		ActiveConsumers:   s.ActiveConsumers.Load(),
	}
}
