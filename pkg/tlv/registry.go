package tlv

import (
	"errors"
	"fmt"

	"github.com/yimingwow/marketfabric/pkg/codec"
)

// Type is a TLV type number. The numeric space is partitioned by relay
// domain so a mis-routed payload is detectable from its type alone:
//
//	  1- 19  market data
//	 20- 39  signals
//	 40- 79  execution
//	100-119  system (valid in every domain)
//	    255  extended-TLV marker; doubles as the demo arbitrage type,
//	         which therefore always travels under extended framing
type Type = uint8

// Market data (1-19)
const (
	TypeTrade       Type = 1
	TypeQuote       Type = 2
	TypeOrderBook   Type = 3
	TypePoolSwap    Type = 4
	TypePoolMint    Type = 5
	TypePoolBurn    Type = 6
	TypePoolSync    Type = 7
	TypeBlockHeader Type = 8
	TypeTicker      Type = 9
)

// Signals (20-39)
const (
	TypeSignalIdentity  Type = 20
	TypeArbitrageSignal Type = 21
)

// TypeDemoDeFiArbitrage shares the extended-marker value on purpose:
// picking 255 forces the encoder's extended path for every emission, so
// the demo payload exercises extended framing end to end.
const TypeDemoDeFiArbitrage Type = 255

// Execution (40-79)
const (
	TypeOrderRequest    Type = 40
	TypeOrderAck        Type = 41
	TypeFill            Type = 42
	TypeCancel          Type = 43
	TypeCancelAck       Type = 44
	TypeExecutionReport Type = 45
)

// System (100-119)
const (
	TypeTraceContext     Type = 100
	TypeSystemHealth     Type = 101
	TypeRecoveryRequest  Type = 102
	TypeRecoveryResponse Type = 103
	TypeHeartbeat        Type = 104
)

var (
	ErrUnknownType = errors.New("tlv: unknown type")
	ErrOutOfDomain = errors.New("tlv: type outside header domain")
	ErrBadSize     = errors.New("tlv: payload size incompatible with schema")
)

// Schema describes one registered TLV type. FixedSize < 0 means variable;
// then MinSize/MaxSize bound the payload.
type Schema struct {
	Type      Type
	Name      string
	Domain    codec.Domain
	System    bool
	FixedSize int
	MinSize   int
	MaxSize   int
}

func fixedSchema(t Type, name string, d codec.Domain, size int) Schema {
	return Schema{Type: t, Name: name, Domain: d, FixedSize: size, MinSize: size, MaxSize: size}
}

func variableSchema(t Type, name string, d codec.Domain, min, max int) Schema {
	return Schema{Type: t, Name: name, Domain: d, FixedSize: -1, MinSize: min, MaxSize: max}
}

func systemSchema(t Type, name string, size int) Schema {
	s := fixedSchema(t, name, 0, size)
	s.System = true
	return s
}

// registry is built once at startup; reads afterward are lock-free.
var registry = buildRegistry()

func buildRegistry() map[Type]Schema {
	schemas := []Schema{
		fixedSchema(TypeTrade, "trade", codec.DomainMarketData, TradeSize),
		fixedSchema(TypeQuote, "quote", codec.DomainMarketData, QuoteSize),
		variableSchema(TypeOrderBook, "order_book", codec.DomainMarketData, orderBookPrefixSize, codec.MaxPayloadSize),
		fixedSchema(TypePoolSwap, "pool_swap", codec.DomainMarketData, PoolSwapSize),
		fixedSchema(TypePoolMint, "pool_mint", codec.DomainMarketData, PoolLiquiditySize),
		fixedSchema(TypePoolBurn, "pool_burn", codec.DomainMarketData, PoolLiquiditySize),
		fixedSchema(TypePoolSync, "pool_sync", codec.DomainMarketData, PoolSyncSize),
		fixedSchema(TypeBlockHeader, "block_header", codec.DomainMarketData, BlockHeaderSize),
		fixedSchema(TypeTicker, "ticker", codec.DomainMarketData, TickerSize),

		fixedSchema(TypeSignalIdentity, "signal_identity", codec.DomainSignal, SignalIdentitySize),
		fixedSchema(TypeArbitrageSignal, "arbitrage_signal", codec.DomainSignal, ArbitrageSignalSize),
		// Registered at the extended-marker value; InDomain carries the
		// matching special case.
		fixedSchema(TypeDemoDeFiArbitrage, "demo_defi_arbitrage", codec.DomainSignal, DemoDeFiArbitrageSize),

		fixedSchema(TypeOrderRequest, "order_request", codec.DomainExecution, OrderRequestSize),
		fixedSchema(TypeOrderAck, "order_ack", codec.DomainExecution, OrderAckSize),
		fixedSchema(TypeFill, "fill", codec.DomainExecution, FillSize),
		fixedSchema(TypeCancel, "cancel", codec.DomainExecution, CancelSize),
		fixedSchema(TypeCancelAck, "cancel_ack", codec.DomainExecution, CancelSize),
		variableSchema(TypeExecutionReport, "execution_report", codec.DomainExecution, FillSize, codec.MaxPayloadSize),

		systemSchema(TypeTraceContext, "trace_context", TraceContextSize),
		systemSchema(TypeSystemHealth, "system_health", SystemHealthSize),
		systemSchema(TypeRecoveryRequest, "recovery_request", RecoveryRequestSize),
		systemSchema(TypeRecoveryResponse, "recovery_response", RecoveryResponseSize),
		systemSchema(TypeHeartbeat, "heartbeat", HeartbeatSize),
	}
	m := make(map[Type]Schema, len(schemas))
	for _, s := range schemas {
		m[s.Type] = s
	}
	return m
}

// Lookup returns the schema registered for t.
func Lookup(t Type) (Schema, bool) {
	s, ok := registry[t]
	return s, ok
}

// DomainRange returns the inclusive type range owned by a relay domain.
func DomainRange(d codec.Domain) (lo, hi Type) {
	switch d {
	case codec.DomainMarketData:
		return 1, 19
	case codec.DomainSignal:
		return 20, 39
	case codec.DomainExecution:
		return 40, 79
	}
	return 0, 0
}

// InDomain reports whether type t may appear under a header of domain d.
// System types are valid everywhere, as is the extended-demo type 255:
// its payloads only ever arrive through extended framing, so the marker
// value itself is the routable type.
func InDomain(t Type, d codec.Domain) bool {
	if t >= 100 && t <= 119 {
		return true
	}
	if t == TypeDemoDeFiArbitrage {
		return true
	}
	lo, hi := DomainRange(d)
	return t >= lo && t <= hi
}

// Validate checks a received (domain, type, payload length) triple against
// the registry: the type must exist, lie in the header's domain and carry
// a payload length its schema allows.
func Validate(d codec.Domain, t Type, payloadLen int) error {
	s, ok := registry[t]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	if !InDomain(t, d) {
		return fmt.Errorf("%w: type %s(%d) under %s header", ErrOutOfDomain, s.Name, t, d)
	}
	if payloadLen < s.MinSize || payloadLen > s.MaxSize {
		return fmt.Errorf("%w: %s wants [%d,%d] bytes, got %d", ErrBadSize, s.Name, s.MinSize, s.MaxSize, payloadLen)
	}
	return nil
}
