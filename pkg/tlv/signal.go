package tlv

import (
	"github.com/yimingwow/marketfabric/pkg/fixed"
	"github.com/yimingwow/marketfabric/pkg/instrument"
	"github.com/yimingwow/marketfabric/utils"
)

// Payload sizes for the signal schemas.
const (
	SignalIdentitySize  = 24
	ArbitrageSignalSize = 136
)

// SignalIdentity names the strategy instance behind a signal stream so
// consumers can attribute and deduplicate signals per strategy.
type SignalIdentity struct {
	StrategyID  uint16
	SignalID    uint64
	Confidence  uint8 // 0-100
	ChainID     uint8
	Reserved    [4]uint8
	TimestampNs uint64
}

func (s *SignalIdentity) Encode() ([]byte, error) { return encodeBin(s, SignalIdentitySize) }

func DecodeSignalIdentity(data []byte) (*SignalIdentity, error) {
	var s SignalIdentity
	if err := decodeBin(data, &s, SignalIdentitySize); err != nil {
		return nil, err
	}
	return &s, nil
}

// ArbitrageSignal is the production arbitrage opportunity payload. Every
// money field is 8-decimal fixed-point USD; no float touches the path
// from detection to wire.
type ArbitrageSignal struct {
	SourcePool      [20]uint8
	TargetPool      [20]uint8
	SourceVenue     uint16
	TargetVenue     uint16
	TokenIn         [20]uint8
	TokenOut        [20]uint8
	ExpectedProfit  int64  // 8-decimal USD, may be negative after costs
	RequiredCapital uint64 // 8-decimal USD
	SpreadBps       uint32
	DexFeesUsd      uint64 // 8-decimal USD
	GasCostUsd      uint64 // 8-decimal USD
	SlippageUsd     uint64 // 8-decimal USD
	TimestampNs     uint64
}

func (a *ArbitrageSignal) Encode() ([]byte, error) { return encodeBin(a, ArbitrageSignalSize) }

func DecodeArbitrageSignal(data []byte) (*ArbitrageSignal, error) {
	var a ArbitrageSignal
	if err := decodeBin(data, &a, ArbitrageSignalSize); err != nil {
		return nil, err
	}
	return &a, nil
}

// ExpectedProfitUsd renders the profit with full 8-decimal precision.
func (a *ArbitrageSignal) ExpectedProfitUsd() string {
	return fixed.Usd8(a.ExpectedProfit).String()
}

// RequiredCapitalUsd renders the capital with full 8-decimal precision.
func (a *ArbitrageSignal) RequiredCapitalUsd() string {
	return fixed.Usd8(a.RequiredCapital).String()
}

// NetProfit subtracts fee, gas and slippage estimates from the expected
// profit, all in raw 8-decimal integers.
func (a *ArbitrageSignal) NetProfit() (fixed.Usd8, error) {
	net := fixed.Usd8(a.ExpectedProfit)
	for _, cost := range []uint64{a.DexFeesUsd, a.GasCostUsd, a.SlippageUsd} {
		var err error
		net, err = net.Sub(fixed.Usd8(cost))
		if err != nil {
			return 0, err
		}
	}
	return net, nil
}

// SourceVenueID typed view of the source venue.
func (a *ArbitrageSignal) SourceVenueID() instrument.VenueId {
	return instrument.VenueId(a.SourceVenue)
}

// TargetVenueID typed view of the target venue.
func (a *ArbitrageSignal) TargetVenueID() instrument.VenueId {
	return instrument.VenueId(a.TargetVenue)
}

// ShortRoute renders "0xabcd..1234 -> 0xbeef..5678" for log lines.
func (a *ArbitrageSignal) ShortRoute() string {
	return utils.ShortAddress(a.SourcePool) + " -> " + utils.ShortAddress(a.TargetPool)
}
