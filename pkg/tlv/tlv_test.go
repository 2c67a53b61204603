package tlv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/yimingwow/marketfabric/pkg/codec"
	"github.com/yimingwow/marketfabric/pkg/fixed"
	"github.com/yimingwow/marketfabric/pkg/instrument"
	"github.com/yimingwow/marketfabric/utils"
)

func TestRegistryDomainPartitions(t *testing.T) {
	assert.True(t, InDomain(TypeTrade, codec.DomainMarketData))
	assert.False(t, InDomain(TypeTrade, codec.DomainSignal))
	assert.True(t, InDomain(TypeArbitrageSignal, codec.DomainSignal))
	assert.False(t, InDomain(TypeArbitrageSignal, codec.DomainExecution))
	assert.True(t, InDomain(TypeOrderRequest, codec.DomainExecution))

	// System types cross every domain.
	for _, d := range []codec.Domain{codec.DomainMarketData, codec.DomainSignal, codec.DomainExecution} {
		assert.True(t, InDomain(TypeRecoveryRequest, d))
		assert.True(t, InDomain(TypeTraceContext, d))
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(codec.DomainMarketData, TypeTrade, TradeSize))
	assert.ErrorIs(t, Validate(codec.DomainMarketData, TypeTrade, TradeSize-1), ErrBadSize)
	assert.ErrorIs(t, Validate(codec.DomainSignal, TypeTrade, TradeSize), ErrOutOfDomain)
	assert.ErrorIs(t, Validate(codec.DomainMarketData, 200, 10), ErrUnknownType)

	// 255 is both the extended marker and the demo arbitrage type; it
	// validates under every domain like the system range does.
	s, ok := Lookup(TypeDemoDeFiArbitrage)
	require.True(t, ok)
	assert.Equal(t, "demo_defi_arbitrage", s.Name)
	for _, d := range []codec.Domain{codec.DomainMarketData, codec.DomainSignal, codec.DomainExecution} {
		assert.NoError(t, Validate(d, TypeDemoDeFiArbitrage, DemoDeFiArbitrageSize))
	}
	assert.ErrorIs(t, Validate(codec.DomainSignal, TypeDemoDeFiArbitrage, DemoDeFiArbitrageSize-1), ErrBadSize)
}

func TestTradeRoundTrip(t *testing.T) {
	btc := instrument.Coin(instrument.VenueBinance, "BTC")
	trade := Trade{
		InstrumentKey: btc.CacheKey(),
		Price:         5_000_000_000_000, // $50,000.00000000
		Volume:        100_000_000,       // 1.0
		Side:          0,
		TimestampNs:   1_700_000_000_000_000_000,
	}
	payload, err := trade.Encode()
	require.NoError(t, err)
	require.Len(t, payload, TradeSize)

	msg, err := codec.NewBuilder(codec.DomainMarketData, codec.SourceBinanceCollector).
		AddTLV(TypeTrade, payload).
		WithSequence(42).
		Build()
	require.NoError(t, err)

	header, err := codec.ParseHeader(msg, codec.ChecksumEnforce)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), header.Sequence)

	tlvs, err := codec.ParseTLVs(codec.Payload(msg))
	require.NoError(t, err)
	require.Len(t, tlvs, 1)
	assert.Equal(t, TypeTrade, tlvs[0].Type)

	got, err := DecodeTrade(tlvs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, trade, *got)
	assert.Equal(t, btc, got.Instrument())
}

func TestQuoteAndTickerRoundTrip(t *testing.T) {
	eth := instrument.Coin(instrument.VenueCoinbase, "ETH")
	quote := Quote{
		InstrumentKey: eth.CacheKey(),
		BidPrice:      200_000_000_000,
		BidSize:       500_000_000,
		AskPrice:      200_100_000_000,
		AskSize:       300_000_000,
		TimestampNs:   1_700_000_000_000_000_001,
	}
	payload, err := quote.Encode()
	require.NoError(t, err)
	got, err := DecodeQuote(payload)
	require.NoError(t, err)
	assert.Equal(t, quote, *got)

	ticker := Ticker{InstrumentKey: eth.CacheKey(), LastPrice: 1, Volume24h: 2, High24h: 3, Low24h: 4, TimestampNs: 5}
	payload, err = ticker.Encode()
	require.NoError(t, err)
	gotTicker, err := DecodeTicker(payload)
	require.NoError(t, err)
	assert.Equal(t, ticker, *gotTicker)
}

func TestPoolSwapRoundTrip(t *testing.T) {
	usdc, err := instrument.PolygonToken("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	require.NoError(t, err)
	wmatic, err := instrument.PolygonToken("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")
	require.NoError(t, err)
	pool := instrument.Pool(instrument.VenueQuickSwap, usdc, wmatic)

	swap := PoolSwap{
		PoolKey:          pool.CacheKey(),
		AmountIn:         uint128.From64(2_000_000),
		AmountOut:        uint128.Uint128{Lo: 0, Hi: 1}, // > 64 bits
		TokenInDecimals:  6,
		TokenOutDecimals: 18,
		SqrtPriceQ64:     uint128.Uint128{Lo: 1 << 63, Hi: 125},
		TickAfter:        -887272,
		TimestampNs:      1_700_000_000_000_000_002,
	}
	payload, err := swap.Encode()
	require.NoError(t, err)
	require.Len(t, payload, PoolSwapSize)

	got, err := DecodePoolSwap(payload)
	require.NoError(t, err)
	assert.Equal(t, swap, *got)
}

func TestPoolSyncValidation(t *testing.T) {
	sync := PoolSync{
		Reserve0:    uint128.From64(1000),
		Reserve1:    uint128.From64(2000),
		TimestampNs: 7,
	}
	payload, err := sync.Encode()
	require.NoError(t, err)
	got, err := DecodePoolSync(payload)
	require.NoError(t, err)
	assert.Equal(t, sync, *got)

	empty := PoolSync{Reserve0: uint128.From64(1000)}
	_, err = empty.Encode()
	assert.ErrorIs(t, err, ErrZeroReserve)
}

func TestOrderBookRoundTrip(t *testing.T) {
	btc := instrument.Coin(instrument.VenueBinance, "BTC")
	book := OrderBook{
		InstrumentKey: btc.CacheKey(),
		Depth:         10,
		Flags:         BookSnapshot,
		Bids: []BookLevel{
			{Price: 5_000_000_000_000, Size: 150_000_000},
			{Price: 4_999_900_000_000, Size: 200_000_000},
		},
		Asks: []BookLevel{
			{Price: 5_000_100_000_000, Size: 75_000_000},
		},
		TimestampNs: 1_700_000_000_000_000_005,
	}
	payload, err := book.Encode()
	require.NoError(t, err)
	require.NoError(t, Validate(codec.DomainMarketData, TypeOrderBook, len(payload)))

	got, err := DecodeOrderBook(payload)
	require.NoError(t, err)
	assert.Equal(t, book, *got)

	// Declared level counts must match the payload length exactly.
	_, err = DecodeOrderBook(payload[:len(payload)-1])
	assert.ErrorIs(t, err, ErrBadSize)
}

func TestArbitrageSignalRoundTripAndStrings(t *testing.T) {
	sourcePool, err := utils.ParseEthAddress("0x6e7a5FAFcec6BB1e78bAE2A1F0B612012BF14827")
	require.NoError(t, err)
	targetPool, err := utils.ParseEthAddress("0xcd353F79d9FADe311fC3119B841e1f456b54e858")
	require.NoError(t, err)

	sig := ArbitrageSignal{
		SourcePool:      sourcePool,
		TargetPool:      targetPool,
		SourceVenue:     uint16(instrument.VenueQuickSwap),
		TargetVenue:     uint16(instrument.VenueSushiSwapPolygon),
		ExpectedProfit:  12_550_000_000,  // $125.50
		RequiredCapital: 100_000_000_000, // $1000.00
		SpreadBps:       15,
		DexFeesUsd:      60_000_000,
		GasCostUsd:      10_000_000,
		SlippageUsd:     100_000_000,
		TimestampNs:     1_700_000_000_000_000_003,
	}
	payload, err := sig.Encode()
	require.NoError(t, err)
	require.Len(t, payload, ArbitrageSignalSize)

	got, err := DecodeArbitrageSignal(payload)
	require.NoError(t, err)
	assert.Equal(t, sig, *got)

	assert.Equal(t, "125.50000000", got.ExpectedProfitUsd())
	assert.Equal(t, "1000.00000000", got.RequiredCapitalUsd())

	net, err := got.NetProfit()
	require.NoError(t, err)
	assert.Equal(t, "123.80000000", net.String())
}

func TestDemoDeFiArbitrageRoundTrip(t *testing.T) {
	poolA, err := utils.ParseEthAddress("0x6e7a5FAFcec6BB1e78bAE2A1F0B612012BF14827")
	require.NoError(t, err)
	poolB, err := utils.ParseEthAddress("0xcd353F79d9FADe311fC3119B841e1f456b54e858")
	require.NoError(t, err)

	capital, err := fixed.UQ64FromUsd8(fixed.Usd8(100_000_000_000))
	require.NoError(t, err)
	gas, err := fixed.UQ64FromRatio(1, 400) // 0.0025 native
	require.NoError(t, err)
	amount, err := fixed.UQ64FromRatio(512, 1)
	require.NoError(t, err)

	d := DemoDeFiArbitrage{
		StrategyID:       21,
		SignalID:         0xA1B2C3D4E5F60718,
		Confidence:       87,
		ChainID:          137,
		ExpectedProfit:   fixed.Q64FromUsd8(fixed.Usd8(12_550_000_000)),
		RequiredCapital:  capital,
		EstimatedGasCost: gas,
		VenueA:           uint16(instrument.VenueQuickSwap),
		VenueB:           uint16(instrument.VenueSushiSwapPolygon),
		PoolA:            poolA,
		PoolB:            poolB,
		TokenIn:          utils.AddressPrefix64(poolA),
		TokenOut:         utils.AddressPrefix64(poolB),
		OptimalAmount:    amount,
		SlippageBps:      100,
		MaxGasPriceGwei:  150,
		ValidUntil:       1_700_000_060,
		Priority:         200,
		TimestampNs:      1_700_000_000_000_000_004,
	}
	payload, err := d.Encode()
	require.NoError(t, err)
	require.Len(t, payload, DemoDeFiArbitrageSize)

	got, err := DecodeDemoDeFiArbitrage(payload)
	require.NoError(t, err)
	assert.Equal(t, d, *got)

	assert.Equal(t, "125.50000000", got.ExpectedProfit.DecimalString(8))
	assert.Equal(t, "1000.00000000", got.RequiredCapital.DecimalString(8))

	assert.True(t, got.IsValid(1_700_000_000))
	assert.True(t, got.IsValid(1_700_000_060))
	assert.False(t, got.IsValid(1_700_000_061))
}

func TestDemoDeFiAlwaysExtendedFraming(t *testing.T) {
	d := DemoDeFiArbitrage{StrategyID: 21, ValidUntil: uint32(time.Now().Unix()) + 60}
	payload, err := d.Encode()
	require.NoError(t, err)

	// Type 255 is the extended marker itself, so framing is extended
	// unconditionally, independent of the payload size.
	assert.True(t, codec.NeedsExtended(TypeDemoDeFiArbitrage, len(payload)))
	assert.True(t, codec.NeedsExtended(TypeDemoDeFiArbitrage, 0))

	msg, err := codec.NewBuilder(codec.DomainSignal, codec.SourceArbitrageStrategy).
		AddTLV(TypeDemoDeFiArbitrage, payload).
		Build()
	require.NoError(t, err)
	tlvs, err := codec.ParseTLVs(codec.Payload(msg))
	require.NoError(t, err)
	require.Len(t, tlvs, 1)
	assert.True(t, tlvs[0].Extended)
	assert.Equal(t, TypeDemoDeFiArbitrage, tlvs[0].Type)
}

func TestSystemTLVRoundTrips(t *testing.T) {
	trace := TraceContext{Source: uint8(codec.SourcePolygonCollector), OriginNs: 99}
	trace.TraceID[0] = 0xAB
	trace.MarkStage(StageCollected)
	trace.MarkStage(StageRelayed)
	payload, err := trace.Encode()
	require.NoError(t, err)
	require.Len(t, payload, TraceContextSize)
	gotTrace, err := DecodeTraceContext(payload)
	require.NoError(t, err)
	assert.True(t, gotTrace.HasStage(StageCollected))
	assert.True(t, gotTrace.HasStage(StageRelayed))
	assert.False(t, gotTrace.HasStage(StageConsumed))

	req := RecoveryRequest{StartSequence: 101, EndSequence: 149, RequestType: RecoveryRetransmit}
	payload, err = req.Encode()
	require.NoError(t, err)
	gotReq, err := DecodeRecoveryRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, req, *gotReq)

	health := SystemHealth{Source: 1, Status: HealthDegraded, QueueDepth: 12, MessagesProcessed: 34, UptimeSeconds: 56, TimestampNs: 78}
	payload, err = health.Encode()
	require.NoError(t, err)
	gotHealth, err := DecodeSystemHealth(payload)
	require.NoError(t, err)
	assert.Equal(t, health, *gotHealth)
}

func TestExecutionTLVRoundTrips(t *testing.T) {
	id := instrument.Coin(instrument.VenueBinance, "BTC")
	order := OrderRequest{
		OrderID:       777,
		InstrumentKey: id.CacheKey(),
		Side:          OrderSideBuy,
		OrderType:     OrderTypeLimit,
		Quantity:      50_000_000,
		Price:         5_000_000_000_000,
		TimestampNs:   1,
	}
	payload, err := order.Encode()
	require.NoError(t, err)
	gotOrder, err := DecodeOrderRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, order, *gotOrder)

	fill := Fill{OrderID: 777, FillID: 1, InstrumentKey: id.CacheKey(), Quantity: 50_000_000, Price: 4_999_999_999_999, FeeUsd: 125_000_000, Side: OrderSideBuy, Liquidity: 1, TimestampNs: 2}
	payload, err = fill.Encode()
	require.NoError(t, err)
	gotFill, err := DecodeFill(payload)
	require.NoError(t, err)
	assert.Equal(t, fill, *gotFill)

	cancel := Cancel{OrderID: 777, Reason: 3, TimestampNs: 3}
	payload, err = cancel.Encode()
	require.NoError(t, err)
	gotCancel, err := DecodeCancel(payload)
	require.NoError(t, err)
	assert.Equal(t, cancel, *gotCancel)
}
