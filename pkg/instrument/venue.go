package instrument

// VenueId identifies where an instrument trades or lives on-chain.
// Values are stable wire constants; never renumber.
type VenueId uint16

const (
	VenueUnknown VenueId = 0

	// Centralized exchanges
	VenueBinance  VenueId = 100
	VenueCoinbase VenueId = 101
	VenueKraken   VenueId = 102
	VenueOKX      VenueId = 103
	VenueBybit    VenueId = 104
	VenueAlpaca   VenueId = 110

	// Chains (venue for native tokens and chain-scoped assets)
	VenueEthereum VenueId = 200
	VenuePolygon  VenueId = 201
	VenueBSC      VenueId = 202
	VenueArbitrum VenueId = 203
	VenueBase     VenueId = 204
	VenueSolana   VenueId = 220

	// DEX venues
	VenueUniswapV2        VenueId = 300
	VenueUniswapV3        VenueId = 301
	VenueSushiSwap        VenueId = 302
	VenueQuickSwap        VenueId = 303
	VenueSushiSwapPolygon VenueId = 304
	VenueCurve            VenueId = 305
	VenueBalancer         VenueId = 306
	VenueRaydium          VenueId = 320
	VenueMeteora          VenueId = 321
	VenueOrca             VenueId = 322
)

var venueNames = map[VenueId]string{
	VenueUnknown:          "unknown",
	VenueBinance:          "binance",
	VenueCoinbase:         "coinbase",
	VenueKraken:           "kraken",
	VenueOKX:              "okx",
	VenueBybit:            "bybit",
	VenueAlpaca:           "alpaca",
	VenueEthereum:         "ethereum",
	VenuePolygon:          "polygon",
	VenueBSC:              "bsc",
	VenueArbitrum:         "arbitrum",
	VenueBase:             "base",
	VenueSolana:           "solana",
	VenueUniswapV2:        "uniswap_v2",
	VenueUniswapV3:        "uniswap_v3",
	VenueSushiSwap:        "sushiswap",
	VenueQuickSwap:        "quickswap",
	VenueSushiSwapPolygon: "sushiswap_polygon",
	VenueCurve:            "curve",
	VenueBalancer:         "balancer",
	VenueRaydium:          "raydium",
	VenueMeteora:          "meteora",
	VenueOrca:             "orca",
}

func (v VenueId) String() string {
	if name, ok := venueNames[v]; ok {
		return name
	}
	return "unknown"
}

// IsDEX reports whether the venue is an on-chain exchange. DEX pool
// descriptors are chain-agnostic for pairing purposes: a pool on
// UniswapV3 may price instruments that live on its underlying chain.
func (v VenueId) IsDEX() bool {
	return v >= 300 && v < 400
}

// IsChain reports whether the venue is a base chain.
func (v VenueId) IsChain() bool {
	return v >= 200 && v < 300
}
