package instrument

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/gagliardetto/solana-go"

	"github.com/yimingwow/marketfabric/utils"
)

// AssetType classifies what an instrument id refers to.
type AssetType uint8

const (
	AssetUnknown AssetType = iota
	AssetCoin
	AssetToken
	AssetPool
	AssetLPToken
	AssetStock
	AssetBond
	AssetOption
	AssetFuture
)

var assetNames = [...]string{"unknown", "coin", "token", "pool", "lp_token", "stock", "bond", "option", "future"}

func (a AssetType) String() string {
	if int(a) < len(assetNames) {
		return assetNames[a]
	}
	return "unknown"
}

// Reserved flag bits.
const (
	// FlagTriangular marks a pool id built from three constituents.
	FlagTriangular uint8 = 0x01
)

// ID is the bijective 96-bit instrument identifier: venue, asset class,
// flag bits and a 64-bit semantic asset id. Pool ids are order-independent:
// Pool(A, B) and Pool(B, A) produce the same ID.
//
// The full struct round-trips through CacheKey. The U64 form is lossy
// (it keeps venue, asset type and the low 40 bits of the asset id; the
// flag bits and the high asset-id bits are lost) and exists for legacy call sites;
// never use it as a map key.
type ID struct {
	Venue     VenueId
	AssetType AssetType
	Reserved  uint8
	AssetID   uint64
}

var (
	ErrPairSelfMatch  = fmt.Errorf("instrument: cannot pair an instrument with itself")
	ErrCrossVenuePair = fmt.Errorf("instrument: cross-venue pairing rejected")
)

// Coin derives an id for an exchange-listed coin from its ticker symbol.
func Coin(venue VenueId, symbol string) ID {
	return ID{
		Venue:     venue,
		AssetType: AssetCoin,
		AssetID:   xxhash.Sum64String(symbol),
	}
}

// Token derives an id for an EVM token from its contract address on the
// given chain. The asset id is the low 64 bits of the address.
func Token(chain VenueId, addressHex string) (ID, error) {
	addr, err := utils.ParseEthAddress(addressHex)
	if err != nil {
		return ID{}, err
	}
	return TokenFromAddress(chain, addr), nil
}

// TokenFromAddress is Token for callers that already hold the 20 bytes.
func TokenFromAddress(chain VenueId, addr [utils.EthAddressLen]byte) ID {
	return ID{
		Venue:     chain,
		AssetType: AssetToken,
		AssetID:   utils.AddressLow64(addr),
	}
}

// EthereumToken derives a token id on Ethereum mainnet.
func EthereumToken(addressHex string) (ID, error) { return Token(VenueEthereum, addressHex) }

// PolygonToken derives a token id on Polygon.
func PolygonToken(addressHex string) (ID, error) { return Token(VenuePolygon, addressHex) }

// BSCToken derives a token id on BNB Smart Chain.
func BSCToken(addressHex string) (ID, error) { return Token(VenueBSC, addressHex) }

// SolanaToken derives a token id from a base58 mint address. The asset id
// is the low 64 bits of the 32-byte public key.
func SolanaToken(mintBase58 string) (ID, error) {
	key, err := solana.PublicKeyFromBase58(mintBase58)
	if err != nil {
		return ID{}, fmt.Errorf("instrument: mint %q: %w", mintBase58, err)
	}
	return ID{
		Venue:     VenueSolana,
		AssetType: AssetToken,
		AssetID:   binary.BigEndian.Uint64(key[24:32]),
	}, nil
}

// Pool derives the canonical id of a two-token pool. The constituents are
// projected to 31 bits, sorted and Cantor-paired, so argument order never
// changes the result.
func Pool(venue VenueId, a, b ID) ID {
	return ID{
		Venue:     venue,
		AssetType: AssetPool,
		AssetID:   cantorPair(project31(a.AssetID), project31(b.AssetID)),
	}
}

// TriangularPool derives the canonical id of a three-token pool. All six
// argument permutations produce the same id. The triangular flag bit is
// set so two- and three-way pools cannot collide structurally.
func TriangularPool(venue VenueId, a, b, c ID) ID {
	return ID{
		Venue:     venue,
		AssetType: AssetPool,
		Reserved:  FlagTriangular,
		AssetID:   cantorTriple(project21(a.AssetID), project21(b.AssetID), project21(c.AssetID)),
	}
}

// LPToken derives the id of a pool's LP token; it shares the pool's asset id.
func LPToken(venue VenueId, pool ID) ID {
	return ID{
		Venue:     venue,
		AssetType: AssetLPToken,
		Reserved:  pool.Reserved,
		AssetID:   pool.AssetID,
	}
}

// IsTriangular reports whether the id describes a three-token pool.
func (id ID) IsTriangular() bool {
	return id.AssetType == AssetPool && id.Reserved&FlagTriangular != 0
}

// CacheKey packs the full identifier into 16 bytes, little-endian. The
// encoding is bijective: FromCacheKey(id.CacheKey()) == id.
func (id ID) CacheKey() [16]byte {
	var key [16]byte
	binary.LittleEndian.PutUint16(key[0:2], uint16(id.Venue))
	key[2] = uint8(id.AssetType)
	key[3] = id.Reserved
	binary.LittleEndian.PutUint64(key[4:12], id.AssetID)
	return key
}

// FromCacheKey reverses CacheKey.
func FromCacheKey(key [16]byte) ID {
	return ID{
		Venue:     VenueId(binary.LittleEndian.Uint16(key[0:2])),
		AssetType: AssetType(key[2]),
		Reserved:  key[3],
		AssetID:   binary.LittleEndian.Uint64(key[4:12]),
	}
}

// U64 collapses the id to 64 bits for legacy call sites. Venue and asset
// type survive; the asset id is truncated to 40 bits. Lossy on purpose.
func (id ID) U64() uint64 {
	return uint64(id.Venue)<<48 | uint64(id.AssetType)<<40 | id.AssetID&0xFF_FFFF_FFFF
}

// FromU64 partially reverses U64; only venue and asset type are faithful.
func FromU64(v uint64) ID {
	return ID{
		Venue:     VenueId(v >> 48),
		AssetType: AssetType(v >> 40 & 0xFF),
		AssetID:   v & 0xFF_FFFF_FFFF,
	}
}

// CanPair reports whether two instruments may be priced against each
// other. Instruments must share a venue, unless one side is a DEX pool
// descriptor, which is chain-agnostic. An instrument never pairs with
// itself.
func CanPair(a, b ID) error {
	if a == b {
		return ErrPairSelfMatch
	}
	if a.Venue == b.Venue {
		return nil
	}
	if (a.AssetType == AssetPool && a.Venue.IsDEX()) || (b.AssetType == AssetPool && b.Venue.IsDEX()) {
		return nil
	}
	return ErrCrossVenuePair
}

// String renders "venue/type/assetid" plus the base58 cache key.
func (id ID) String() string {
	return fmt.Sprintf("%s/%s/%016x#%s", id.Venue, id.AssetType, id.AssetID, utils.CompactKey(id.CacheKey()))
}
