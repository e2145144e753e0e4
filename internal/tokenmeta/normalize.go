package tokenmeta

import (
	"context"

	"github.com/shopspring/decimal"
)

// Normalizer converts raw integer on-chain amounts into human-readable
// decimals using the exponent from the metadata cache.
type Normalizer struct {
	cache *Cache
}

func NewNormalizer(cache *Cache) *Normalizer {
	return &Normalizer{cache: cache}
}

// Normalize divides a raw base-unit amount by 10^exponent for its denom.
//
// allowRemoteFetch=false is the fast path for live stream events which must
// never block on network I/O: an unknown denom falls back to the native
// exponent and is corrected for subsequent events once metadata arrives.
// Already-rendered values are not retroactively fixed.
func (n *Normalizer) Normalize(ctx context.Context, raw decimal.Decimal, denom string, allowRemoteFetch bool) decimal.Decimal {
	if denom == "" {
		return raw
	}

	if IsNative(denom) {
		return raw.Shift(-NativeExponent)
	}

	if meta, ok := n.cache.Get(ctx, denom); ok {
		if meta.Exponent == 0 {
			return raw
		}
		return raw.Shift(-int32(meta.Exponent))
	}

	if !allowRemoteFetch {
		return raw.Shift(-NativeExponent)
	}

	meta := n.cache.Resolve(ctx, denom)
	if meta.Exponent == 0 {
		return raw
	}
	return raw.Shift(-int32(meta.Exponent))
}
