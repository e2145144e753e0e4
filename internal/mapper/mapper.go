package mapper

import (
	"context"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/domain"
	"zigfeed/internal/tokenmeta"
)

// maximum envelope nesting the stream unwrapper will follow
const maxUnwrapDepth = 3

// Mapper transforms externally-shaped trade payloads (REST snapshot rows or
// push-stream events) into canonical domain.Trade records.
type Mapper struct {
	log  logger.Logger
	norm *tokenmeta.Normalizer
}

func New(log logger.Logger, norm *tokenmeta.Normalizer) *Mapper {
	return &Mapper{log: log, norm: norm}
}

// MapSnapshotTrade maps one row from the REST snapshot endpoint. Snapshot
// amounts normally arrive pre-normalized; base-unit fields are the fallback
// and may block on a metadata fetch.
func (m *Mapper) MapSnapshotTrade(ctx context.Context, raw map[string]any) (t *domain.Trade) {
	defer m.recoverDrop(raw, &t)

	t = m.mapCommon(ctx, raw, true)
	return t
}

// MapStreamTrade maps one push-stream event. The event may be wrapped at
// varying depth; non-swap chain events (liquidity provide/withdraw with no
// direction) are discarded. Amount normalization never blocks on network I/O
// on this path.
func (m *Mapper) MapStreamTrade(ctx context.Context, raw map[string]any) (t *domain.Trade) {
	defer m.recoverDrop(raw, &t)

	payload := unwrap(raw, 0)

	direction := strField(payload, "direction")
	action := strField(payload, "action")
	if direction == "" && action != "swap" {
		return nil
	}

	t = m.mapCommon(ctx, payload, false)
	return t
}

// mapCommon shares field coalescing and value derivation between the two
// entry points. allowRemoteFetch distinguishes the snapshot path (tolerates
// latency) from the live path (must render immediately).
func (m *Mapper) mapCommon(ctx context.Context, raw map[string]any, allowRemoteFetch bool) *domain.Trade {
	t := &domain.Trade{
		Time:         timeField(raw, "time"),
		TxHash:       strField(raw, "txHash"),
		TradeID:      strField(raw, "tradeId"),
		OfferDenom:   strField(raw, "offerDenom"),
		AskDenom:     strField(raw, "askDenom"),
		Signer:       strField(raw, "signer"),
		PairContract: strField(raw, "pairContract"),
		PriceInZig:   decField(raw, "priceInZig"),
		PriceUSD:     decField(raw, "priceUsd"),
		ValueUSD:     decField(raw, "valueUsd"),
	}

	t.Direction = m.resolveDirection(raw, t)
	t.OfferAmount = m.amount(ctx, raw, "offerAmount", "offerAmountBase", t.OfferDenom, allowRemoteFetch)
	t.ReturnAmount = m.amount(ctx, raw, "returnAmount", "returnAmountBase", t.AskDenom, allowRemoteFetch)

	m.derive(t, decField(raw, "zigUsdAtTrade"))
	return t
}

// amount prefers the pre-normalized field and falls back to the raw base-unit
// field run through the normalizer.
func (m *Mapper) amount(ctx context.Context, raw map[string]any, human, base, denom string, allowRemoteFetch bool) decimal.Decimal {
	if v, ok := field(raw, human); ok {
		return toDecimal(v)
	}
	if v, ok := field(raw, base); ok {
		return m.norm.Normalize(ctx, toDecimal(v), denom, allowRemoteFetch)
	}
	return decimal.Zero
}

func (m *Mapper) resolveDirection(raw map[string]any, t *domain.Trade) domain.Direction {
	switch strField(raw, "direction") {
	case "buy":
		return domain.DirectionBuy
	case "sell":
		return domain.DirectionSell
	case "provide":
		return domain.DirectionProvide
	case "withdraw":
		return domain.DirectionWithdraw
	}

	// swap with no explicit direction: infer from the native leg the user
	// receives
	if tokenmeta.IsNative(t.AskDenom) {
		return domain.DirectionSell
	}
	return domain.DirectionBuy
}

// derive computes the native-side size, size class and the price/value
// metrics shared by both entry points.
func (m *Mapper) derive(t *domain.Trade, zigUsdAtTrade decimal.Decimal) {
	offerNative := tokenmeta.IsNative(t.OfferDenom)
	askNative := tokenmeta.IsNative(t.AskDenom)

	// native-token-denominated leg of the trade
	switch {
	case t.Direction == domain.DirectionBuy && offerNative:
		t.ValueNative = t.OfferAmount
	case t.Direction == domain.DirectionSell && askNative:
		t.ValueNative = t.ReturnAmount
	case offerNative:
		t.ValueNative = t.OfferAmount
	case askNative:
		t.ValueNative = t.ReturnAmount
	default:
		t.ValueNative = decimal.Zero
	}

	t.Class = domain.Classify(t.ValueNative)

	// token leg drives the price ratio fallback
	tokenLeg := t.ReturnAmount
	if askNative {
		tokenLeg = t.OfferAmount
	}

	if t.PriceInZig.IsZero() && !tokenLeg.IsZero() {
		t.PriceInZig = t.ValueNative.Div(tokenLeg)
	}

	if t.PriceUSD.IsZero() && !t.PriceInZig.IsZero() && !zigUsdAtTrade.IsZero() {
		t.PriceUSD = t.PriceInZig.Mul(zigUsdAtTrade)
	}

	// displayed side of the trade is the leg the user receives
	if t.ValueUSD.IsZero() {
		switch {
		case askNative && !zigUsdAtTrade.IsZero():
			t.ValueUSD = t.ReturnAmount.Mul(zigUsdAtTrade)
		case !t.PriceUSD.IsZero():
			t.ValueUSD = t.ReturnAmount.Mul(t.PriceUSD)
		}
	}
}

// unwrap recurses through "data" envelopes until a trade-shaped payload is
// found. Depth is bounded so malformed self-referencing input cannot loop,
// and the original payload is returned when nothing underneath matches.
func unwrap(raw map[string]any, depth int) map[string]any {
	if looksLikeTrade(raw) || depth >= maxUnwrapDepth {
		return raw
	}

	if inner, ok := raw["data"].(map[string]any); ok {
		return unwrap(inner, depth+1)
	}

	return raw
}

// looksLikeTrade reports whether a payload exposes trade-shaped fields: a
// direction, an offer/return amount field, or a trade identifier. An
// action/type field counts only when the payload is not itself an envelope
// wrapping a deeper object.
func looksLikeTrade(raw map[string]any) bool {
	for _, name := range []string{"direction", "offerAmountBase", "returnAmountBase", "offerAmount", "returnAmount", "tradeId"} {
		if _, ok := field(raw, name); ok {
			return true
		}
	}

	if _, ok := field(raw, "action"); ok {
		if _, wrapped := raw["data"].(map[string]any); !wrapped {
			return true
		}
	}

	return false
}

// recoverDrop turns a panic while mapping one item into a logged drop so
// sibling items in the same batch still process.
func (m *Mapper) recoverDrop(raw map[string]any, t **domain.Trade) {
	if r := recover(); r != nil {
		m.log.Errorf("Dropping unmappable trade payload (keys=%d): %v", len(raw), r)
		*t = nil
	}
}
