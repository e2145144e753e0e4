package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade direction as reported by the chain indexer.
type Direction string

const (
	DirectionBuy      Direction = "buy"
	DirectionSell     Direction = "sell"
	DirectionProvide  Direction = "provide"
	DirectionWithdraw Direction = "withdraw"
)

// Size bucket derived from the native-token value of a trade.
type SizeClass string

const (
	ClassWhale  SizeClass = "whale"
	ClassShark  SizeClass = "shark"
	ClassShrimp SizeClass = "shrimp"
)

// Fixed classification thresholds in native (ZIG) units.
var (
	whaleMinNative = decimal.NewFromInt(10000)
	sharkMinNative = decimal.NewFromInt(1000)
)

// Classify maps a native-denominated trade size to its bucket.
func Classify(valueNative decimal.Decimal) SizeClass {
	switch {
	case valueNative.GreaterThanOrEqual(whaleMinNative):
		return ClassWhale
	case valueNative.GreaterThanOrEqual(sharkMinNative):
		return ClassShark
	default:
		return ClassShrimp
	}
}

// Canonical trade record, immutable once constructed by the mapper.
// Amounts are human-readable (post-normalization).
type Trade struct {
	Time         time.Time       `json:"time"`
	TxHash       string          `json:"tx_hash"`
	TradeID      string          `json:"trade_id,omitempty"`
	Direction    Direction       `json:"direction"`
	OfferDenom   string          `json:"offer_denom"`
	AskDenom     string          `json:"ask_denom"`
	OfferAmount  decimal.Decimal `json:"offer_amount"`
	ReturnAmount decimal.Decimal `json:"return_amount"`
	ValueNative  decimal.Decimal `json:"value_native"`
	ValueUSD     decimal.Decimal `json:"value_usd"`
	PriceUSD     decimal.Decimal `json:"price_usd"`
	PriceInZig   decimal.Decimal `json:"price_in_zig"`
	Signer       string          `json:"signer"`
	PairContract string          `json:"pair_contract"`
	Class        SizeClass       `json:"class"`
}

// Cached metadata for one denom. Expired entries count as misses.
type TokenMeta struct {
	Price     float64   `json:"price"`
	Icon      string    `json:"icon"`
	Exponent  int       `json:"exponent"`
	Timestamp time.Time `json:"timestamp"`
}

// Derived per-signer rollup, recomputed on demand from the current tape.
type SignerSummary struct {
	Signer          string          `json:"signer"`
	Buys            int             `json:"buys"`
	Sells           int             `json:"sells"`
	LatestDirection Direction       `json:"latest_direction"`
	LatestTime      time.Time       `json:"latest_time"`
	LatestValueUSD  decimal.Decimal `json:"latest_value_usd"`
	Trades          []SignerTrade   `json:"trades"`
}

type SignerTrade struct {
	Time       time.Time       `json:"time"`
	Direction  Direction       `json:"direction"`
	PriceInZig decimal.Decimal `json:"price_in_zig"`
	PriceUSD   decimal.Decimal `json:"price_usd"`
}
