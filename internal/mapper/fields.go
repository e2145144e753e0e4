package mapper

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Ordered accessor candidates per logical field. The upstream API is not
// consistent about casing: the snapshot endpoint leans camelCase, stream
// events snake_case, and both drift between releases. camelCase wins when a
// payload carries both spellings. New aliases are additions to this table,
// not new branching logic.
var fieldAliases = map[string][]string{
	"time":             {"createdAt", "created_at", "time", "timestamp"},
	"txHash":           {"txHash", "tx_hash"},
	"tradeId":          {"tradeId", "trade_id"},
	"direction":        {"direction"},
	"offerDenom":       {"offerDenom", "offer_asset_denom", "offer_denom"},
	"askDenom":         {"askDenom", "ask_asset_denom", "ask_denom"},
	"offerAmount":      {"offerAmount", "offer_amount"},
	"returnAmount":     {"returnAmount", "return_amount"},
	"offerAmountBase":  {"offerAmountBase", "offer_amount_base"},
	"returnAmountBase": {"returnAmountBase", "return_amount_base"},
	"priceInZig":       {"priceInZig", "price_in_zig"},
	"zigUsdAtTrade":    {"zigUsdAtTrade", "zig_usd_at_trade"},
	"priceUsd":         {"priceUsd", "price_in_usd", "price_usd"},
	"valueUsd":         {"valueUsd", "value_in_usd", "value_usd"},
	"signer":           {"signer", "sender"},
	"pairContract":     {"pairContract", "pair_contract"},
	"action":           {"action", "type"},
}

func field(raw map[string]any, name string) (any, bool) {
	for _, alias := range fieldAliases[name] {
		if v, ok := raw[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func strField(raw map[string]any, name string) string {
	v, ok := field(raw, name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// decField coalesces numeric-string and numeric-literal encodings into one
// decimal. Unparseable values yield zero.
func decField(raw map[string]any, name string) decimal.Decimal {
	v, ok := field(raw, name)
	if !ok {
		return decimal.Zero
	}
	return toDecimal(v)
}

func toDecimal(v any) decimal.Decimal {
	switch x := v.(type) {
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// timeField accepts ISO-8601 strings and unix second/millisecond numbers.
func timeField(raw map[string]any, name string) time.Time {
	v, ok := field(raw, name)
	if !ok {
		return time.Time{}
	}

	switch x := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, x); err == nil {
				return t
			}
		}
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return fromUnix(n)
		}
		return time.Time{}
	case float64:
		return fromUnix(int64(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return fromUnix(n)
		}
		return time.Time{}
	default:
		return time.Time{}
	}
}

func fromUnix(n int64) time.Time {
	// millisecond timestamps are > 1e12 for any date after 2001
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
