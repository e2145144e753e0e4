package tokenmeta

import "strings"

// NativeDenom is the chain's base gas-fee token. It is the reference unit for
// trade size classification and carries a fixed exponent.
const (
	NativeDenom    = "uzig"
	NativeExponent = 6
)

// Symbol aliases that resolve to the native token.
var nativeAliases = map[string]string{
	"zig":  NativeDenom,
	"uzig": NativeDenom,
}

// NormalizeDenom lower-cases a denom and strips an IBC transfer-channel
// prefix ("ibc/<hash>" keeps only the hash, "transfer/channel-N/uatom" keeps
// the final path element).
func NormalizeDenom(denom string) string {
	d := strings.ToLower(strings.TrimSpace(denom))

	if strings.HasPrefix(d, "ibc/") || strings.HasPrefix(d, "transfer/") {
		if i := strings.LastIndex(d, "/"); i >= 0 {
			d = d[i+1:]
		}
	}

	return d
}

// IsNative reports whether a denom (or one of its symbol aliases) is the
// native gas token.
func IsNative(denom string) bool {
	d := NormalizeDenom(denom)
	if d == NativeDenom {
		return true
	}
	_, ok := nativeAliases[d]
	return ok
}
