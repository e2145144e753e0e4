package domain

import "fmt"

// IdentityKey derives the value used to deduplicate trades across the REST
// snapshot and the push stream: trade_id when the source assigned one, else
// tx_hash, else "<tx_hash>|<signer>|<unix_ms>" for stream events that carry
// neither.
func (t *Trade) IdentityKey() string {
	if t.TradeID != "" {
		return t.TradeID
	}
	if t.TxHash != "" {
		return t.TxHash
	}
	return fmt.Sprintf("%s|%s|%d", t.TxHash, t.Signer, t.Time.UnixMilli())
}
