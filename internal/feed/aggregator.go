package feed

import (
	"sort"
	"strings"

	"zigfeed/internal/domain"
	"zigfeed/internal/tokenmeta"
)

// DefaultMaxTrades is the retention cap of the live tape. Older entries (by
// time) beyond the cap are dropped.
const DefaultMaxTrades = 500

// Merge reconciles an incoming batch with the current working set.
//
// A snapshot batch replaces the working set outright (a stream-delivered
// snapshot supersedes prior state). An incremental batch keeps only trades
// whose identity key is not already present, prepends them (newest-first
// insertion bias), re-sorts by time descending and truncates to the cap.
// An incremental batch that contributes nothing returns existing unchanged,
// so downstream consumers can skip recomputation.
func Merge(existing, incoming []domain.Trade, isSnapshot bool, max int) []domain.Trade {
	if max <= 0 {
		max = DefaultMaxTrades
	}

	if isSnapshot {
		out := dedupe(incoming)
		sortByTimeDesc(out)
		return truncate(out, max)
	}

	seen := keySet(existing)
	fresh := make([]domain.Trade, 0, len(incoming))
	for _, t := range incoming {
		k := t.IdentityKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		fresh = append(fresh, t)
	}

	if len(fresh) == 0 {
		return existing
	}

	merged := make([]domain.Trade, 0, len(fresh)+len(existing))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)
	merged = dedupe(merged)
	sortByTimeDesc(merged)
	return truncate(merged, max)
}

// Criteria are AND-combined; zero values mean "no constraint".
type Criteria struct {
	Class  domain.SizeClass
	Signer string
	Denom  string
}

// Filter applies a pure predicate filter over the tape.
func Filter(trades []domain.Trade, c Criteria) []domain.Trade {
	out := make([]domain.Trade, 0, len(trades))
	denom := tokenmeta.NormalizeDenom(c.Denom)

	for _, t := range trades {
		if c.Class != "" && t.Class != c.Class {
			continue
		}
		if c.Signer != "" && !strings.EqualFold(t.Signer, c.Signer) {
			continue
		}
		if denom != "" &&
			tokenmeta.NormalizeDenom(t.OfferDenom) != denom &&
			tokenmeta.NormalizeDenom(t.AskDenom) != denom {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Paginate slices out one 1-indexed page, clamping the page number into
// [1, ceil(len/pageSize)].
func Paginate(trades []domain.Trade, page, pageSize int) []domain.Trade {
	if len(trades) == 0 || pageSize <= 0 {
		return []domain.Trade{}
	}

	pages := (len(trades) + pageSize - 1) / pageSize
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(trades) {
		end = len(trades)
	}
	return trades[start:end]
}

// SummarizeSigner computes the per-signer rollup used by the filter panel.
// Returns nil for an empty signer. The trade history keeps only buy/sell
// entries with a strictly positive price ratio.
func SummarizeSigner(trades []domain.Trade, signer string) *domain.SignerSummary {
	if signer == "" {
		return nil
	}

	sum := &domain.SignerSummary{Signer: signer, Trades: []domain.SignerTrade{}}
	for _, t := range trades {
		if !strings.EqualFold(t.Signer, signer) {
			continue
		}

		if sum.LatestTime.IsZero() {
			// tape is ordered newest-first
			sum.LatestDirection = t.Direction
			sum.LatestTime = t.Time
			sum.LatestValueUSD = t.ValueUSD
		}

		switch t.Direction {
		case domain.DirectionBuy:
			sum.Buys++
		case domain.DirectionSell:
			sum.Sells++
		default:
			continue
		}

		if t.PriceInZig.IsPositive() {
			sum.Trades = append(sum.Trades, domain.SignerTrade{
				Time:       t.Time,
				Direction:  t.Direction,
				PriceInZig: t.PriceInZig,
				PriceUSD:   t.PriceUSD,
			})
		}
	}

	return sum
}

// ClassCounts tallies size buckets in one pass.
type ClassCounts struct {
	Whale  int `json:"whale"`
	Shark  int `json:"shark"`
	Shrimp int `json:"shrimp"`
}

func CountClasses(trades []domain.Trade) ClassCounts {
	var c ClassCounts
	for _, t := range trades {
		switch t.Class {
		case domain.ClassWhale:
			c.Whale++
		case domain.ClassShark:
			c.Shark++
		default:
			c.Shrimp++
		}
	}
	return c
}

func keySet(trades []domain.Trade) map[string]bool {
	set := make(map[string]bool, len(trades))
	for i := range trades {
		set[trades[i].IdentityKey()] = true
	}
	return set
}

// dedupe keeps the first occurrence of every identity key.
func dedupe(trades []domain.Trade) []domain.Trade {
	seen := make(map[string]bool, len(trades))
	out := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		k := t.IdentityKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

// stable so equal timestamps keep their insertion bias
func sortByTimeDesc(trades []domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Time.After(trades[j].Time)
	})
}

func truncate(trades []domain.Trade, max int) []domain.Trade {
	if len(trades) <= max {
		return trades
	}
	return trades[:max]
}
