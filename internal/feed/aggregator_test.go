package feed

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigfeed/internal/domain"
)

var tapeBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func mkTrade(id string, age time.Duration) domain.Trade {
	return domain.Trade{
		TradeID:   id,
		TxHash:    "tx-" + id,
		Time:      tapeBase.Add(-age),
		Direction: domain.DirectionBuy,
		Signer:    "zig1signer",
		Class:     domain.ClassShrimp,
	}
}

// ========== Merge ==========

func TestMerge_SnapshotReplacesWorkingSet(t *testing.T) {
	existing := []domain.Trade{mkTrade("old", time.Hour)}
	incoming := []domain.Trade{
		mkTrade("a", 3*time.Minute),
		mkTrade("b", time.Minute),
	}

	out := Merge(existing, incoming, true, 500)

	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].TradeID)
	assert.Equal(t, "a", out[1].TradeID)
}

func TestMerge_IncrementalSkipsKnownKeys(t *testing.T) {
	existing := []domain.Trade{mkTrade("a", 2*time.Minute)}
	incoming := []domain.Trade{
		mkTrade("a", 2*time.Minute), // duplicate
		mkTrade("b", time.Minute),
	}

	out := Merge(existing, incoming, false, 500)

	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].TradeID)
	assert.Equal(t, "a", out[1].TradeID)
}

func TestMerge_NothingFreshReturnsExistingUnchanged(t *testing.T) {
	existing := []domain.Trade{mkTrade("a", time.Minute)}
	incoming := []domain.Trade{mkTrade("a", time.Minute)}

	out := Merge(existing, incoming, false, 500)

	// same backing slice, no recomputation downstream
	assert.Same(t, &existing[0], &out[0])
	assert.Len(t, out, 1)
}

func TestMerge_DuplicateWithinIncomingKeptOnce(t *testing.T) {
	incoming := []domain.Trade{
		mkTrade("a", time.Minute),
		mkTrade("a", time.Minute),
	}

	out := Merge(nil, incoming, false, 500)
	assert.Len(t, out, 1)
}

func TestMerge_OrderedByTimeDescending(t *testing.T) {
	existing := []domain.Trade{
		mkTrade("A", 10*time.Minute),
		mkTrade("B", 30*time.Minute),
	}
	incoming := []domain.Trade{mkTrade("C", time.Minute)}

	out := Merge(existing, incoming, false, 500)

	require.Len(t, out, 3)
	assert.Equal(t, "C", out[0].TradeID)
	assert.Equal(t, "A", out[1].TradeID)
	assert.Equal(t, "B", out[2].TradeID)
}

func TestMerge_TruncatesOldestBeyondCap(t *testing.T) {
	existing := make([]domain.Trade, 0, 500)
	for i := 0; i < 500; i++ {
		existing = append(existing, mkTrade(fmt.Sprintf("t%d", i), time.Duration(i+1)*time.Second))
	}
	existing = Merge(nil, existing, true, 500)

	out := Merge(existing, []domain.Trade{mkTrade("newest", 0)}, false, 500)

	require.Len(t, out, 500)
	assert.Equal(t, "newest", out[0].TradeID)
	// the oldest entry fell off
	assert.Equal(t, "t498", out[499].TradeID)
}

func TestMerge_EqualTimestampsKeepInsertionBias(t *testing.T) {
	existing := []domain.Trade{mkTrade("old", time.Minute)}
	incoming := []domain.Trade{mkTrade("new", time.Minute)}

	out := Merge(existing, incoming, false, 500)

	require.Len(t, out, 2)
	// fresh trades are prepended and the sort is stable
	assert.Equal(t, "new", out[0].TradeID)
	assert.Equal(t, "old", out[1].TradeID)
}

// ========== Filter / Paginate ==========

func TestFilter_CriteriaAreANDCombined(t *testing.T) {
	whale := mkTrade("w", time.Minute)
	whale.Class = domain.ClassWhale
	whale.Signer = "zig1whale"
	whale.OfferDenom = "uzig"
	whale.AskDenom = "coin.zig1abc.frog"

	shark := mkTrade("s", 2*time.Minute)
	shark.Class = domain.ClassShark
	shark.Signer = "zig1whale"

	tape := []domain.Trade{whale, shark}

	out := Filter(tape, Criteria{Class: domain.ClassWhale, Signer: "ZIG1WHALE"})
	require.Len(t, out, 1)
	assert.Equal(t, "w", out[0].TradeID)
}

func TestFilter_DenomMatchesEitherSide(t *testing.T) {
	a := mkTrade("a", time.Minute)
	a.OfferDenom = "coin.zig1abc.frog"
	a.AskDenom = "uzig"

	b := mkTrade("b", 2*time.Minute)
	b.OfferDenom = "uzig"
	b.AskDenom = "coin.zig1abc.frog"

	c := mkTrade("c", 3*time.Minute)
	c.OfferDenom = "uzig"
	c.AskDenom = "coin.zig1xyz.toad"

	out := Filter([]domain.Trade{a, b, c}, Criteria{Denom: "coin.zig1abc.frog"})
	require.Len(t, out, 2)
}

func TestPaginate_ClampsOutOfRangePages(t *testing.T) {
	tape := []domain.Trade{
		mkTrade("a", time.Minute),
		mkTrade("b", 2*time.Minute),
		mkTrade("c", 3*time.Minute),
	}

	// past the end clamps to the last page
	out := Paginate(tape, 99, 2)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].TradeID)

	// below the start clamps to the first page
	out = Paginate(tape, 0, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].TradeID)
}

func TestPaginate_Empty(t *testing.T) {
	assert.Empty(t, Paginate(nil, 1, 50))
	assert.Empty(t, Paginate([]domain.Trade{mkTrade("a", 0)}, 1, 0))
}

// ========== SummarizeSigner / CountClasses ==========

func TestSummarizeSigner_Rollup(t *testing.T) {
	buy := mkTrade("b1", time.Minute)
	buy.Direction = domain.DirectionBuy
	buy.ValueUSD = decimal.NewFromInt(120)
	buy.PriceInZig = decimal.RequireFromString("0.5")

	sell := mkTrade("s1", 2*time.Minute)
	sell.Direction = domain.DirectionSell
	sell.PriceInZig = decimal.RequireFromString("0.4")

	withdraw := mkTrade("w1", 3*time.Minute)
	withdraw.Direction = domain.DirectionWithdraw

	other := mkTrade("x1", 30*time.Second)
	other.Signer = "zig1other"

	// newest first, as the tape is ordered
	tape := []domain.Trade{other, buy, sell, withdraw}

	sum := SummarizeSigner(tape, "ZIG1SIGNER")
	require.NotNil(t, sum)

	assert.Equal(t, 1, sum.Buys)
	assert.Equal(t, 1, sum.Sells)
	assert.Equal(t, domain.DirectionBuy, sum.LatestDirection)
	assert.Equal(t, buy.Time, sum.LatestTime)
	assert.True(t, sum.LatestValueUSD.Equal(decimal.NewFromInt(120)))
	// withdraw is excluded from the price history
	assert.Len(t, sum.Trades, 2)
}

func TestSummarizeSigner_ZeroPriceExcludedFromHistory(t *testing.T) {
	buy := mkTrade("b1", time.Minute)
	buy.PriceInZig = decimal.Zero

	sum := SummarizeSigner([]domain.Trade{buy}, "zig1signer")
	require.NotNil(t, sum)
	assert.Equal(t, 1, sum.Buys)
	assert.Empty(t, sum.Trades)
}

func TestSummarizeSigner_EmptySigner(t *testing.T) {
	assert.Nil(t, SummarizeSigner([]domain.Trade{mkTrade("a", 0)}, ""))
}

func TestCountClasses(t *testing.T) {
	w := mkTrade("w", time.Minute)
	w.Class = domain.ClassWhale
	s := mkTrade("s", 2*time.Minute)
	s.Class = domain.ClassShark

	counts := CountClasses([]domain.Trade{w, s, mkTrade("p1", 0), mkTrade("p2", 0)})

	assert.Equal(t, 1, counts.Whale)
	assert.Equal(t, 1, counts.Shark)
	assert.Equal(t, 2, counts.Shrimp)
}
