package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/domain"
	"zigfeed/internal/mapper"
	"zigfeed/internal/stream"
	"zigfeed/internal/tokenmeta"
)

// ========== Test Helpers ==========

// NoopLogger is a logger that does nothing (for testing)
type NoopLogger struct{}

func (n *NoopLogger) Debug(msg string)                          {}
func (n *NoopLogger) Debugf(format string, args ...interface{}) {}
func (n *NoopLogger) Info(msg string)                           {}
func (n *NoopLogger) Infof(format string, args ...interface{})  {}
func (n *NoopLogger) Warn(msg string)                           {}
func (n *NoopLogger) Warnf(format string, args ...interface{})  {}
func (n *NoopLogger) Error(msg string)                          {}
func (n *NoopLogger) Errorf(format string, args ...interface{}) {}
func (n *NoopLogger) Fatal(msg string)                          {}
func (n *NoopLogger) Fatalf(format string, args ...interface{}) {}
func (n *NoopLogger) Panic(msg string)                          {}
func (n *NoopLogger) Panicf(format string, args ...interface{}) {}
func (n *NoopLogger) WithField(key string, value interface{}) logger.Logger {
	return n
}
func (n *NoopLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return n
}

type fakeSource struct {
	mu    sync.Mutex
	rows  map[string][]map[string]any
	calls []string
}

func (f *fakeSource) TradesByToken(_ context.Context, tokenID string, _ int, _ string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tokenID)
	return f.rows[tokenID], nil
}

func (f *fakeSource) TokenMeta(context.Context, string) (float64, string, int, error) {
	return 0, "", 0, errors.New("no metadata in tests")
}

type fakeAttacher struct {
	mu       sync.Mutex
	listener stream.Listener
	detached bool
}

func (f *fakeAttacher) Attach(_ stream.Topic, fn stream.Listener) func() {
	f.mu.Lock()
	f.listener = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.detached = true
		f.mu.Unlock()
	}
}

type capturingBroadcaster struct {
	mu       sync.Mutex
	subjects []string
}

func (c *capturingBroadcaster) Publish(_ context.Context, subject string, _ any) error {
	c.mu.Lock()
	c.subjects = append(c.subjects, subject)
	c.mu.Unlock()
	return nil
}

func (c *capturingBroadcaster) Health(context.Context) error { return nil }

func newTestService(t *testing.T, src *fakeSource) (*Service, *fakeAttacher, *capturingBroadcaster) {
	t.Helper()

	log := &NoopLogger{}
	cache := tokenmeta.NewCache(log, src, nil, time.Minute)
	m := mapper.New(log, tokenmeta.NewNormalizer(cache))

	att := &fakeAttacher{}
	bc := &capturingBroadcaster{}

	svc, err := NewService(ServiceDeps{
		Log:         log,
		Mapper:      m,
		Source:      src,
		Streams:     att,
		Broadcaster: bc,
		Token:       "coin.zig1abc.frog",
		PoolID:      7,
		MaxTrades:   500,
	})
	require.NoError(t, err)

	return svc, att, bc
}

func snapshotRow(id string, age time.Duration, direction string) map[string]any {
	return map[string]any{
		"tradeId":      id,
		"txHash":       "tx-" + id,
		"created_at":   time.Now().UTC().Add(-age).Format(time.RFC3339Nano),
		"direction":    direction,
		"offerDenom":   "uzig",
		"askDenom":     "coin.zig1abc.frog",
		"offerAmount":  "1500",
		"returnAmount": "3000",
		"signer":       "zig1signer",
	}
}

func streamEvent(id string, direction string) string {
	return fmt.Sprintf(`{"type":"trade","data":{"tradeId":%q,"txHash":"tx-%s","createdAt":%q,"direction":%q,"offer_asset_denom":"uzig","ask_asset_denom":"coin.zig1abc.frog","offerAmount":"1500","returnAmount":"3000","signer":"zig1signer","action":"swap"}}`,
		id, id, time.Now().UTC().Format(time.RFC3339Nano), direction)
}

// ========== Snapshot ==========

func TestLoadSnapshot_PopulatesTape(t *testing.T) {
	src := &fakeSource{rows: map[string][]map[string]any{
		"coin.zig1abc.frog": {
			snapshotRow("a", time.Minute, "buy"),
			snapshotRow("b", 2*time.Minute, "sell"),
		},
	}}
	svc, _, _ := newTestService(t, src)

	svc.loadSnapshot(context.Background())

	trades := svc.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "a", trades[0].TradeID)
}

func TestLoadSnapshot_SkipsLiquidityEvents(t *testing.T) {
	src := &fakeSource{rows: map[string][]map[string]any{
		"coin.zig1abc.frog": {
			snapshotRow("a", time.Minute, "buy"),
			snapshotRow("lp", 2*time.Minute, "provide"),
			snapshotRow("wd", 3*time.Minute, "withdraw"),
		},
	}}
	svc, _, _ := newTestService(t, src)

	svc.loadSnapshot(context.Background())

	trades := svc.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "a", trades[0].TradeID)
}

func TestLoadSnapshot_FallsBackToTokenVariants(t *testing.T) {
	// only the suffix spelling has data
	src := &fakeSource{rows: map[string][]map[string]any{
		"frog": {snapshotRow("a", time.Minute, "buy")},
	}}
	svc, _, _ := newTestService(t, src)

	svc.loadSnapshot(context.Background())

	require.Len(t, svc.Trades(), 1)
	assert.Equal(t, []string{"coin.zig1abc.frog", "frog"}, src.calls)
}

func TestLoadSnapshot_DiscardedWhenLiveDataArrivedFirst(t *testing.T) {
	src := &fakeSource{rows: map[string][]map[string]any{
		"coin.zig1abc.frog": {snapshotRow("stale", time.Minute, "buy")},
	}}
	svc, _, _ := newTestService(t, src)

	// the stream wins the race
	svc.onStreamMessage([]byte(streamEvent("live", "buy")))
	svc.loadSnapshot(context.Background())

	trades := svc.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "live", trades[0].TradeID)
}

func TestLoadSnapshot_DiscardedAfterClose(t *testing.T) {
	src := &fakeSource{rows: map[string][]map[string]any{
		"coin.zig1abc.frog": {snapshotRow("a", time.Minute, "buy")},
	}}
	svc, _, _ := newTestService(t, src)

	svc.Close()
	svc.loadSnapshot(context.Background())

	assert.Empty(t, svc.Trades())
}

// ========== Stream ==========

func TestOnStreamMessage_MergesAndBroadcasts(t *testing.T) {
	svc, _, bc := newTestService(t, &fakeSource{})

	svc.onStreamMessage([]byte(streamEvent("a", "buy")))
	svc.onStreamMessage([]byte(streamEvent("b", "sell")))
	// duplicate is merged away and not re-published
	svc.onStreamMessage([]byte(streamEvent("a", "buy")))

	assert.Len(t, svc.Trades(), 2)

	bc.mu.Lock()
	defer bc.mu.Unlock()
	assert.Equal(t, []string{"trades.7", "trades.7"}, bc.subjects)
}

func TestOnStreamMessage_DiscardsNonSwapEvents(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSource{})

	msg := `{"type":"trade","data":{"txHash":"tx-lp","action":"provide_liquidity","offerAmount":"10","signer":"zig1signer"}}`
	svc.onStreamMessage([]byte(msg))

	assert.Empty(t, svc.Trades())
}

func TestOnStreamMessage_SkipsLiquidityEvents(t *testing.T) {
	svc, _, bc := newTestService(t, &fakeSource{})

	svc.onStreamMessage([]byte(streamEvent("a", "buy")))
	// explicit provide/withdraw directions stay off the tape, same as snapshot rows
	svc.onStreamMessage([]byte(streamEvent("lp", "provide")))
	svc.onStreamMessage([]byte(streamEvent("wd", "withdraw")))

	trades := svc.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.DirectionBuy, trades[0].Direction)

	bc.mu.Lock()
	defer bc.mu.Unlock()
	assert.Len(t, bc.subjects, 1)
}

func TestOnStreamMessage_AcceptsBatchArrays(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSource{})

	msg := fmt.Sprintf(`{"type":"trade","data":[%s,%s]}`,
		`{"tradeId":"a","txHash":"tx-a","createdAt":"2025-06-01T12:00:00Z","direction":"buy","offerDenom":"uzig","askDenom":"coin.zig1abc.frog","offerAmount":"10","returnAmount":"20","signer":"zig1signer"}`,
		`{"tradeId":"b","txHash":"tx-b","createdAt":"2025-06-01T12:00:01Z","direction":"sell","offerDenom":"coin.zig1abc.frog","askDenom":"uzig","offerAmount":"20","returnAmount":"10","signer":"zig1signer"}`)
	svc.onStreamMessage([]byte(msg))

	assert.Len(t, svc.Trades(), 2)
}

func TestOnStreamMessage_UnparseableIgnored(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSource{})

	svc.onStreamMessage([]byte("not json"))
	svc.onStreamMessage([]byte(`{"type":"trade"}`))

	assert.Empty(t, svc.Trades())
}

func TestOnStreamMessage_IgnoredAfterClose(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSource{})

	svc.Close()
	svc.onStreamMessage([]byte(streamEvent("a", "buy")))

	assert.Empty(t, svc.Trades())
}

// ========== Lifecycle / accessors ==========

func TestStartAndClose_DetachesStream(t *testing.T) {
	svc, att, _ := newTestService(t, &fakeSource{})

	svc.Start(context.Background())

	att.mu.Lock()
	require.NotNil(t, att.listener)
	att.mu.Unlock()

	svc.Close()

	att.mu.Lock()
	assert.True(t, att.detached)
	att.mu.Unlock()
}

func TestPageAndCounts(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSource{})

	for i := 0; i < 5; i++ {
		svc.onStreamMessage([]byte(streamEvent(fmt.Sprintf("t%d", i), "buy")))
	}

	page, total := svc.Page(Criteria{}, 1, 2)
	assert.Len(t, page, 2)
	assert.Equal(t, 5, total)

	counts := svc.Counts()
	assert.Equal(t, 5, counts.Whale+counts.Shark+counts.Shrimp)
}

func TestTokenVariants(t *testing.T) {
	assert.Equal(t, []string{"coin.zig1abc.frog", "frog", "FROG"}, tokenVariants("coin.zig1abc.frog"))
	assert.Equal(t, []string{"uzig", "UZIG"}, tokenVariants("uzig"))
	assert.Equal(t, []string{"FROG"}, tokenVariants("FROG"))
}
