package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/domain"
	"zigfeed/internal/mapper"
	"zigfeed/internal/metrics"
	"zigfeed/internal/pubsub"
	"zigfeed/internal/stream"
)

// DefaultLookback bounds the historical snapshot window.
const DefaultLookback = 7 * 24 * time.Hour

// SnapshotSource fetches the point-in-time REST snapshot.
type SnapshotSource interface {
	TradesByToken(ctx context.Context, tokenID string, timeframe int, unit string) ([]map[string]any, error)
}

// Attacher is the stream connection manager surface the service needs.
type Attacher interface {
	Attach(topic stream.Topic, fn stream.Listener) func()
}

// Archiver receives every trade newly merged into the tape, for long-term
// storage outside the bounded in-memory collection.
type Archiver interface {
	Archive(t domain.Trade)
	Health(ctx context.Context) error
}

type ServiceDeps struct {
	Log         logger.Logger
	Mapper      *mapper.Mapper
	Source      SnapshotSource
	Streams     Attacher
	Broadcaster pubsub.Broadcaster // optional
	Archiver    Archiver           // optional

	Token     string
	PoolID    int64
	Lookback  time.Duration
	MaxTrades int
}

// Service is the stateful core of the pipeline: it reconciles the REST
// snapshot with the push stream into one bounded, deduplicated, time-ordered
// tape and exposes filtered/paginated views over it. Stream messages are
// applied strictly in delivery order; every merge builds on the previous
// collection state.
type Service struct {
	log         logger.Logger
	mapper      *mapper.Mapper
	source      SnapshotSource
	streams     Attacher
	broadcaster pubsub.Broadcaster
	archiver    Archiver

	token     string
	poolID    int64
	lookback  time.Duration
	maxTrades int

	mu       sync.Mutex
	trades   []domain.Trade
	liveSeen bool
	closed   bool
	detach   func()

	now func() time.Time // test hook
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Mapper == nil {
		return nil, fmt.Errorf("mapper is required to the feed service")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("snapshot source is required to the feed service")
	}
	if deps.Streams == nil {
		return nil, fmt.Errorf("stream manager is required to the feed service")
	}

	lookback := deps.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	maxTrades := deps.MaxTrades
	if maxTrades <= 0 {
		maxTrades = DefaultMaxTrades
	}

	return &Service{
		log:         deps.Log,
		mapper:      deps.Mapper,
		source:      deps.Source,
		streams:     deps.Streams,
		broadcaster: deps.Broadcaster,
		archiver:    deps.Archiver,
		token:       deps.Token,
		poolID:      deps.PoolID,
		lookback:    lookback,
		maxTrades:   maxTrades,
		now:         time.Now,
	}, nil
}

// Start subscribes to the live stream and kicks off the snapshot fetch
// concurrently. Both paths feed the same collection through Merge.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.detach = s.streams.Attach(stream.Topic{Stream: "trades", PoolID: s.poolID}, s.onStreamMessage)
	s.mu.Unlock()

	go s.loadSnapshot(ctx)
}

// Close detaches from the stream and marks the service so a late-resolving
// snapshot fetch can no longer mutate state.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// loadSnapshot fetches the bounded lookback window, trying token identifier
// variants in order and accepting the first non-empty parsed result. A
// snapshot that resolves after live data has already been merged is
// discarded rather than overwriting fresher streamed state.
func (s *Service) loadSnapshot(ctx context.Context) {
	days := int(s.lookback / (24 * time.Hour))
	if days <= 0 {
		days = 1
	}
	cutoff := s.now().Add(-s.lookback)

	var batch []domain.Trade
	for _, id := range tokenVariants(s.token) {
		rows, err := s.source.TradesByToken(ctx, id, days, "day")
		if err != nil {
			s.log.Warnf("Snapshot fetch for %s failed: %v", id, err)
			metrics.SnapshotFetches.WithLabelValues("error").Inc()
			continue
		}

		mapped := make([]domain.Trade, 0, len(rows))
		for _, row := range rows {
			t := s.mapper.MapSnapshotTrade(ctx, row)
			if t == nil {
				metrics.TradesDropped.Inc()
				continue
			}
			// the tape shows swaps only, snapshot rows included
			if t.Direction != domain.DirectionBuy && t.Direction != domain.DirectionSell {
				continue
			}
			if t.Time.Before(cutoff) {
				continue
			}
			mapped = append(mapped, *t)
		}

		if len(mapped) > 0 {
			batch = mapped
			break
		}
	}

	if len(batch) == 0 {
		metrics.SnapshotFetches.WithLabelValues("empty").Inc()
		s.log.Infof("Snapshot for %s yielded no trades", s.token)
		return
	}
	metrics.SnapshotFetches.WithLabelValues("ok").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.liveSeen {
		// stream won the race, its data is fresher
		s.log.Debugf("Discarding late snapshot for %s (%d trades), live data already merged", s.token, len(batch))
		return
	}

	s.trades = Merge(nil, batch, true, s.maxTrades)
	s.log.Infof("Snapshot loaded for %s: %d trades", s.token, len(s.trades))
}

// envelope of one stream message
type streamEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// onStreamMessage maps and merges one inbound message. One bad item is
// dropped without affecting its siblings; no failure here ever propagates
// to the connection manager.
func (s *Service) onStreamMessage(msg []byte) {
	ctx := context.Background()

	var env streamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.log.Debugf("Unparseable stream message (%d bytes): %v", len(msg), err)
		return
	}

	items := decodeItems(env.Data)
	if len(items) == 0 {
		return
	}

	batch := make([]domain.Trade, 0, len(items))
	for _, item := range items {
		t := s.mapper.MapStreamTrade(ctx, item)
		if t == nil {
			metrics.TradesDropped.Inc()
			continue
		}
		// the tape shows swaps only, same rule as the snapshot path
		if t.Direction != domain.DirectionBuy && t.Direction != domain.DirectionSell {
			continue
		}
		batch = append(batch, *t)
	}

	isSnapshot := env.Type == "snapshot"

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.liveSeen = true

	var fresh []domain.Trade
	if isSnapshot {
		fresh = batch
	} else {
		seen := keySet(s.trades)
		for _, t := range batch {
			if !seen[t.IdentityKey()] {
				fresh = append(fresh, t)
			}
		}
	}

	s.trades = Merge(s.trades, batch, isSnapshot, s.maxTrades)
	s.mu.Unlock()

	for _, t := range fresh {
		metrics.TradesIngested.Inc()
		s.publish(ctx, t)
	}
}

func (s *Service) publish(ctx context.Context, t domain.Trade) {
	if s.broadcaster != nil {
		subject := fmt.Sprintf("trades.%d", s.poolID)
		if err := s.broadcaster.Publish(ctx, subject, t); err != nil {
			// subscribers catch up on the next trade
			s.log.Errorf("Failed to broadcast trade %s: %v", t.IdentityKey(), err)
		}
	}

	if s.archiver != nil {
		s.archiver.Archive(t)
	}
}

// Trades returns a copy of the current tape, newest first.
func (s *Service) Trades() []domain.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// Page returns one filtered page of the tape plus the total matching count.
func (s *Service) Page(c Criteria, page, pageSize int) ([]domain.Trade, int) {
	filtered := Filter(s.Trades(), c)
	return Paginate(filtered, page, pageSize), len(filtered)
}

// SignerSummary computes the rollup for one wallet from the current tape.
func (s *Service) SignerSummary(signer string) *domain.SignerSummary {
	return SummarizeSigner(s.Trades(), signer)
}

// Counts tallies the whale/shark/shrimp buckets of the current tape.
func (s *Service) Counts() ClassCounts {
	return CountClasses(s.Trades())
}

// CheckDependency reports the health of the optional side channels.
func (s *Service) CheckDependency(ctx context.Context) error {
	var problems []string

	if s.broadcaster != nil {
		if err := s.broadcaster.Health(ctx); err != nil {
			problems = append(problems, fmt.Sprintf("broadcaster: %v", err))
		}
	}
	if s.archiver != nil {
		if err := s.archiver.Health(ctx); err != nil {
			problems = append(problems, fmt.Sprintf("archiver: %v", err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("dependency check failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// decodeItems accepts both the single-item and the batch envelope shapes.
func decodeItems(data json.RawMessage) []map[string]any {
	if len(data) == 0 {
		return nil
	}

	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr
	}

	var one map[string]any
	if err := json.Unmarshal(data, &one); err == nil {
		return []map[string]any{one}
	}

	return nil
}

// tokenVariants lists the identifier spellings tried against the snapshot
// endpoint: the raw id, the suffix after the last path/namespace delimiter,
// and its upper-cased form.
func tokenVariants(token string) []string {
	variants := []string{token}

	if i := strings.LastIndexAny(token, "./"); i >= 0 && i+1 < len(token) {
		variants = append(variants, token[i+1:])
	}

	upper := strings.ToUpper(variants[len(variants)-1])
	variants = append(variants, upper)

	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
