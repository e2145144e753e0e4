package tokenmeta

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/domain"
	"zigfeed/internal/kv"
)

// DefaultTTL is how long a resolved metadata entry stays valid.
const DefaultTTL = 5 * time.Minute

// Remote lookup for a denom's price/icon/exponent. Implemented by the
// upstream REST client.
type Source interface {
	TokenMeta(ctx context.Context, denom string) (price float64, icon string, exponent int, err error)
}

// Cache resolves denom metadata through a process-local TTL map, backed by an
// injectable key-value store so a fresh process can reuse entries until they
// expire. Last writer wins on Put; concurrent Resolve calls for the same
// denom may race and redundantly fetch, which is harmless since writes are
// idempotent per denom.
type Cache struct {
	log    logger.Logger
	source Source
	store  kv.Store
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[string]domain.TokenMeta

	now func() time.Time // test hook
}

func NewCache(log logger.Logger, source Source, store kv.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if store == nil {
		store = kv.NewMemoryStore()
	}

	return &Cache{
		log:     log,
		source:  source,
		store:   store,
		ttl:     ttl,
		entries: make(map[string]domain.TokenMeta, 64),
		now:     time.Now,
	}
}

// Get returns the cached entry for a denom. A hit requires the entry to be
// younger than the TTL; expired entries count as misses. On an in-memory
// miss the durable store is consulted before giving up.
func (c *Cache) Get(ctx context.Context, denom string) (domain.TokenMeta, bool) {
	key := NormalizeDenom(denom)
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && now.Sub(e.Timestamp) < c.ttl {
		return e, true
	}
	if ok {
		return domain.TokenMeta{}, false // expired in memory, durable copy is no fresher
	}

	return c.loadPersisted(ctx, key, now)
}

// Put overwrites the entry for a denom, stamped with the current time, and
// persists it best-effort to the durable store.
func (c *Cache) Put(ctx context.Context, denom string, price float64, icon string, exponent int) {
	key := NormalizeDenom(denom)
	e := domain.TokenMeta{
		Price:     price,
		Icon:      icon,
		Exponent:  exponent,
		Timestamp: c.now(),
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err = c.store.Set(ctx, storeKey(key), b); err != nil {
		c.log.Debugf("Persist metadata for %s failed: %v", key, err)
	}
}

// Resolve returns metadata for a denom, fetching it from the remote source on
// a miss. A failed fetch yields defaults (exponent 6, zero price, no icon)
// and is NOT cached, so a later call retries.
func (c *Cache) Resolve(ctx context.Context, denom string) domain.TokenMeta {
	if e, ok := c.Get(ctx, denom); ok {
		return e
	}

	price, icon, exponent, err := c.source.TokenMeta(ctx, NormalizeDenom(denom))
	if err != nil {
		c.log.Warnf("Metadata fetch for %s failed, using defaults: %v", denom, err)
		return domain.TokenMeta{Exponent: NativeExponent, Timestamp: c.now()}
	}

	c.Put(ctx, denom, price, icon, exponent)
	return domain.TokenMeta{Price: price, Icon: icon, Exponent: exponent, Timestamp: c.now()}
}

func (c *Cache) loadPersisted(ctx context.Context, key string, now time.Time) (domain.TokenMeta, bool) {
	b, err := c.store.Get(ctx, storeKey(key))
	if err != nil {
		return domain.TokenMeta{}, false
	}

	var e domain.TokenMeta
	if err = json.Unmarshal(b, &e); err != nil {
		// corrupt entry degrades to a miss
		_ = c.store.Remove(ctx, storeKey(key))
		return domain.TokenMeta{}, false
	}

	if now.Sub(e.Timestamp) >= c.ttl {
		return domain.TokenMeta{}, false
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	return e, true
}

func storeKey(normDenom string) string {
	return "token_" + normDenom
}
