package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/kv"
	rdb "zigfeed/internal/stores/redis"
)

// Store persists cache entries in Redis so a fresh process can reuse token
// metadata until its TTL expires. Read failures degrade to kv.ErrNotFound.
type Store struct {
	log    logger.Logger
	rdb    *rdb.Client
	prefix string
}

func NewStore(log logger.Logger, rdb *rdb.Client, prefix string) (*Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the kv store")
	}

	if prefix == "" {
		prefix = "zigfeed:"
	}

	return &Store{
		log:    log,
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			// unavailable storage is treated as an always-miss cache
			s.log.Warnf("Redis GET %s failed, treating as miss: %v", key, err)
		}
		return nil, kv.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		s.log.Warnf("Redis SET %s failed: %v", key, err)
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

var _ kv.Store = (*Store)(nil)
