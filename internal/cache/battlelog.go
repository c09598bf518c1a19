// Package cache keeps recent upstream responses in Redis so repeated runs
// within the TTL don't spend API budget on the same players.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"meta-analyzer/internal/royale"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultTTL = 30 * time.Minute
	keyPrefix  = "metasampler:"
)

// Upstream is what the cache wraps
type Upstream interface {
	FetchBattleLog(ctx context.Context, tag string) ([]royale.Battle, error)
	TopPlayers(ctx context.Context, count int) ([]string, error)
}

// BattleLogCache is a read-through cache in front of an Upstream
type BattleLogCache struct {
	inner  Upstream
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps inner with a Redis cache. ttl <= 0 uses DefaultTTL.
func New(inner Upstream, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *BattleLogCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BattleLogCache{inner: inner, rdb: rdb, ttl: ttl, logger: logger.Named("cache")}
}

// Connect parses a redis:// URL and checks the server is reachable
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// FetchBattleLog serves from Redis when possible. Errors are never cached,
// and a Redis failure falls through to the upstream.
func (c *BattleLogCache) FetchBattleLog(ctx context.Context, tag string) ([]royale.Battle, error) {
	key := keyPrefix + "battlelog:" + royale.NormalizeTag(tag)

	var battles []royale.Battle
	if c.get(ctx, key, &battles) {
		return battles, nil
	}

	battles, err := c.inner.FetchBattleLog(ctx, tag)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, battles)
	return battles, nil
}

// TopPlayers caches the leaderboard snapshot per requested size
func (c *BattleLogCache) TopPlayers(ctx context.Context, count int) ([]string, error) {
	key := fmt.Sprintf("%sleaderboard:%d", keyPrefix, count)

	var tags []string
	if c.get(ctx, key, &tags) {
		return tags, nil
	}

	tags, err := c.inner.TopPlayers(ctx, count)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, tags)
	return tags, nil
}

// Stats returns hit and miss counts since creation
func (c *BattleLogCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *BattleLogCache) get(ctx context.Context, key string, v any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		c.rdb.Del(ctx, key)
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

func (c *BattleLogCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}
