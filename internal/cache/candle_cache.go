package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

// Expired reports whether a cached series must be refreshed. An empty series
// always is; otherwise the series is stale once now passes the close time of
// its last candle. In backtest mode any non-empty series is reused.
func Expired(candles []model.Candle, now time.Time, backtestMode bool) bool {
	if len(candles) == 0 {
		return true
	}
	if backtestMode {
		return false
	}
	return now.UnixMilli() > candles[len(candles)-1].CloseTime
}

// Key builds the cache key of a candle query
func Key(prefix string, q model.CandleQuery) string {
	parts := []string{strings.ToUpper(q.Symbol), q.Interval, fmt.Sprint(q.StartTime)}
	if prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, ":")
}

// RedisCandleCache stores candle series as JSON values in Redis
type RedisCandleCache struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisCandleCache creates a new redis backed candle cache
func NewRedisCandleCache(client *redis.Client, prefix string, logger *zap.Logger) *RedisCandleCache {
	return &RedisCandleCache{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Get returns the cached series. A miss is reported as (nil, false, nil).
func (c *RedisCandleCache) Get(ctx context.Context, q model.CandleQuery) ([]model.Candle, bool, error) {
	key := Key(c.prefix, q)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("Cache miss", zap.String("cache_key", key))
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("Failed to read candle cache", zap.String("cache_key", key), zap.Error(err))
		return nil, false, fmt.Errorf("failed to read candle cache: %w", err)
	}

	var candles []model.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached candles: %w", err)
	}

	c.logger.Debug("Cache hit", zap.String("cache_key", key), zap.Int("candles", len(candles)))
	return candles, true, nil
}

// Set stores a series. ttl <= 0 keeps it until overwritten.
func (c *RedisCandleCache) Set(ctx context.Context, q model.CandleQuery, candles []model.Candle, ttl time.Duration) error {
	key := Key(c.prefix, q)

	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("failed to encode candles: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Error("Failed to set cache", zap.String("cache_key", key), zap.Error(err))
		return fmt.Errorf("failed to write candle cache: %w", err)
	}

	c.logger.Debug("Cache set",
		zap.String("cache_key", key),
		zap.Int("candles", len(candles)),
		zap.Duration("ttl", ttl))
	return nil
}

// MemoryCandleCache is the in-process cache used when Redis is disabled
type MemoryCandleCache struct {
	mu      sync.RWMutex
	entries map[string][]model.Candle
}

// NewMemoryCandleCache creates an empty in-process cache
func NewMemoryCandleCache() *MemoryCandleCache {
	return &MemoryCandleCache{entries: make(map[string][]model.Candle)}
}

// Get returns the cached series
func (c *MemoryCandleCache) Get(_ context.Context, q model.CandleQuery) ([]model.Candle, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	candles, ok := c.entries[Key("", q)]
	return candles, ok, nil
}

// Set stores a series. The ttl is ignored; staleness is decided by Expired.
func (c *MemoryCandleCache) Set(_ context.Context, q model.CandleQuery, candles []model.Candle, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key("", q)] = candles
	return nil
}
