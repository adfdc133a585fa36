package datahub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/models"
)

// retentionByTimeframe caps how long a cached series stays useful.
var retentionByTimeframe = map[string]time.Duration{
	"1m":  12 * time.Hour,
	"5m":  5 * 24 * time.Hour,
	"15m": 10 * 24 * time.Hour,
}

// RedisBarCache stores whole bar series as JSON values keyed by
// timeframe and symbol.
type RedisBarCache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

func NewRedisBarCache(cfg config.Redis) *RedisBarCache {
	return &RedisBarCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		defaultTTL: time.Duration(cfg.TTLMin) * time.Minute,
	}
}

func barKey(timeframe, symbol string) string {
	return fmt.Sprintf("bars:%s:%s", timeframe, symbol)
}

func (c *RedisBarCache) Load(ctx context.Context, symbol, timeframe string, lookback int) ([]models.Bar, error) {
	raw, err := c.client.Get(ctx, barKey(timeframe, symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", symbol, err)
	}
	var bars []models.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("cache decode %s: %w", symbol, err)
	}
	if len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	return bars, nil
}

func (c *RedisBarCache) Store(ctx context.Context, symbol, timeframe string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	raw, err := json.Marshal(bars)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", symbol, err)
	}
	ttl := c.defaultTTL
	if retention, ok := retentionByTimeframe[timeframe]; ok {
		ttl = retention
	}
	if err := c.client.Set(ctx, barKey(timeframe, symbol), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", symbol, err)
	}
	return nil
}

// Ping verifies connectivity at startup.
func (c *RedisBarCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBarCache) Close() error {
	return c.client.Close()
}

// NoopBarCache disables caching; every cycle fetches from the source.
type NoopBarCache struct{}

func (NoopBarCache) Load(context.Context, string, string, int) ([]models.Bar, error) {
	return nil, nil
}

func (NoopBarCache) Store(context.Context, string, string, []models.Bar) error {
	return nil
}
