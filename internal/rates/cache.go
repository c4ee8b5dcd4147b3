package rates

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/core-coin/salarium/internal/models"
)

const cacheKeyPrefix = "salarium:rate:"

// Cache keeps recently fetched market rates.
type Cache interface {
	Get(ctx context.Context, currency models.CurrencyType) (decimal.Decimal, bool, error)
	Set(ctx context.Context, currency models.CurrencyType, rate decimal.Decimal, ttl time.Duration) error
}

// RedisCache stores rates as decimal strings under salarium:rate:<currency>.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the redis instance at url (redis://...).
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Get(ctx context.Context, currency models.CurrencyType) (decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+string(currency)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, err
	}
	return rate, true, nil
}

func (c *RedisCache) Set(ctx context.Context, currency models.CurrencyType, rate decimal.Decimal, ttl time.Duration) error {
	return c.client.Set(ctx, cacheKeyPrefix+string(currency), rate.String(), ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
