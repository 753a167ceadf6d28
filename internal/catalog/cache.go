package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

// ErrCacheMiss возвращается, если снимка каталога нет в кэше.
var ErrCacheMiss = errors.New("cache miss")

const availableKey = "catalog:available"

// Cache хранит снимок доступных товаров.
type Cache interface {
	Get(ctx context.Context) ([]model.Product, error)
	Set(ctx context.Context, products []model.Product) error
	Delete(ctx context.Context) error
}

// RedisCache хранит снимок каталога в Redis в виде JSON.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache создаёт кэш с заданным временем жизни записи.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get возвращает снимок или ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context) ([]model.Product, error) {
	data, err := c.client.Get(ctx, availableKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	return products, nil
}

// Set сохраняет снимок.
func (c *RedisCache) Set(ctx context.Context, products []model.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	if err := c.client.Set(ctx, availableKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete удаляет снимок.
func (c *RedisCache) Delete(ctx context.Context) error {
	if err := c.client.Del(ctx, availableKey).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}
