// Package cache keeps posted manager prices close to the request path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rongwang/exchange-desk-server/internal/models"
)

const namespace = "price"

// PriceCache stores manager prices by currency pair. A miss is (nil, nil).
type PriceCache interface {
	Get(ctx context.Context, fromCurrency, toCurrency string) (*models.ManagerPrice, error)
	Set(ctx context.Context, price *models.ManagerPrice) error
	Delete(ctx context.Context, fromCurrency, toCurrency string) error
}

// Key returns the cache key for a pair
func Key(fromCurrency, toCurrency string) string {
	return namespace + ":" + fromCurrency + ":" + toCurrency
}

// RedisPriceCache is a PriceCache backed by Redis
type RedisPriceCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisPriceCache connects to a single Redis node
func NewRedisPriceCache(addr, password string, ttl time.Duration) *RedisPriceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return &RedisPriceCache{client: client, ttl: ttl}
}

// Ping checks the connection
func (c *RedisPriceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client
func (c *RedisPriceCache) Close() error {
	return c.client.Close()
}

func (c *RedisPriceCache) Get(ctx context.Context, fromCurrency, toCurrency string) (*models.ManagerPrice, error) {
	raw, err := c.client.Get(ctx, Key(fromCurrency, toCurrency)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var price models.ManagerPrice
	if err := json.Unmarshal(raw, &price); err != nil {
		return nil, err
	}
	return &price, nil
}

func (c *RedisPriceCache) Set(ctx context.Context, price *models.ManagerPrice) error {
	raw, err := json.Marshal(price)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(price.FromCurrency, price.ToCurrency), raw, c.ttl).Err()
}

func (c *RedisPriceCache) Delete(ctx context.Context, fromCurrency, toCurrency string) error {
	return c.client.Del(ctx, Key(fromCurrency, toCurrency)).Err()
}

// NopPriceCache never stores anything. Used when no Redis address is configured.
type NopPriceCache struct{}

func (NopPriceCache) Get(context.Context, string, string) (*models.ManagerPrice, error) {
	return nil, nil
}

func (NopPriceCache) Set(context.Context, *models.ManagerPrice) error { return nil }

func (NopPriceCache) Delete(context.Context, string, string) error { return nil }

var (
	_ PriceCache = (*RedisPriceCache)(nil)
	_ PriceCache = NopPriceCache{}
)
