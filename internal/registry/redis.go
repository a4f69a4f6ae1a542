package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fixly/internal/config"
	"fixly/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares registry lookups across instances through Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	client := redis.NewClient(options)

	return client
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *RedisCache) GetServiceListing(ctx context.Context, serviceID string) (*models.ServiceListing, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("service_listing:%s", serviceID)
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service listing from redis: %w", err)
	}

	var listing models.ServiceListing
	if err := json.Unmarshal([]byte(val), &listing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal service listing: %w", err)
	}

	return &listing, nil
}

func (c *RedisCache) SetServiceListing(ctx context.Context, listing *models.ServiceListing) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("service_listing:%s", listing.ServiceID)
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal service listing: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set service listing in redis: %w", err)
	}

	return nil
}

func (c *RedisCache) GetVendor(ctx context.Context, userID string) (*models.Vendor, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("vendor:%s", userID)
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor from redis: %w", err)
	}

	var vendor models.Vendor
	if err := json.Unmarshal([]byte(val), &vendor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vendor: %w", err)
	}

	return &vendor, nil
}

func (c *RedisCache) SetVendor(ctx context.Context, userID string, vendor *models.Vendor) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("vendor:%s", userID)
	data, err := json.Marshal(vendor)
	if err != nil {
		return fmt.Errorf("failed to marshal vendor: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set vendor in redis: %w", err)
	}

	return nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
