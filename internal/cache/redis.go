package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/storefront/internal/domain"
)

const settingsKey = "storefront:settings"

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:    client,
		baseTTL:   15 * time.Minute,
		maxJitter: 5 * time.Minute,
	}
}

// RedisCache caches carts under cart:<owner> with a jittered TTL so entries
// written together do not expire together.
type RedisCache struct {
	client    *redis.Client
	baseTTL   time.Duration
	maxJitter time.Duration
}

func (r RedisCache) Get(ctx context.Context, ownerID string) (*domain.Cart, error) {
	var cart domain.Cart
	if err := getJSON(ctx, r.client, cartKey(ownerID), &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r RedisCache) Set(ctx context.Context, ownerID string, cart *domain.Cart) error {
	return setJSON(ctx, r.client, cartKey(ownerID), cart, jittered(r.baseTTL, r.maxJitter))
}

func (r RedisCache) Delete(ctx context.Context, ownerID string) error {
	if err := r.client.Del(ctx, cartKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func NewRedisSettingsCache(client *redis.Client, ttl time.Duration) *RedisSettingsCache {
	return &RedisSettingsCache{client: client, ttl: ttl}
}

// RedisSettingsCache holds the single store settings document.
type RedisSettingsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (r RedisSettingsCache) Get(ctx context.Context) (*domain.StoreSettings, error) {
	var s domain.StoreSettings
	if err := getJSON(ctx, r.client, settingsKey, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r RedisSettingsCache) Set(ctx context.Context, settings *domain.StoreSettings) error {
	return setJSON(ctx, r.client, settingsKey, settings, r.ttl)
}

func (r RedisSettingsCache) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, settingsKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func getJSON(ctx context.Context, client *redis.Client, key string, v any) error {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return nil
}

func setJSON(ctx context.Context, client *redis.Client, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	if err := client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func jittered(base, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(maxJitter)))
}

func cartKey(ownerID string) string {
	return fmt.Sprintf("cart:%s", ownerID)
}
