package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront/internal/domain"
)

// setupTestRedis starts miniredis and returns a client pointing at it.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return client, mr, cleanup
}

func testCart(ownerID string) *domain.Cart {
	c := domain.NewCart(ownerID)
	c.AddItem(domain.Product{ID: 1, Name: "Yerba 1kg", Price: decimal.RequireFromString("4200.50"), Stock: 8}, 2)
	c.AddItem(domain.Product{ID: 2, Name: "Bombilla", Price: decimal.NewFromInt(3100), Stock: 3}, 1)
	return c
}

func TestGet_Success(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisCache(client)

	data, err := json.Marshal(testCart("sid-1"))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cartKey("sid-1"), string(data)))

	result, err := cache.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", result.OwnerID)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, "4200.5", result.Lines[0].UnitPrice.String())
	assert.Equal(t, "11501", result.Total().String())
}

func TestGet_CacheMiss(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	result, err := NewRedisCache(client).Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set(cartKey("sid-1"), `{"owner_id":"si`))

	_, err := NewRedisCache(client).Get(context.Background(), "sid-1")
	require.ErrorContains(t, err, "unmarshal cart:sid-1 failed")
}

func TestSet_WithJitteredTTL(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	err := NewRedisCache(client).Set(context.Background(), "sid-2", testCart("sid-2"))
	require.NoError(t, err)

	assert.True(t, mr.Exists(cartKey("sid-2")))
	ttl := mr.TTL(cartKey("sid-2"))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)
}

func TestDelete(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "sid-3", testCart("sid-3")))
	require.NoError(t, cache.Delete(ctx, "sid-3"))
	assert.False(t, mr.Exists(cartKey("sid-3")))

	assert.NoError(t, cache.Delete(ctx, "nonexistent"))
}

func TestSettingsCache_RoundTrip(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	cache := NewRedisSettingsCache(client, 5*time.Minute)
	ctx := context.Background()

	_, err := cache.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	settings := &domain.StoreSettings{
		DefaultShippingPrice: decimal.NewFromInt(2500),
		ShippingZones: []domain.ShippingZone{
			{ID: "1", Label: "Centro", Price: decimal.NewFromInt(1200), Localities: []string{"san miguel"}},
		},
		PaymentMethods: domain.PaymentMethods{Cash: true, Cards: true},
	}
	require.NoError(t, cache.Set(ctx, settings))
	assert.Equal(t, 5*time.Minute, mr.TTL(settingsKey))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.DefaultShippingPrice.Equal(settings.DefaultShippingPrice))
	assert.Equal(t, settings.PaymentMethods, got.PaymentMethods)
	require.Len(t, got.ShippingZones, 1)
	assert.Equal(t, "Centro", got.ShippingZones[0].Label)

	mr.FastForward(6 * time.Minute)
	_, err = cache.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCartKey_Format(t *testing.T) {
	assert.Equal(t, "cart:test123", cartKey("test123"))
}
