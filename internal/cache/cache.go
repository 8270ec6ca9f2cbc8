package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, ownerID string) (*domain.Cart, error)
	Set(ctx context.Context, ownerID string, cart *domain.Cart) error
	Delete(ctx context.Context, ownerID string) error
}

type SettingsCache interface {
	Get(ctx context.Context) (*domain.StoreSettings, error)
	Set(ctx context.Context, settings *domain.StoreSettings) error
	Delete(ctx context.Context) error
}

var ErrCacheMiss = errors.New("cache miss")
