package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
)

const settingsFlightKey = "settings"

// SettingsService is a read-through cache in front of GET /settings.
type SettingsService struct {
	source SettingsSource
	cache  cache.SettingsCache
	sfg    singleflight.Group
}

func NewSettingsService(source SettingsSource, cache cache.SettingsCache) *SettingsService {
	return &SettingsService{source: source, cache: cache}
}

func (s *SettingsService) Get(ctx context.Context) (domain.StoreSettings, error) {
	v, err, _ := s.sfg.Do(settingsFlightKey, func() (interface{}, error) {
		cached, err := s.cache.Get(ctx)
		if err == nil {
			return *cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.FromContext(ctx).Warn("settings cache get error", zap.Error(err))
		}

		settings, err := s.source.Settings(ctx)
		if err != nil {
			return nil, err
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := s.cache.Set(setCtx, &settings); err != nil {
			logger.FromContext(ctx).Warn("settings cache set error", zap.Error(err))
		}
		return settings, nil
	})
	if err != nil {
		return domain.StoreSettings{}, err
	}
	return v.(domain.StoreSettings), nil
}

// Invalidate drops the cached settings so the next Get refetches them.
func (s *SettingsService) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx)
}
