package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/storefront/internal/backend"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
)

// ChangeNotifier is called after every successful cart mutation.
type ChangeNotifier func(ctx context.Context, op string, cart *domain.Cart)

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog ProductCatalog
	sfg     singleflight.Group // Prevents cache stampede
	locks   *keyedMutex
	notify  ChangeNotifier
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, catalog ProductCatalog, notify ChangeNotifier) *CartService {
	if notify == nil {
		notify = LogChanges
	}
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		locks:   newKeyedMutex(),
		notify:  notify,
	}
}

// LogChanges is the default ChangeNotifier.
func LogChanges(ctx context.Context, op string, cart *domain.Cart) {
	logger.FromContext(ctx).Info("cart changed",
		zap.String("op", op),
		zap.String("owner_id", cart.OwnerID),
		zap.Int("lines", len(cart.Lines)),
		zap.Int("items", cart.ItemCount()),
		zap.String("total", cart.Total().String()),
	)
}

func (s *CartService) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(ownerID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, ownerID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.FromContext(ctx).Warn("cache get error", zap.Error(err))
		}

		cart, err = s.repo.GetCart(ctx, ownerID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.NewCart(ownerID), nil
		}
		if err != nil {
			return nil, err
		}

		// filled inline so a concurrent invalidation cannot be overwritten later
		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := s.cache.Set(setCtx, ownerID, cart); err != nil {
			logger.FromContext(ctx).Warn("cache set error", zap.Error(err))
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddItem puts qty units of a product in the cart. The resulting quantity is
// clamped to the stock reported by the catalog.
func (s *CartService) AddItem(ctx context.Context, ownerID string, productID int64, qty int) (*domain.Cart, error) {
	p, err := s.catalog.Product(ctx, productID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, domain.InputError("product does not exist")
	}
	if err != nil {
		return nil, err
	}
	if p.Stock <= 0 {
		return nil, domain.ValidationError("product is out of stock")
	}

	return s.mutate(ctx, ownerID, "add_item", func(c *domain.Cart) error {
		line := c.AddItem(p, qty)
		_, err := c.UpdateQuantity(line.ProductID, line.Quantity)
		return err
	})
}

func (s *CartService) UpdateQuantity(ctx context.Context, ownerID string, productID int64, qty int) (*domain.Cart, error) {
	return s.mutate(ctx, ownerID, "update_quantity", func(c *domain.Cart) error {
		_, err := c.UpdateQuantity(productID, qty)
		return err
	})
}

func (s *CartService) RemoveItem(ctx context.Context, ownerID string, productID int64) (*domain.Cart, error) {
	return s.mutate(ctx, ownerID, "remove_item", func(c *domain.Cart) error {
		c.RemoveItem(productID)
		return nil
	})
}

func (s *CartService) Clear(ctx context.Context, ownerID string) error {
	unlock := s.locks.Lock(ownerID)
	defer unlock()

	err := s.repo.DeleteCart(ctx, ownerID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		logger.FromContext(ctx).Error("repo delete cart error", zap.Error(err))
		return err
	}
	s.invalidateCache(ownerID)
	s.notify(ctx, "clear", domain.NewCart(ownerID))
	return nil
}

// mutate runs fn on the stored cart with the owner lock held, then persists
// and drops the cached copy.
func (s *CartService) mutate(ctx context.Context, ownerID, op string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	unlock := s.locks.Lock(ownerID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, ownerID)
	if errors.Is(err, repository.ErrCartNotFound) {
		cart = domain.NewCart(ownerID)
	} else if err != nil {
		return nil, err
	}

	if err := fn(cart); err != nil {
		return nil, err
	}
	if err := s.repo.SaveCart(ctx, cart); err != nil {
		logger.FromContext(ctx).Error("repo save cart error", zap.String("op", op), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(ownerID)
	s.notify(ctx, op, cart)
	return cart, nil
}

func (s *CartService) invalidateCache(ownerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, ownerID); err != nil {
		logger.FromContext(ctx).Warn("cache invalidate error", zap.String("owner_id", ownerID), zap.Error(err))
	}
}
