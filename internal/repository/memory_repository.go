package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

// MemoryCartRepository keeps carts in process. Used when CART_STORE=memory
// and in tests.
type MemoryCartRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{carts: make(map[string]domain.Cart)}
}

func (m *MemoryCartRepository) GetCart(_ context.Context, ownerID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.carts[ownerID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return copyCart(c), nil
}

func (m *MemoryCartRepository) SaveCart(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	m.carts[cart.OwnerID] = *copyCart(*cart)
	return nil
}

func (m *MemoryCartRepository) DeleteCart(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.carts[ownerID]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, ownerID)
	return nil
}

func copyCart(c domain.Cart) *domain.Cart {
	out := c
	out.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &out
}
