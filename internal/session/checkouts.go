package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

const KeyCheckoutState = "checkout_state"

// Checkouts persists the checkout wizard of each session.
type Checkouts struct {
	store Store
}

func NewCheckouts(store Store) *Checkouts {
	return &Checkouts{store: store}
}

// Load returns the stored checkout or a fresh one.
func (c *Checkouts) Load(ctx context.Context, sessionID string) (*domain.Checkout, error) {
	raw, ok, err := c.store.Get(ctx, sessionID, KeyCheckoutState)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return domain.NewCheckout(), nil
	}
	var co domain.Checkout
	if err := json.Unmarshal([]byte(raw), &co); err != nil {
		return nil, fmt.Errorf("unmarshal checkout state: %w", err)
	}
	return &co, nil
}

func (c *Checkouts) Save(ctx context.Context, sessionID string, co *domain.Checkout) error {
	data, err := json.Marshal(co)
	if err != nil {
		return fmt.Errorf("marshal checkout state: %w", err)
	}
	return c.store.Set(ctx, sessionID, map[string]string{KeyCheckoutState: string(data)})
}

func (c *Checkouts) Reset(ctx context.Context, sessionID string) error {
	return c.store.Remove(ctx, sessionID, KeyCheckoutState)
}
