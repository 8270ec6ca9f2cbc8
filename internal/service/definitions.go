package service

import (
	"context"

	"github.com/fjod/storefront/internal/backend"
	"github.com/fjod/storefront/internal/domain"
)

// Dependencies are declared here, next to their consumer.

type ProductCatalog interface {
	Product(ctx context.Context, id int64) (domain.Product, error)
}

type SettingsSource interface {
	Settings(ctx context.Context) (domain.StoreSettings, error)
}

type SaleRegistrar interface {
	CreateSale(ctx context.Context, order domain.SaleOrder) (backend.SaleReceipt, error)
}

type CardPaymentInitiator interface {
	InitiateCardPayment(ctx context.Context, sessionID string, order domain.SaleOrder) (domain.CardCheckout, error)
}

type PaymentReconciler interface {
	Reconcile(ctx context.Context, sessionID string) (domain.ReconcileResult, error)
	Cancel(ctx context.Context, sessionID string) error
}

type CheckoutStore interface {
	Load(ctx context.Context, sessionID string) (*domain.Checkout, error)
	Save(ctx context.Context, sessionID string, co *domain.Checkout) error
	Reset(ctx context.Context, sessionID string) error
}

type SettingsProvider interface {
	Get(ctx context.Context) (domain.StoreSettings, error)
}

type Carts interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	Clear(ctx context.Context, ownerID string) error
}
