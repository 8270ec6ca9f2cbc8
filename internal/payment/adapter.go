// Package payment runs the redirect-based card payment: opening the hosted
// checkout and reconciling its result when the shopper comes back.
package payment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/backend"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
)

type Gateway interface {
	CreateSale(ctx context.Context, order domain.SaleOrder) (backend.SaleReceipt, error)
	CreateCardCheckout(ctx context.Context, req backend.CardCheckoutRequest) (backend.CardCheckoutResponse, error)
}

type PendingStore interface {
	Save(ctx context.Context, sessionID string, p domain.PendingPaymentSession) error
	Load(ctx context.Context, sessionID string) (domain.PendingPaymentSession, bool, error)
	Discard(ctx context.Context, sessionID string) error
}

type GatewayAdapter struct {
	gateway Gateway
	pending PendingStore
	now     func() time.Time
}

func NewGatewayAdapter(gateway Gateway, pending PendingStore) *GatewayAdapter {
	return &GatewayAdapter{gateway: gateway, pending: pending, now: time.Now}
}

// InitiateCardPayment registers the sale, opens the hosted checkout and
// stores the pending payment before handing back the redirect. Nothing is
// stored when any earlier step fails.
func (a *GatewayAdapter) InitiateCardPayment(ctx context.Context, sessionID string, order domain.SaleOrder) (domain.CardCheckout, error) {
	if !domain.ValidEmail(order.Customer.Email) {
		return domain.CardCheckout{}, domain.ValidationError("a valid email is required for card payments")
	}
	log := logger.FromContext(ctx).With(zap.String("session_id", sessionID))

	receipt, err := a.gateway.CreateSale(ctx, order)
	if err != nil {
		return domain.CardCheckout{}, domain.SaleCreationError("we could not register your order, please try again", err)
	}
	if receipt.SaleID == "" || !receipt.Total.IsPositive() {
		log.Warn("sale response without id or total", zap.String("sale_id", receipt.SaleID), zap.String("total", receipt.Total.String()))
		return domain.CardCheckout{}, domain.SaleCreationError("we could not register your order, please try again", nil)
	}

	resp, err := a.gateway.CreateCardCheckout(ctx, backend.CardCheckoutRequest{
		SaleID:   receipt.SaleID,
		Amount:   receipt.Total,
		Customer: order.Customer,
	})
	if err != nil {
		return domain.CardCheckout{}, domain.CheckoutCreationError("the card payment could not be started", err)
	}
	if resp.CheckoutURL == "" || resp.TransactionID == "" {
		return domain.CardCheckout{}, domain.CheckoutCreationError("the card payment could not be started", nil)
	}

	pending := domain.PendingPaymentSession{
		TransactionID: resp.TransactionID,
		SaleID:        receipt.SaleID,
		Amount:        receipt.Total,
		CreatedAt:     a.now(),
	}
	if err := a.pending.Save(ctx, sessionID, pending); err != nil {
		log.Error("pending payment not stored", zap.String("sale_id", receipt.SaleID), zap.Error(err))
		return domain.CardCheckout{}, domain.CheckoutCreationError("the card payment could not be started", err)
	}

	log.Info("card checkout created", zap.String("sale_id", receipt.SaleID), zap.String("transaction_id", resp.TransactionID))
	return domain.CardCheckout{
		SaleID:        receipt.SaleID,
		TransactionID: resp.TransactionID,
		RedirectURL:   resp.CheckoutURL,
		Amount:        receipt.Total,
	}, nil
}
