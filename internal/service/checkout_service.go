package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/shipping"
	"github.com/fjod/storefront/pkg/logger"
)

// CheckoutService drives the checkout wizard of each storefront session.
// All transitions of one session run under that session's lock.
type CheckoutService struct {
	checkouts  CheckoutStore
	carts      Carts
	settings   SettingsProvider
	sales      SaleRegistrar
	gateway    CardPaymentInitiator
	reconciler PaymentReconciler
	attempts   repository.AttemptRepository
	locks      *keyedMutex

	// submitting holds the sessions with a Submit call in progress.
	submitting    sync.Map
	submitTimeout time.Duration
	now           func() time.Time
}

const defaultSubmitTimeout = 20 * time.Second

type CheckoutOption func(*CheckoutService)

// WithSubmitTimeout bounds the backend work of a submission after it has
// started. A checkout left in SUBMITTING for twice as long is settled on the
// next request of its session.
func WithSubmitTimeout(d time.Duration) CheckoutOption {
	return func(s *CheckoutService) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}

func NewCheckoutService(
	checkouts CheckoutStore,
	carts Carts,
	settings SettingsProvider,
	sales SaleRegistrar,
	gateway CardPaymentInitiator,
	reconciler PaymentReconciler,
	attempts repository.AttemptRepository,
	opts ...CheckoutOption,
) *CheckoutService {
	s := &CheckoutService{
		checkouts:     checkouts,
		carts:         carts,
		settings:      settings,
		sales:         sales,
		gateway:       gateway,
		reconciler:    reconciler,
		attempts:      attempts,
		locks:         newKeyedMutex(),
		submitTimeout: defaultSubmitTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckoutView is the wizard state plus the figures a storefront shows.
type CheckoutView struct {
	Checkout       *domain.Checkout
	Cart           *domain.Cart
	Subtotal       decimal.Decimal
	Shipping       decimal.Decimal
	Total          decimal.Decimal
	PaymentMethods []domain.PaymentMethod
}

type SubmitResult struct {
	Checkout    *domain.Checkout
	SaleID      string
	RedirectURL string
	// Replayed is set when the idempotency key matched an earlier attempt.
	Replayed bool
	Status   domain.AttemptStatus
}

type Options struct {
	PaymentMethods []domain.PaymentMethod
	BankTransfer   domain.BankTransferDetails
}

func (s *CheckoutService) Get(ctx context.Context, sessionID string) (*CheckoutView, error) {
	co, err := s.checkouts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, co)
}

func (s *CheckoutService) Options(ctx context.Context) (Options, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return Options{}, err
	}
	return Options{PaymentMethods: settings.EnabledMethods(), BankTransfer: settings.BankTransfer}, nil
}

// Quote resolves shipping for a locality without touching any checkout.
func (s *CheckoutService) Quote(ctx context.Context, locality string) (domain.ShippingQuote, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return domain.ShippingQuote{}, err
	}
	return shipping.Resolve(locality, settings.ShippingZones, settings.DefaultShippingPrice)
}

func (s *CheckoutService) SetDetails(ctx context.Context, sessionID string, d domain.CustomerDetails) (*CheckoutView, error) {
	return s.update(ctx, sessionID, func(co *domain.Checkout, settings domain.StoreSettings) error {
		_, live := shipping.For(settings)
		return co.SetDetails(d, live)
	})
}

func (s *CheckoutService) ChooseFulfillment(ctx context.Context, sessionID string, f domain.FulfillmentMethod) (*CheckoutView, error) {
	return s.update(ctx, sessionID, func(co *domain.Checkout, settings domain.StoreSettings) error {
		_, live := shipping.For(settings)
		return co.ChooseFulfillment(f, live)
	})
}

func (s *CheckoutService) UpdateAddress(ctx context.Context, sessionID, address string) (*CheckoutView, error) {
	return s.update(ctx, sessionID, func(co *domain.Checkout, settings domain.StoreSettings) error {
		_, live := shipping.For(settings)
		return co.UpdateAddress(address, live)
	})
}

func (s *CheckoutService) CalculateShipping(ctx context.Context, sessionID string) (*CheckoutView, error) {
	return s.update(ctx, sessionID, func(co *domain.Checkout, settings domain.StoreSettings) error {
		explicit, _ := shipping.For(settings)
		return co.CalculateShipping(explicit)
	})
}

func (s *CheckoutService) ChoosePayment(ctx context.Context, sessionID string, m domain.PaymentMethod) (*CheckoutView, error) {
	return s.update(ctx, sessionID, func(co *domain.Checkout, settings domain.StoreSettings) error {
		return co.ChoosePayment(m, settings)
	})
}

func (s *CheckoutService) Retry(ctx context.Context, sessionID string) (*CheckoutView, error) {
	return s.update(ctx, sessionID, func(co *domain.Checkout, _ domain.StoreSettings) error {
		return co.Retry()
	})
}

// Reset discards the wizard. An in-flight submission cannot be discarded.
func (s *CheckoutService) Reset(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	co, err := s.checkouts.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.settleStalled(ctx, sessionID, co); err != nil {
		return err
	}
	if co.Step.InFlight() {
		return domain.ErrCheckoutBusy
	}
	return s.checkouts.Reset(ctx, sessionID)
}

// Submit runs the validation gate and places the order. Card payments stop
// at the gateway redirect; cash and transfer orders are registered directly.
// An empty key gets a generated one.
func (s *CheckoutService) Submit(ctx context.Context, sessionID, key string) (*SubmitResult, error) {
	if _, busy := s.submitting.LoadOrStore(sessionID, struct{}{}); busy {
		return nil, domain.ErrCheckoutBusy
	}
	defer s.submitting.Delete(sessionID)

	unlock := s.locks.Lock(sessionID)
	defer unlock()
	log := logger.FromContext(ctx).With(zap.String("session_id", sessionID))

	co, err := s.checkouts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.settleStalled(ctx, sessionID, co); err != nil {
		return nil, err
	}
	if co.Step.InFlight() {
		return nil, domain.ErrCheckoutBusy
	}

	if key == "" {
		key = uuid.NewString()
	} else if prev, err := s.attempts.GetAttemptByIdempotencyKey(ctx, key); err == nil {
		log.Info("replaying checkout attempt", zap.String("attempt_id", prev.ID))
		return &SubmitResult{Checkout: co, SaleID: prev.SaleID, Replayed: true, Status: prev.Status}, nil
	} else if !errors.Is(err, repository.ErrAttemptNotFound) {
		return nil, err
	}

	cart, err := s.carts.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := co.BeginSubmission(cart, settings, key); err != nil {
		return nil, err
	}

	order := co.BuildSaleOrder(cart)
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal sale order: %w", err)
	}

	// From here on the submission runs to a stored outcome even when the
	// shopper goes away.
	ctx, cancel := s.detached(ctx)
	defer cancel()

	attempt := &domain.CheckoutAttempt{
		SessionID:         sessionID,
		IdempotencyKey:    key,
		PaymentMethod:     order.PaymentMethod,
		FulfillmentMethod: order.FulfillmentMethod,
		Status:            domain.AttemptSubmitted,
		Amount:            order.Total(),
		SaleOrder:         orderJSON,
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			return nil, domain.ErrCheckoutBusy
		}
		return nil, err
	}
	if err := s.checkouts.Save(ctx, sessionID, co); err != nil {
		return nil, err
	}
	log = log.With(zap.String("attempt_id", attempt.ID), zap.String("payment_method", string(order.PaymentMethod)))

	if order.PaymentMethod == domain.PaymentCard {
		return s.submitCard(ctx, log, sessionID, co, attempt, order)
	}
	return s.submitDirect(ctx, log, sessionID, co, attempt, order)
}

func (s *CheckoutService) submitCard(ctx context.Context, log *zap.Logger, sessionID string, co *domain.Checkout, attempt *domain.CheckoutAttempt, order domain.SaleOrder) (*SubmitResult, error) {
	card, err := s.gateway.InitiateCardPayment(ctx, sessionID, order)
	if err != nil {
		log.Warn("card payment could not start", zap.Error(err))
		s.recordStatus(ctx, log, attempt.ID, domain.AttemptFailed, "", "")
		if tErr := co.ReturnToPayment(domain.UserMessage(err)); tErr != nil {
			return nil, tErr
		}
		if sErr := s.checkouts.Save(ctx, sessionID, co); sErr != nil {
			return nil, sErr
		}
		return nil, err
	}

	co.AwaitGateway(card)
	s.recordStatus(ctx, log, attempt.ID, domain.AttemptAwaitingPayment, card.SaleID, card.TransactionID)
	if err := s.checkouts.Save(ctx, sessionID, co); err != nil {
		return nil, err
	}
	log.Info("redirecting to payment gateway", zap.String("sale_id", card.SaleID))
	return &SubmitResult{Checkout: co, SaleID: card.SaleID, RedirectURL: card.RedirectURL, Status: domain.AttemptAwaitingPayment}, nil
}

func (s *CheckoutService) submitDirect(ctx context.Context, log *zap.Logger, sessionID string, co *domain.Checkout, attempt *domain.CheckoutAttempt, order domain.SaleOrder) (*SubmitResult, error) {
	receipt, err := s.sales.CreateSale(ctx, order)
	if err != nil {
		log.Error("sale creation failed", zap.Error(err))
		derr := domain.SaleCreationError("we could not register your order, please try again", err)
		s.recordStatus(ctx, log, attempt.ID, domain.AttemptFailed, "", "")
		if tErr := co.MarkFailed(domain.UserMessage(derr)); tErr != nil {
			return nil, tErr
		}
		if sErr := s.checkouts.Save(ctx, sessionID, co); sErr != nil {
			return nil, sErr
		}
		return nil, derr
	}

	if err := co.MarkConfirmed(receipt.SaleID); err != nil {
		return nil, err
	}
	s.complete(ctx, log, attempt.ID, sessionID, receipt.SaleID, order)
	if err := s.carts.Clear(ctx, sessionID); err != nil {
		log.Error("cart clear after confirmation failed", zap.Error(err))
	}
	if err := s.checkouts.Save(ctx, sessionID, co); err != nil {
		return nil, err
	}
	log.Info("order confirmed", zap.String("sale_id", receipt.SaleID))
	return &SubmitResult{Checkout: co, SaleID: receipt.SaleID, Status: domain.AttemptConfirmed}, nil
}

// complete records the confirmation and its outbox event. Failures are
// logged only: the sale already exists in the backend.
func (s *CheckoutService) complete(ctx context.Context, log *zap.Logger, attemptID, sessionID, saleID string, order domain.SaleOrder) {
	event := domain.OrderConfirmed{
		AttemptID:         attemptID,
		SessionID:         sessionID,
		SaleID:            saleID,
		PaymentMethod:     order.PaymentMethod,
		FulfillmentMethod: order.FulfillmentMethod,
		Items:             order.Items,
		ShippingCost:      order.ShippingCost,
		Total:             order.Total(),
		ConfirmedAt:       s.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("marshal order confirmed event", zap.Error(err))
		return
	}
	if err := s.attempts.CompleteAttempt(ctx, attemptID, saleID, payload); err != nil {
		log.Error("complete checkout attempt failed", zap.Error(err))
	}
}

func (s *CheckoutService) recordStatus(ctx context.Context, log *zap.Logger, attemptID string, status domain.AttemptStatus, saleID, txID string) {
	if err := s.attempts.UpdateAttempt(ctx, attemptID, status, saleID, txID); err != nil {
		log.Error("update checkout attempt failed", zap.String("status", string(status)), zap.Error(err))
	}
}

// detached keeps ctx values such as the request logger but not its
// cancellation, bounded by the submit timeout.
func (s *CheckoutService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
}

// settleStalled resolves a checkout stuck in SUBMITTING from its attempt
// record: a completed attempt confirms it, anything else fails it so the
// shopper can retry.
func (s *CheckoutService) settleStalled(ctx context.Context, sessionID string, co *domain.Checkout) error {
	if !co.Stalled(s.now(), 2*s.submitTimeout) {
		return nil
	}
	log := logger.FromContext(ctx).With(zap.String("session_id", sessionID))

	attempt := s.currentAttempt(ctx, log, co)
	if attempt != nil && attempt.Status == domain.AttemptConfirmed && attempt.SaleID != "" {
		if err := co.MarkConfirmed(attempt.SaleID); err != nil {
			return err
		}
		if err := s.carts.Clear(ctx, sessionID); err != nil {
			log.Error("cart clear after confirmation failed", zap.Error(err))
		}
		log.Info("stalled submission settled as confirmed", zap.String("sale_id", attempt.SaleID))
	} else {
		if attempt != nil {
			s.recordStatus(ctx, log, attempt.ID, domain.AttemptFailed, "", "")
		}
		if err := co.MarkFailed("we could not confirm your order, please try again"); err != nil {
			return err
		}
		log.Warn("stalled submission marked failed")
	}
	return s.checkouts.Save(ctx, sessionID, co)
}

func (s *CheckoutService) update(ctx context.Context, sessionID string, fn func(*domain.Checkout, domain.StoreSettings) error) (*CheckoutView, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	co, err := s.checkouts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.settleStalled(ctx, sessionID, co); err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(co, settings); err != nil {
		return nil, err
	}
	if err := s.checkouts.Save(ctx, sessionID, co); err != nil {
		return nil, err
	}
	return s.viewWith(ctx, sessionID, co, settings)
}

func (s *CheckoutService) view(ctx context.Context, sessionID string, co *domain.Checkout) (*CheckoutView, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.viewWith(ctx, sessionID, co, settings)
}

func (s *CheckoutService) viewWith(ctx context.Context, sessionID string, co *domain.Checkout, settings domain.StoreSettings) (*CheckoutView, error) {
	cart, err := s.carts.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	subtotal := cart.Total()
	return &CheckoutView{
		Checkout:       co,
		Cart:           cart,
		Subtotal:       subtotal,
		Shipping:       co.ShippingCost(),
		Total:          subtotal.Add(co.ShippingCost()),
		PaymentMethods: settings.EnabledMethods(),
	}, nil
}
