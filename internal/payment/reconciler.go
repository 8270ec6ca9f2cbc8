package payment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
)

type StatusSource interface {
	PaymentStatus(ctx context.Context, transactionID string) (domain.PaymentStatus, error)
}

type CartClearer interface {
	Clear(ctx context.Context, ownerID string) error
}

// Reconciler confirms card payments against the backend's authoritative
// status. Only a confirmed payment clears the cart.
type Reconciler struct {
	status       StatusSource
	pending      PendingStore
	carts        CartClearer
	policy       RetryPolicy
	recheckDelay time.Duration
	now          func() time.Time
	sleep        Sleeper
}

type ReconcilerOption func(*Reconciler)

// WithClock replaces the wall clock and the sleeper, mainly for tests.
func WithClock(now func() time.Time, sleep Sleeper) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
		r.sleep = sleep
	}
}

func NewReconciler(status StatusSource, pending PendingStore, carts CartClearer, policy RetryPolicy, recheckDelay time.Duration, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		status:       status,
		pending:      pending,
		carts:        carts,
		policy:       policy,
		recheckDelay: recheckDelay,
		now:          time.Now,
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile resolves the pending payment of a session. Expired and
// unverifiable outcomes come with a matching domain error.
func (r *Reconciler) Reconcile(ctx context.Context, sessionID string) (domain.ReconcileResult, error) {
	log := logger.FromContext(ctx).With(zap.String("session_id", sessionID))

	pending, ok, err := r.pending.Load(ctx, sessionID)
	if err != nil {
		return unverifiable(), domain.UnverifiableError("we could not read your payment session", err)
	}
	if !ok {
		return unverifiable(), domain.UnverifiableError("there is no card payment in progress", nil)
	}

	res := domain.ReconcileResult{SaleID: pending.SaleID, Amount: pending.Amount}
	if pending.Expired(r.now()) {
		if err := r.pending.Discard(ctx, sessionID); err != nil {
			log.Warn("discard expired payment failed", zap.Error(err))
		}
		res.Outcome = domain.OutcomeExpired
		return res, domain.ExpiredError("your payment session expired, please place the order again")
	}

	st, err := r.poll(ctx, pending.TransactionID)
	if err != nil {
		res.Outcome = domain.OutcomeUnverifiable
		return res, domain.UnverifiableError("we could not verify your payment yet, please try again in a moment", err)
	}

	if st.Outcome() == domain.OutcomePending {
		if err := r.sleep(ctx, r.recheckDelay); err != nil {
			res.Outcome = domain.OutcomePending
			return res, nil
		}
		st, err = r.poll(ctx, pending.TransactionID)
		if err != nil {
			res.Outcome = domain.OutcomeUnverifiable
			return res, domain.UnverifiableError("we could not verify your payment yet, please try again in a moment", err)
		}
	}

	res.Outcome = st.Outcome()
	switch res.Outcome {
	case domain.OutcomeConfirmed:
		if err := r.carts.Clear(ctx, sessionID); err != nil {
			log.Error("cart clear after payment failed", zap.Error(err))
		}
		if err := r.pending.Discard(ctx, sessionID); err != nil {
			log.Warn("discard confirmed payment failed", zap.Error(err))
		}
	case domain.OutcomeRejected:
		res.Detail = st.Detail
	}
	return res, nil
}

// Cancel drops the pending payment after the shopper left the gateway.
func (r *Reconciler) Cancel(ctx context.Context, sessionID string) error {
	return r.pending.Discard(ctx, sessionID)
}

func (r *Reconciler) poll(ctx context.Context, transactionID string) (domain.PaymentStatus, error) {
	var st domain.PaymentStatus
	err := r.policy.Do(ctx, r.sleep, retryableStatusError, func() error {
		var err error
		st, err = r.status.PaymentStatus(ctx, transactionID)
		return err
	})
	return st, err
}

func unverifiable() domain.ReconcileResult {
	return domain.ReconcileResult{Outcome: domain.OutcomeUnverifiable}
}
