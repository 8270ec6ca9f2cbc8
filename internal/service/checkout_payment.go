package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
)

type PaymentResult struct {
	Outcome  domain.ReconcileResult
	Checkout *domain.Checkout
}

// CompletePayment handles the shopper coming back from the gateway: the
// payment is reconciled and the wizard and attempt follow the outcome.
// Pending and unverifiable outcomes leave the wizard where it is.
func (s *CheckoutService) CompletePayment(ctx context.Context, sessionID string) (*PaymentResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	log := logger.FromContext(ctx).With(zap.String("session_id", sessionID))

	co, err := s.checkouts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// a reload of the success page after confirmation
	if co.Step == domain.StepConfirmed {
		return &PaymentResult{
			Outcome:  domain.ReconcileResult{Outcome: domain.OutcomeConfirmed, SaleID: co.SaleID},
			Checkout: co,
		}, nil
	}

	res, recErr := s.reconciler.Reconcile(ctx, sessionID)
	log.Info("payment reconciled", zap.String("outcome", string(res.Outcome)), zap.String("sale_id", res.SaleID))

	// the outcome is stored even if the request died while polling
	ctx, cancel := s.detached(ctx)
	defer cancel()

	attempt := s.currentAttempt(ctx, log, co)

	switch res.Outcome {
	case domain.OutcomeConfirmed:
		if co.Step == domain.StepRedirectingToGateway {
			if err := co.MarkConfirmed(res.SaleID); err != nil {
				return nil, err
			}
		}
		if attempt != nil {
			var order domain.SaleOrder
			if err := json.Unmarshal(attempt.SaleOrder, &order); err != nil {
				log.Warn("stored sale order unreadable", zap.Error(err))
			}
			s.complete(ctx, log, attempt.ID, sessionID, res.SaleID, order)
		}
	case domain.OutcomeRejected:
		msg := "your payment was rejected"
		if res.Detail != "" {
			msg += ": " + res.Detail
		}
		s.backToPayment(co, log, msg)
		if attempt != nil {
			s.recordStatus(ctx, log, attempt.ID, domain.AttemptRejected, "", "")
		}
	case domain.OutcomeExpired:
		s.backToPayment(co, log, domain.UserMessage(recErr))
		if attempt != nil {
			s.recordStatus(ctx, log, attempt.ID, domain.AttemptExpired, "", "")
		}
	}

	if err := s.checkouts.Save(ctx, sessionID, co); err != nil {
		return nil, err
	}
	return &PaymentResult{Outcome: res, Checkout: co}, recErr
}

// CancelPayment handles the gateway cancel return. The cart is kept.
func (s *CheckoutService) CancelPayment(ctx context.Context, sessionID string) (*domain.Checkout, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	log := logger.FromContext(ctx).With(zap.String("session_id", sessionID))
	ctx, cancel := s.detached(ctx)
	defer cancel()

	if err := s.reconciler.Cancel(ctx, sessionID); err != nil {
		return nil, err
	}

	co, err := s.checkouts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if attempt := s.currentAttempt(ctx, log, co); attempt != nil {
		s.recordStatus(ctx, log, attempt.ID, domain.AttemptRejected, "", "")
	}
	s.backToPayment(co, log, "payment was cancelled, you can choose another method")

	if err := s.checkouts.Save(ctx, sessionID, co); err != nil {
		return nil, err
	}
	log.Info("card payment cancelled")
	return co, nil
}

func (s *CheckoutService) backToPayment(co *domain.Checkout, log *zap.Logger, msg string) {
	if co.Step != domain.StepRedirectingToGateway {
		return
	}
	if err := co.ReturnToPayment(msg); err != nil {
		log.Warn("checkout could not return to payment", zap.Error(err))
	}
}

func (s *CheckoutService) currentAttempt(ctx context.Context, log *zap.Logger, co *domain.Checkout) *domain.CheckoutAttempt {
	if co.IdempotencyKey == "" {
		return nil
	}
	attempt, err := s.attempts.GetAttemptByIdempotencyKey(ctx, co.IdempotencyKey)
	if err != nil {
		if !errors.Is(err, repository.ErrAttemptNotFound) {
			log.Warn("checkout attempt lookup failed", zap.Error(err))
		}
		return nil
	}
	return attempt
}
