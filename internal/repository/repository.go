package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrAttemptNotFound  = errors.New("checkout attempt not found")
	ErrDuplicateAttempt = errors.New("checkout attempt with this idempotency key already exists")
	ErrEventNotFound    = errors.New("outbox event not found")
)

// CartRepository persists whole carts. Line-level changes happen on the
// domain value before SaveCart.
type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	SaveCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, ownerID string) error
}

// AttemptRepository records checkout attempts and the outbox events they
// produce.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt *domain.CheckoutAttempt) error
	GetAttemptByIdempotencyKey(ctx context.Context, key string) (*domain.CheckoutAttempt, error)
	UpdateAttempt(ctx context.Context, id string, status domain.AttemptStatus, saleID, transactionID string) error
	CompleteAttempt(ctx context.Context, id, saleID string, payload []byte) error
}

// OutboxRepository is what the outbox poller needs.
type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	ExpireStaleAttempts(ctx context.Context, cutoff time.Time) (int64, error)
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

const EventCheckoutConfirmed = "checkout.confirmed"
