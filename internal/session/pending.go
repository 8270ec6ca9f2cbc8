package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/domain"
)

// Keys of the pending card payment. They are written and removed together.
const (
	KeyTransactionID = "payway_tx_id"
	KeyTimestamp     = "payway_tx_timestamp"
	KeySaleID        = "payway_sale_id"
	KeyAmount        = "payway_amount"
)

var pendingKeys = []string{KeyTransactionID, KeyTimestamp, KeySaleID, KeyAmount}

// PendingPayments stores PendingPaymentSession values in a Store.
type PendingPayments struct {
	store Store
}

func NewPendingPayments(store Store) *PendingPayments {
	return &PendingPayments{store: store}
}

func (p *PendingPayments) Save(ctx context.Context, sessionID string, pending domain.PendingPaymentSession) error {
	return p.store.Set(ctx, sessionID, map[string]string{
		KeyTransactionID: pending.TransactionID,
		KeyTimestamp:     strconv.FormatInt(pending.CreatedAt.UnixMilli(), 10),
		KeySaleID:        pending.SaleID,
		KeyAmount:        pending.Amount.String(),
	})
}

// Load returns the pending payment. ok is false when no transaction id is
// stored. A missing or malformed timestamp yields a zero CreatedAt, which
// reads as expired.
func (p *PendingPayments) Load(ctx context.Context, sessionID string) (domain.PendingPaymentSession, bool, error) {
	txID, ok, err := p.store.Get(ctx, sessionID, KeyTransactionID)
	if err != nil || !ok || txID == "" {
		return domain.PendingPaymentSession{}, false, err
	}

	pending := domain.PendingPaymentSession{TransactionID: txID}

	if ts, ok, err := p.store.Get(ctx, sessionID, KeyTimestamp); err != nil {
		return pending, false, err
	} else if ok {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			pending.CreatedAt = time.UnixMilli(ms)
		}
	}

	if pending.SaleID, _, err = p.store.Get(ctx, sessionID, KeySaleID); err != nil {
		return pending, false, err
	}

	amount, ok, err := p.store.Get(ctx, sessionID, KeyAmount)
	if err != nil {
		return pending, false, err
	}
	if ok {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return pending, false, fmt.Errorf("parse %s: %w", KeyAmount, err)
		}
		pending.Amount = d
	}
	return pending, true, nil
}

func (p *PendingPayments) Discard(ctx context.Context, sessionID string) error {
	return p.store.Remove(ctx, sessionID, pendingKeys...)
}
