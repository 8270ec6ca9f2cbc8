package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type AttemptStatus string

const (
	AttemptSubmitted       AttemptStatus = "SUBMITTED"
	AttemptAwaitingPayment AttemptStatus = "AWAITING_PAYMENT"
	AttemptConfirmed       AttemptStatus = "CONFIRMED"
	AttemptRejected        AttemptStatus = "REJECTED"
	AttemptExpired         AttemptStatus = "EXPIRED"
	AttemptFailed          AttemptStatus = "FAILED"
)

func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptConfirmed, AttemptRejected, AttemptExpired, AttemptFailed:
		return true
	}
	return false
}

// CheckoutAttempt is the audit record of one submission.
type CheckoutAttempt struct {
	ID                string
	SessionID         string
	IdempotencyKey    string
	PaymentMethod     PaymentMethod
	FulfillmentMethod FulfillmentMethod
	Status            AttemptStatus
	SaleID            string
	TransactionID     string
	Amount            decimal.Decimal
	SaleOrder         json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
