package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingPaymentTTL bounds how long a card payment may stay unreconciled.
const PendingPaymentTTL = 30 * time.Minute

// PendingPaymentSession is the correlation state kept between sending the
// shopper to the gateway and the shopper coming back.
type PendingPaymentSession struct {
	TransactionID string          `json:"transaction_id"`
	SaleID        string          `json:"sale_id"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (p PendingPaymentSession) Expired(now time.Time) bool {
	return now.Sub(p.CreatedAt) > PendingPaymentTTL
}

type PaymentOutcome string

const (
	OutcomeConfirmed    PaymentOutcome = "CONFIRMED"
	OutcomePending      PaymentOutcome = "PENDING"
	OutcomeRejected     PaymentOutcome = "REJECTED"
	OutcomeExpired      PaymentOutcome = "EXPIRED"
	OutcomeUnverifiable PaymentOutcome = "UNVERIFIABLE"
)

// GatewayStatus is the raw status reported by the payment status endpoint.
type GatewayStatus string

const (
	GatewayApproved GatewayStatus = "APPROVED"
	GatewayPending  GatewayStatus = "PENDING"
	GatewayDeclined GatewayStatus = "DECLINED"
	GatewayFailed   GatewayStatus = "FAILED"
)

type PaymentStatus struct {
	Status      GatewayStatus `json:"status"`
	Detail      string        `json:"detail,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Outcome maps a gateway status to the reconciliation outcome. Anything
// other than approved or pending is a rejection.
func (s PaymentStatus) Outcome() PaymentOutcome {
	switch s.Status {
	case GatewayApproved:
		return OutcomeConfirmed
	case GatewayPending:
		return OutcomePending
	default:
		return OutcomeRejected
	}
}

type ReconcileResult struct {
	Outcome PaymentOutcome  `json:"outcome"`
	SaleID  string          `json:"sale_id,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Detail  string          `json:"detail,omitempty"`
}

// CardCheckout is what the gateway adapter hands back after creating a
// hosted checkout.
type CardCheckout struct {
	SaleID        string          `json:"sale_id"`
	TransactionID string          `json:"transaction_id"`
	RedirectURL   string          `json:"redirect_url"`
	Amount        decimal.Decimal `json:"amount"`
}
