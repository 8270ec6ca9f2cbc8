package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderConfirmed is the outbox payload published once a checkout is paid
// for or registered.
type OrderConfirmed struct {
	AttemptID         string            `json:"attempt_id"`
	SessionID         string            `json:"session_id"`
	SaleID            string            `json:"sale_id"`
	PaymentMethod     PaymentMethod     `json:"payment_method"`
	FulfillmentMethod FulfillmentMethod `json:"fulfillment_method"`
	Items             []SaleItem        `json:"items"`
	ShippingCost      decimal.Decimal   `json:"shipping_cost"`
	Total             decimal.Decimal   `json:"total"`
	ConfirmedAt       time.Time         `json:"confirmed_at"`
}
