package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type FulfillmentMethod string

const (
	FulfillmentPickup   FulfillmentMethod = "pickup"
	FulfillmentDelivery FulfillmentMethod = "delivery"
)

func (f FulfillmentMethod) Valid() bool {
	return f == FulfillmentPickup || f == FulfillmentDelivery
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCard     PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentTransfer || m == PaymentCard
}

type SaleItem struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// SaleOrder is what gets registered with the backend for one checkout.
type SaleOrder struct {
	CustomerSummary   string            `json:"customerSummary"`
	Customer          CustomerDetails   `json:"customer"`
	Items             []SaleItem        `json:"items"`
	ShippingCost      decimal.Decimal   `json:"shippingCost"`
	PaymentMethod     PaymentMethod     `json:"paymentMethod"`
	PaymentReference  string            `json:"paymentReference,omitempty"`
	FulfillmentMethod FulfillmentMethod `json:"fulfillmentMethod"`
}

func (o SaleOrder) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (o SaleOrder) Total() decimal.Decimal {
	return o.Subtotal().Add(o.ShippingCost)
}

// CustomerSummary renders the one-line description the back office shows.
func CustomerSummary(d CustomerDetails, f FulfillmentMethod) string {
	parts := []string{d.Name, d.Phone}
	if d.Email != "" {
		parts = append(parts, d.Email)
	}
	if f == FulfillmentDelivery {
		parts = append(parts, "delivery: "+d.Address)
	} else {
		parts = append(parts, "pickup")
	}
	if d.Notes != "" {
		parts = append(parts, "notes: "+d.Notes)
	}
	return strings.Join(parts, " | ")
}
