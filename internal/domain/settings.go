package domain

import "github.com/shopspring/decimal"

type ShippingZone struct {
	ID         string          `json:"id"`
	Price      decimal.Decimal `json:"price"`
	Label      string          `json:"label"`
	Localities []string        `json:"localities"`
}

type ShippingQuote struct {
	Cost      decimal.Decimal `json:"cost"`
	Zone      *ShippingZone   `json:"zone,omitempty"`
	Message   string          `json:"message,omitempty"`
	IsDefault bool            `json:"is_default"`
}

type PaymentMethods struct {
	Cash         bool `json:"cash"`
	BankTransfer bool `json:"bank_transfer"`
	Cards        bool `json:"cards"`
}

type BankTransferDetails struct {
	Holder string `json:"holder,omitempty"`
	Bank   string `json:"bank,omitempty"`
	CBU    string `json:"cbu,omitempty"`
	Alias  string `json:"alias,omitempty"`
}

// StoreSettings is the read-only store configuration consumed by checkout.
type StoreSettings struct {
	ShippingZones        []ShippingZone      `json:"shipping_zones"`
	DefaultShippingPrice decimal.Decimal     `json:"default_shipping_price"`
	PaymentMethods       PaymentMethods      `json:"payment_methods"`
	BankTransfer         BankTransferDetails `json:"bank_transfer"`
}

func (s StoreSettings) Enabled(m PaymentMethod) bool {
	switch m {
	case PaymentCash:
		return s.PaymentMethods.Cash
	case PaymentTransfer:
		return s.PaymentMethods.BankTransfer
	case PaymentCard:
		return s.PaymentMethods.Cards
	default:
		return false
	}
}

func (s StoreSettings) EnabledMethods() []PaymentMethod {
	var methods []PaymentMethod
	for _, m := range []PaymentMethod{PaymentCash, PaymentTransfer, PaymentCard} {
		if s.Enabled(m) {
			methods = append(methods, m)
		}
	}
	return methods
}
