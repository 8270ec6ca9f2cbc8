package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/domain"
)

// The backend is loose about JSON types: ids and amounts arrive as numbers
// or strings, and key casing differs between endpoints.

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

type flexDecimal struct {
	decimal.Decimal
}

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		f.Decimal = decimal.Zero
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(string(s)))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f.Decimal = d
	return nil
}

// stringList accepts a JSON array or a comma separated string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*l = nil
	for _, part := range strings.Split(string(s), ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

var (
	saleIDKeys = []string{"saleId", "SaleId", "saleID", "id", "Id", "ID"}
	totalKeys  = []string{"totalAmount", "TotalAmount", "total_amount", "total", "Total"}
)

// SaleReceipt is what the backend returns after registering a sale. Either
// field may be empty when the response did not carry it.
type SaleReceipt struct {
	SaleID string
	Total  decimal.Decimal
}

func parseSaleReceipt(body []byte) (SaleReceipt, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return SaleReceipt{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	// some deployments wrap the sale in a data envelope
	if inner, ok := raw["data"]; ok && len(raw) == 1 {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err == nil {
			raw = nested
		}
	}

	var r SaleReceipt
	for _, k := range saleIDKeys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var id flexString
		if err := json.Unmarshal(v, &id); err == nil && id != "" {
			r.SaleID = string(id)
			break
		}
	}
	for _, k := range totalKeys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var total flexDecimal
		if err := json.Unmarshal(v, &total); err == nil {
			r.Total = total.Decimal
			break
		}
	}
	return r, nil
}

type saleItemWire struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type customerWire struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type saleWire struct {
	CustomerSummary   string         `json:"customerSummary"`
	Customer          customerWire   `json:"customer"`
	Items             []saleItemWire `json:"items"`
	ShippingCost      float64        `json:"shippingCost"`
	Total             float64        `json:"total"`
	PaymentMethod     string         `json:"paymentMethod"`
	PaymentReference  string         `json:"paymentReference,omitempty"`
	FulfillmentMethod string         `json:"fulfillmentMethod"`
	Notes             string         `json:"notes,omitempty"`
}

func toSaleWire(o domain.SaleOrder) saleWire {
	items := make([]saleItemWire, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, saleItemWire{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
		})
	}
	return saleWire{
		CustomerSummary: o.CustomerSummary,
		Customer: customerWire{
			Name:    o.Customer.Name,
			Phone:   o.Customer.Phone,
			Email:   o.Customer.Email,
			Address: o.Customer.Address,
		},
		Items:             items,
		ShippingCost:      o.ShippingCost.InexactFloat64(),
		Total:             o.Total().InexactFloat64(),
		PaymentMethod:     string(o.PaymentMethod),
		PaymentReference:  o.PaymentReference,
		FulfillmentMethod: string(o.FulfillmentMethod),
		Notes:             o.Customer.Notes,
	}
}

// CardCheckoutRequest asks the backend to open a hosted card checkout.
type CardCheckoutRequest struct {
	SaleID   string
	Amount   decimal.Decimal
	Customer domain.CustomerDetails
}

type cardCheckoutWire struct {
	SaleID   string       `json:"saleId"`
	Amount   float64      `json:"amount"`
	Customer customerWire `json:"customer"`
}

type CardCheckoutResponse struct {
	CheckoutURL   string
	TransactionID string
}

type cardCheckoutResponseWire struct {
	CheckoutURL   string     `json:"checkoutUrl"`
	TransactionID flexString `json:"transactionId"`
}

type paymentStatusWire struct {
	Status       string `json:"status"`
	StatusDetail string `json:"statusDetail"`
	CompletedAt  string `json:"completedAt"`
}

func (w paymentStatusWire) toDomain() domain.PaymentStatus {
	ps := domain.PaymentStatus{
		Status: domain.GatewayStatus(strings.ToUpper(strings.TrimSpace(w.Status))),
		Detail: w.StatusDetail,
	}
	if t, err := time.Parse(time.RFC3339, w.CompletedAt); err == nil {
		ps.CompletedAt = &t
	}
	return ps
}

type zoneWire struct {
	ID         flexString  `json:"id"`
	Name       string      `json:"name"`
	Label      string      `json:"label"`
	Price      flexDecimal `json:"price"`
	Localities stringList  `json:"localities"`
}

type settingsWire struct {
	ShippingZones        []zoneWire  `json:"shippingZones"`
	DefaultShippingPrice flexDecimal `json:"defaultShippingPrice"`
	PaymentMethods       struct {
		Cash         bool `json:"cash"`
		BankTransfer bool `json:"bankTransfer"`
		Cards        bool `json:"cards"`
	} `json:"paymentMethods"`
	BankTransfer struct {
		Holder string `json:"holder"`
		Bank   string `json:"bank"`
		CBU    string `json:"cbu"`
		Alias  string `json:"alias"`
	} `json:"bankTransfer"`
}

func (w settingsWire) toDomain() domain.StoreSettings {
	s := domain.StoreSettings{
		DefaultShippingPrice: w.DefaultShippingPrice.Decimal,
		PaymentMethods: domain.PaymentMethods{
			Cash:         w.PaymentMethods.Cash,
			BankTransfer: w.PaymentMethods.BankTransfer,
			Cards:        w.PaymentMethods.Cards,
		},
		BankTransfer: domain.BankTransferDetails{
			Holder: w.BankTransfer.Holder,
			Bank:   w.BankTransfer.Bank,
			CBU:    w.BankTransfer.CBU,
			Alias:  w.BankTransfer.Alias,
		},
	}
	for _, z := range w.ShippingZones {
		label := z.Label
		if label == "" {
			label = z.Name
		}
		s.ShippingZones = append(s.ShippingZones, domain.ShippingZone{
			ID:         string(z.ID),
			Label:      label,
			Price:      z.Price.Decimal,
			Localities: z.Localities,
		})
	}
	return s
}

type productWire struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Price    flexDecimal `json:"price"`
	Stock    int         `json:"stock"`
	ImageURL string      `json:"imageUrl"`
}
