package http

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/health"
	"github.com/fjod/storefront/internal/service"
)

type mockCarts struct {
	mu       sync.Mutex
	cart     *domain.Cart
	err      error
	owners   []string
	lastQty  int
	lastProd int64
}

func (m *mockCarts) record(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners = append(m.owners, owner)
}

func (m *mockCarts) GetCart(_ context.Context, owner string) (*domain.Cart, error) {
	m.record(owner)
	return m.cart, m.err
}

func (m *mockCarts) AddItem(_ context.Context, owner string, productID int64, qty int) (*domain.Cart, error) {
	m.record(owner)
	m.lastProd, m.lastQty = productID, qty
	return m.cart, m.err
}

func (m *mockCarts) UpdateQuantity(_ context.Context, owner string, productID int64, qty int) (*domain.Cart, error) {
	m.record(owner)
	m.lastProd, m.lastQty = productID, qty
	return m.cart, m.err
}

func (m *mockCarts) RemoveItem(_ context.Context, owner string, productID int64) (*domain.Cart, error) {
	m.record(owner)
	m.lastProd = productID
	return m.cart, m.err
}

func (m *mockCarts) Clear(_ context.Context, owner string) error {
	m.record(owner)
	return m.err
}

type mockCheckout struct {
	view       *service.CheckoutView
	err        error
	submit     *service.SubmitResult
	payment    *service.PaymentResult
	cancelled  *domain.Checkout
	quote      domain.ShippingQuote
	options    service.Options
	lastKey    string
	lastDetail domain.CustomerDetails
	lastMethod domain.PaymentMethod
	resets     int
}

func (m *mockCheckout) Get(context.Context, string) (*service.CheckoutView, error) {
	return m.view, m.err
}
func (m *mockCheckout) Options(context.Context) (service.Options, error) {
	return m.options, m.err
}
func (m *mockCheckout) Quote(context.Context, string) (domain.ShippingQuote, error) {
	return m.quote, m.err
}
func (m *mockCheckout) SetDetails(_ context.Context, _ string, d domain.CustomerDetails) (*service.CheckoutView, error) {
	m.lastDetail = d
	return m.view, m.err
}
func (m *mockCheckout) ChooseFulfillment(context.Context, string, domain.FulfillmentMethod) (*service.CheckoutView, error) {
	return m.view, m.err
}
func (m *mockCheckout) UpdateAddress(context.Context, string, string) (*service.CheckoutView, error) {
	return m.view, m.err
}
func (m *mockCheckout) CalculateShipping(context.Context, string) (*service.CheckoutView, error) {
	return m.view, m.err
}
func (m *mockCheckout) ChoosePayment(_ context.Context, _ string, pm domain.PaymentMethod) (*service.CheckoutView, error) {
	m.lastMethod = pm
	return m.view, m.err
}
func (m *mockCheckout) Submit(_ context.Context, _ string, key string) (*service.SubmitResult, error) {
	m.lastKey = key
	return m.submit, m.err
}
func (m *mockCheckout) Retry(context.Context, string) (*service.CheckoutView, error) {
	return m.view, m.err
}
func (m *mockCheckout) Reset(context.Context, string) error {
	m.resets++
	return m.err
}
func (m *mockCheckout) CompletePayment(context.Context, string) (*service.PaymentResult, error) {
	return m.payment, m.err
}
func (m *mockCheckout) CancelPayment(context.Context, string) (*domain.Checkout, error) {
	return m.cancelled, m.err
}

type staticHealth struct {
	report health.Report
}

func (s staticHealth) Report() health.Report { return s.report }

func sampleCart(owner string) *domain.Cart {
	c := domain.NewCart(owner)
	c.AddItem(domain.Product{ID: 1, Name: "Mate", Price: decimal.NewFromInt(1500), Stock: 4}, 2)
	return c
}

func sampleView() *service.CheckoutView {
	co := domain.NewCheckout()
	cart := sampleCart("sid")
	return &service.CheckoutView{
		Checkout:       co,
		Cart:           cart,
		Subtotal:       cart.Total(),
		Shipping:       decimal.Zero,
		Total:          cart.Total(),
		PaymentMethods: []domain.PaymentMethod{domain.PaymentCash},
	}
}
