package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/storefront/internal/backend"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

type mockCartCache struct {
	m       sync.Mutex
	carts   map[string]*domain.Cart
	deletes int
}

func newMockCartCache() *mockCartCache {
	return &mockCartCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCartCache) Get(_ context.Context, ownerID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.carts[ownerID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c, nil
}

func (m *mockCartCache) Set(_ context.Context, ownerID string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.carts[ownerID] = cart
	return nil
}

func (m *mockCartCache) Delete(_ context.Context, ownerID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, ownerID)
	m.deletes++
	return nil
}

type mockSettingsCache struct {
	m        sync.Mutex
	settings *domain.StoreSettings
}

func (m *mockSettingsCache) Get(context.Context) (*domain.StoreSettings, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.settings == nil {
		return nil, cache.ErrCacheMiss
	}
	return m.settings, nil
}

func (m *mockSettingsCache) Set(_ context.Context, s *domain.StoreSettings) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.settings = s
	return nil
}

func (m *mockSettingsCache) Delete(context.Context) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.settings = nil
	return nil
}

type mockCatalog struct {
	products map[int64]domain.Product
}

func (m *mockCatalog) Product(_ context.Context, id int64) (domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, backend.ErrNotFound
	}
	return p, nil
}

type mockSettingsSource struct {
	m        sync.Mutex
	settings domain.StoreSettings
	err      error
	calls    int
	delay    time.Duration
}

func (m *mockSettingsSource) Settings(context.Context) (domain.StoreSettings, error) {
	time.Sleep(m.delay)
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	return m.settings, m.err
}

// staticSettings skips the cache entirely.
type staticSettings struct {
	settings domain.StoreSettings
}

func (s staticSettings) Get(context.Context) (domain.StoreSettings, error) {
	return s.settings, nil
}

type mockSales struct {
	m      sync.Mutex
	saleID string
	err    error
	orders []domain.SaleOrder
	// during runs before the sale is answered.
	during  func(ctx context.Context)
	ctxErrs []error
}

func (m *mockSales) CreateSale(ctx context.Context, order domain.SaleOrder) (backend.SaleReceipt, error) {
	if m.during != nil {
		m.during(ctx)
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.orders = append(m.orders, order)
	if m.err != nil {
		return backend.SaleReceipt{}, m.err
	}
	return backend.SaleReceipt{SaleID: m.saleID, Total: order.Total()}, nil
}

type mockCardInitiator struct {
	card  domain.CardCheckout
	err   error
	calls int
}

func (m *mockCardInitiator) InitiateCardPayment(_ context.Context, _ string, order domain.SaleOrder) (domain.CardCheckout, error) {
	m.calls++
	if m.err != nil {
		return domain.CardCheckout{}, m.err
	}
	card := m.card
	card.Amount = order.Total()
	return card, nil
}

type mockReconciler struct {
	result    domain.ReconcileResult
	err       error
	calls     int
	cancelled int
	during    func()
}

func (m *mockReconciler) Reconcile(context.Context, string) (domain.ReconcileResult, error) {
	m.calls++
	if m.during != nil {
		m.during()
	}
	return m.result, m.err
}

func (m *mockReconciler) Cancel(context.Context, string) error {
	m.cancelled++
	return nil
}

type mockAttempts struct {
	m         sync.Mutex
	byKey     map[string]*domain.CheckoutAttempt
	completed map[string][]byte
}

func newMockAttempts() *mockAttempts {
	return &mockAttempts{byKey: make(map[string]*domain.CheckoutAttempt), completed: make(map[string][]byte)}
}

func (m *mockAttempts) CreateAttempt(_ context.Context, a *domain.CheckoutAttempt) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.byKey[a.IdempotencyKey]; ok {
		return repository.ErrDuplicateAttempt
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	m.byKey[a.IdempotencyKey] = &cp
	return nil
}

func (m *mockAttempts) GetAttemptByIdempotencyKey(_ context.Context, key string) (*domain.CheckoutAttempt, error) {
	m.m.Lock()
	defer m.m.Unlock()
	a, ok := m.byKey[key]
	if !ok {
		return nil, repository.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAttempts) UpdateAttempt(_ context.Context, id string, status domain.AttemptStatus, saleID, txID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	a := m.find(id)
	if a == nil {
		return repository.ErrAttemptNotFound
	}
	a.Status = status
	if saleID != "" {
		a.SaleID = saleID
	}
	if txID != "" {
		a.TransactionID = txID
	}
	return nil
}

func (m *mockAttempts) CompleteAttempt(_ context.Context, id, saleID string, payload []byte) error {
	m.m.Lock()
	defer m.m.Unlock()
	a := m.find(id)
	if a == nil {
		return repository.ErrAttemptNotFound
	}
	a.Status = domain.AttemptConfirmed
	a.SaleID = saleID
	m.completed[id] = payload
	return nil
}

func (m *mockAttempts) status(key string) domain.AttemptStatus {
	m.m.Lock()
	defer m.m.Unlock()
	return m.byKey[key].Status
}

func (m *mockAttempts) find(id string) *domain.CheckoutAttempt {
	for _, a := range m.byKey {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// failingCheckouts fails every save of a checkout in failStep.
type failingCheckouts struct {
	CheckoutStore
	m        sync.Mutex
	failStep domain.CheckoutStep
}

func (f *failingCheckouts) Save(ctx context.Context, sessionID string, co *domain.Checkout) error {
	f.m.Lock()
	step := f.failStep
	f.m.Unlock()
	if step != "" && co.Step == step {
		return errors.New("redis: connection reset by peer")
	}
	return f.CheckoutStore.Save(ctx, sessionID, co)
}

func (f *failingCheckouts) failOn(step domain.CheckoutStep) {
	f.m.Lock()
	defer f.m.Unlock()
	f.failStep = step
}
