package payment

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/backend"
	"github.com/fjod/storefront/internal/domain"
)

type mockGateway struct {
	mu          sync.Mutex
	receipt     backend.SaleReceipt
	saleErr     error
	checkout    backend.CardCheckoutResponse
	checkoutErr error
	saleCalls   int
	cardCalls   int
	lastCardReq backend.CardCheckoutRequest
}

func (m *mockGateway) CreateSale(ctx context.Context, order domain.SaleOrder) (backend.SaleReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saleCalls++
	return m.receipt, m.saleErr
}

func (m *mockGateway) CreateCardCheckout(ctx context.Context, req backend.CardCheckoutRequest) (backend.CardCheckoutResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cardCalls++
	m.lastCardReq = req
	return m.checkout, m.checkoutErr
}

type mockPending struct {
	mu        sync.Mutex
	items     map[string]domain.PendingPaymentSession
	discarded int
	saveErr   error
}

func newMockPending() *mockPending {
	return &mockPending{items: make(map[string]domain.PendingPaymentSession)}
}

func (m *mockPending) Save(ctx context.Context, sessionID string, p domain.PendingPaymentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.items[sessionID] = p
	return nil
}

func (m *mockPending) Load(ctx context.Context, sessionID string) (domain.PendingPaymentSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[sessionID]
	return p, ok, nil
}

func (m *mockPending) Discard(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, sessionID)
	m.discarded++
	return nil
}

// mockStatus replays responses in order and repeats the last one.
type mockStatus struct {
	mu        sync.Mutex
	responses []statusResponse
	calls     int
}

type statusResponse struct {
	status domain.PaymentStatus
	err    error
}

func (m *mockStatus) PaymentStatus(ctx context.Context, transactionID string) (domain.PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.calls++
	r := m.responses[i]
	return r.status, r.err
}

type mockCarts struct {
	mu      sync.Mutex
	cleared []string
}

func (m *mockCarts) Clear(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, ownerID)
	return nil
}

// fakeSleeper records requested sleeps without waiting.
type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slept = append(f.slept, d)
	return ctx.Err()
}
