package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/health"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/circuitbreaker"
)

type testServer struct {
	handler  http.Handler
	carts    *mockCarts
	checkout *mockCheckout
}

func newTestServer() *testServer {
	s := &testServer{
		carts:    &mockCarts{cart: sampleCart("sid")},
		checkout: &mockCheckout{view: sampleView()},
	}
	s.handler = NewRouter(
		RouterConfig{RequestTimeout: 5 * time.Second, SessionTTL: time.Hour},
		zap.NewNop(),
		NewCartHandler(s.carts),
		NewCheckoutHandler(s.checkout, "https://shop.example"),
		staticHealth{report: health.Report{Status: health.StatusOK}},
	)
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	return nil
}

func TestSession_IssuesAndReusesCookie(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	_, err := uuid.Parse(c.Value)
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", "", map[string]string{"Cookie": SessionCookie + "=" + c.Value})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{c.Value, c.Value}, s.carts.owners)
}

func TestSession_ReplacesMalformedCookie(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodGet, "/api/v1/cart", "", map[string]string{"Cookie": SessionCookie + "=../../etc"})
	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.NotEqual(t, "../../etc", c.Value)
}

func TestGetCart(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cart CartDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cart))
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 2, cart.ItemCount)
	assert.True(t, decimal.NewFromInt(3000).Equal(cart.Total))
	assert.True(t, decimal.NewFromInt(3000).Equal(cart.Lines[0].Subtotal))
}

func TestAddItem(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":7,"quantity":3}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(7), s.carts.lastProd)
	assert.Equal(t, 3, s.carts.lastQty)
}

func TestAddItem_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"product_id":`},
		{"missing product", `{"quantity":1}`},
		{"quantity too large", `{"product_id":1,"quantity":500}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			rec := s.do(t, http.MethodPost, "/api/v1/cart/items", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
			assert.Empty(t, s.carts.owners)
		})
	}
}

func TestUpdateQuantity_BadProductID(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/abc", `{"quantity":2}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_product_id", decodeError(t, rec).Code)
}

func TestRemoveItem(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodDelete, "/api/v1/cart/items/1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), s.carts.lastProd)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.InputError("missing locality"), http.StatusBadRequest, "invalid_input"},
		{domain.ValidationError("a valid email is required"), http.StatusUnprocessableEntity, "validation_failed"},
		{domain.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
		{domain.ErrCheckoutBusy, http.StatusConflict, "checkout_busy"},
		{domain.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
		{domain.SaleCreationError("could not register", errors.New("500")), http.StatusBadGateway, "sale_creation_failed"},
		{domain.CheckoutCreationError("could not start", nil), http.StatusBadGateway, "checkout_creation_failed"},
		{domain.ExpiredError("expired"), http.StatusGone, "payment_expired"},
		{domain.UnverifiableError("unverifiable", nil), http.StatusFailedDependency, "payment_unverifiable"},
		{circuitbreaker.ErrOpen, http.StatusServiceUnavailable, "backend_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			s := newTestServer()
			s.checkout.err = tt.err
			rec := s.do(t, http.MethodGet, "/api/v1/checkout", "", nil)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, domain.UserMessage(tt.err), resp.Error)
		})
	}
}

func TestSetDetails(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodPost, "/api/v1/checkout/details",
		`{"name":"Ana","phone":"555","email":"ana@example.com","address":"Yerba Buena"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Yerba Buena", s.checkout.lastDetail.Address)

	var dto CheckoutDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dto))
	assert.Equal(t, domain.StepCollectingDetails, dto.Step)
	require.NotNil(t, dto.Cart)
}

func TestChoosePayment_RejectsUnknownMethod(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodPost, "/api/v1/checkout/payment-method", `{"method":"bitcoin"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/checkout/payment-method", `{"method":"card"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PaymentCard, s.checkout.lastMethod)
}

func TestSubmit_Direct(t *testing.T) {
	s := newTestServer()
	co := domain.NewCheckout()
	co.Step = domain.StepConfirmed
	s.checkout.submit = &service.SubmitResult{Checkout: co, SaleID: "S-1", Status: domain.AttemptConfirmed}

	rec := s.do(t, http.MethodPost, "/api/v1/checkout/submit", "", map[string]string{"Idempotency-Key": "key-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "key-1", s.checkout.lastKey)

	var resp SubmitResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "S-1", resp.SaleID)
	assert.Equal(t, domain.StepConfirmed, resp.Checkout.Step)
}

func TestSubmit_KeyFromBody(t *testing.T) {
	s := newTestServer()
	s.checkout.submit = &service.SubmitResult{Checkout: domain.NewCheckout(), Replayed: true}

	rec := s.do(t, http.MethodPost, "/api/v1/checkout/submit", `{"idempotency_key":"key-2"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "replay answers 200")
	assert.Equal(t, "key-2", s.checkout.lastKey)
}

func TestSubmit_CardRedirect(t *testing.T) {
	s := newTestServer()
	s.checkout.submit = &service.SubmitResult{
		Checkout:    domain.NewCheckout(),
		SaleID:      "S-2",
		RedirectURL: "https://pay.example/c/1",
		Status:      domain.AttemptAwaitingPayment,
	}

	rec := s.do(t, http.MethodPost, "/api/v1/checkout/submit", "", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://pay.example/c/1", rec.Header().Get("Location"))

	rec = s.do(t, http.MethodPost, "/api/v1/checkout/submit", "", map[string]string{"Accept": "application/json"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp SubmitResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "https://pay.example/c/1", resp.RedirectURL)
}

func TestPaymentSuccess_RedirectsToStorefront(t *testing.T) {
	s := newTestServer()
	co := domain.NewCheckout()
	co.Step = domain.StepConfirmed
	s.checkout.payment = &service.PaymentResult{
		Outcome:  domain.ReconcileResult{Outcome: domain.OutcomeConfirmed, SaleID: "S-9"},
		Checkout: co,
	}

	rec := s.do(t, http.MethodGet, "/api/v1/payments/return/success", "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "shop.example", loc.Host)
	assert.Equal(t, "/checkout/result", loc.Path)
	assert.Equal(t, "CONFIRMED", loc.Query().Get("outcome"))
	assert.Equal(t, "S-9", loc.Query().Get("sale_id"))
}

func TestPaymentSuccess_ExpiredAsJSON(t *testing.T) {
	s := newTestServer()
	s.checkout.payment = &service.PaymentResult{
		Outcome:  domain.ReconcileResult{Outcome: domain.OutcomeExpired},
		Checkout: domain.NewCheckout(),
	}
	s.checkout.err = domain.ExpiredError("your payment session expired")

	rec := s.do(t, http.MethodGet, "/api/v1/payments/return/success", "", map[string]string{"Accept": "application/json"})
	assert.Equal(t, http.StatusGone, rec.Code)
	var dto PaymentResultDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dto))
	assert.Equal(t, domain.OutcomeExpired, dto.Outcome)
	assert.Equal(t, "your payment session expired", dto.Message)
}

func TestPaymentCancel(t *testing.T) {
	s := newTestServer()
	co := domain.NewCheckout()
	co.LastError = "payment was cancelled"
	s.checkout.cancelled = co

	rec := s.do(t, http.MethodGet, "/api/v1/payments/return/cancel", "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://shop.example/checkout?message="))
}

func TestResetCheckout(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodDelete, "/api/v1/checkout", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, s.checkout.resets)
}

func TestHealth(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sessionCookie(rec), "health does not open sessions")

	s.handler = NewRouter(RouterConfig{RequestTimeout: time.Second}, zap.NewNop(),
		NewCartHandler(s.carts), NewCheckoutHandler(s.checkout, ""),
		staticHealth{report: health.Report{Status: health.StatusError}})
	rec = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
