package http

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/logger"
)

// CheckoutAPI is implemented by service.CheckoutService.
type CheckoutAPI interface {
	Get(ctx context.Context, sessionID string) (*service.CheckoutView, error)
	Options(ctx context.Context) (service.Options, error)
	Quote(ctx context.Context, locality string) (domain.ShippingQuote, error)
	SetDetails(ctx context.Context, sessionID string, d domain.CustomerDetails) (*service.CheckoutView, error)
	ChooseFulfillment(ctx context.Context, sessionID string, f domain.FulfillmentMethod) (*service.CheckoutView, error)
	UpdateAddress(ctx context.Context, sessionID, address string) (*service.CheckoutView, error)
	CalculateShipping(ctx context.Context, sessionID string) (*service.CheckoutView, error)
	ChoosePayment(ctx context.Context, sessionID string, m domain.PaymentMethod) (*service.CheckoutView, error)
	Submit(ctx context.Context, sessionID, key string) (*service.SubmitResult, error)
	Retry(ctx context.Context, sessionID string) (*service.CheckoutView, error)
	Reset(ctx context.Context, sessionID string) error
	CompletePayment(ctx context.Context, sessionID string) (*service.PaymentResult, error)
	CancelPayment(ctx context.Context, sessionID string) (*domain.Checkout, error)
}

type CheckoutHandler struct {
	checkout CheckoutAPI
	// storefrontURL receives the shopper after a gateway return.
	storefrontURL string
}

func NewCheckoutHandler(checkout CheckoutAPI, storefrontURL string) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, storefrontURL: storefrontURL}
}

type QuoteRequestDTO struct {
	Locality string `json:"locality"`
}

type DetailsRequestDTO struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,max=40"`
	Email   string `json:"email" validate:"omitempty,max=254"`
	Address string `json:"address" validate:"max=300"`
	Notes   string `json:"notes" validate:"max=1000"`
}

type FulfillmentRequestDTO struct {
	Method string `json:"method" validate:"required,oneof=pickup delivery"`
}

type AddressRequestDTO struct {
	Address string `json:"address" validate:"max=300"`
}

type PaymentMethodRequestDTO struct {
	Method string `json:"method" validate:"required,oneof=cash transfer card"`
}

type SubmitRequestDTO struct {
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=100"`
}

type CheckoutDTO struct {
	Step           domain.CheckoutStep      `json:"step"`
	Customer       domain.CustomerDetails   `json:"customer"`
	Fulfillment    domain.FulfillmentMethod `json:"fulfillment,omitempty"`
	Shipping       *domain.ShippingQuote    `json:"shipping,omitempty"`
	PaymentMethod  domain.PaymentMethod     `json:"payment_method,omitempty"`
	SaleID         string                   `json:"sale_id,omitempty"`
	RedirectURL    string                   `json:"redirect_url,omitempty"`
	LastError      string                   `json:"last_error,omitempty"`
	Cart           *CartDTO                 `json:"cart,omitempty"`
	Subtotal       decimal.Decimal          `json:"subtotal"`
	ShippingCost   decimal.Decimal          `json:"shipping_cost"`
	Total          decimal.Decimal          `json:"total"`
	PaymentMethods []domain.PaymentMethod   `json:"payment_methods,omitempty"`
}

type SubmitResponseDTO struct {
	Status      domain.AttemptStatus `json:"status"`
	SaleID      string               `json:"sale_id,omitempty"`
	RedirectURL string               `json:"redirect_url,omitempty"`
	Replayed    bool                 `json:"replayed,omitempty"`
	Checkout    CheckoutDTO          `json:"checkout"`
}

type PaymentResultDTO struct {
	Outcome  domain.PaymentOutcome `json:"outcome"`
	SaleID   string                `json:"sale_id,omitempty"`
	Amount   decimal.Decimal       `json:"amount"`
	Detail   string                `json:"detail,omitempty"`
	Message  string                `json:"message,omitempty"`
	Checkout *CheckoutDTO          `json:"checkout,omitempty"`
}

type OptionsDTO struct {
	PaymentMethods []domain.PaymentMethod     `json:"payment_methods"`
	BankTransfer   domain.BankTransferDetails `json:"bank_transfer"`
}

func toCheckoutDTO(co *domain.Checkout) CheckoutDTO {
	return CheckoutDTO{
		Step:          co.Step,
		Customer:      co.Customer,
		Fulfillment:   co.Fulfillment,
		Shipping:      co.Shipping,
		PaymentMethod: co.PaymentMethod,
		SaleID:        co.SaleID,
		RedirectURL:   co.RedirectURL,
		LastError:     co.LastError,
		ShippingCost:  co.ShippingCost(),
	}
}

func toViewDTO(v *service.CheckoutView) CheckoutDTO {
	out := toCheckoutDTO(v.Checkout)
	cart := toCartDTO(v.Cart)
	out.Cart = &cart
	out.Subtotal = v.Subtotal
	out.ShippingCost = v.Shipping
	out.Total = v.Total
	out.PaymentMethods = v.PaymentMethods
	return out
}

func (h *CheckoutHandler) respondView(w http.ResponseWriter, r *http.Request, v *service.CheckoutView, err error) {
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, toViewDTO(v))
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.checkout.Get(r.Context(), sessionID(r.Context()))
	h.respondView(w, r, v, err)
}

// GET /api/v1/checkout/options
func (h *CheckoutHandler) Options(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opts, err := h.checkout.Options(ctx)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, OptionsDTO{PaymentMethods: opts.PaymentMethods, BankTransfer: opts.BankTransfer})
}

// POST /api/v1/shipping/quote
func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req QuoteRequestDTO
	if err := decode(w, r, &req); err != nil {
		respondRequestError(ctx, w, err)
		return
	}
	q, err := h.checkout.Quote(ctx, req.Locality)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, q)
}

// POST /api/v1/checkout/details
func (h *CheckoutHandler) SetDetails(w http.ResponseWriter, r *http.Request) {
	var req DetailsRequestDTO
	if err := decode(w, r, &req); err != nil {
		respondRequestError(r.Context(), w, err)
		return
	}
	v, err := h.checkout.SetDetails(r.Context(), sessionID(r.Context()), domain.CustomerDetails{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
		Notes:   req.Notes,
	})
	h.respondView(w, r, v, err)
}

// POST /api/v1/checkout/fulfillment
func (h *CheckoutHandler) ChooseFulfillment(w http.ResponseWriter, r *http.Request) {
	var req FulfillmentRequestDTO
	if err := decode(w, r, &req); err != nil {
		respondRequestError(r.Context(), w, err)
		return
	}
	v, err := h.checkout.ChooseFulfillment(r.Context(), sessionID(r.Context()), domain.FulfillmentMethod(req.Method))
	h.respondView(w, r, v, err)
}

// PUT /api/v1/checkout/address
func (h *CheckoutHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req AddressRequestDTO
	if err := decode(w, r, &req); err != nil {
		respondRequestError(r.Context(), w, err)
		return
	}
	v, err := h.checkout.UpdateAddress(r.Context(), sessionID(r.Context()), req.Address)
	h.respondView(w, r, v, err)
}

// POST /api/v1/checkout/shipping
func (h *CheckoutHandler) CalculateShipping(w http.ResponseWriter, r *http.Request) {
	v, err := h.checkout.CalculateShipping(r.Context(), sessionID(r.Context()))
	h.respondView(w, r, v, err)
}

// POST /api/v1/checkout/payment-method
func (h *CheckoutHandler) ChoosePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentMethodRequestDTO
	if err := decode(w, r, &req); err != nil {
		respondRequestError(r.Context(), w, err)
		return
	}
	v, err := h.checkout.ChoosePayment(r.Context(), sessionID(r.Context()), domain.PaymentMethod(req.Method))
	h.respondView(w, r, v, err)
}

// POST /api/v1/checkout/retry
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	v, err := h.checkout.Retry(r.Context(), sessionID(r.Context()))
	h.respondView(w, r, v, err)
}

// DELETE /api/v1/checkout
func (h *CheckoutHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.checkout.Reset(ctx, sessionID(ctx)); err != nil {
		handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/checkout/submit
//
// The idempotency key comes from the Idempotency-Key header or the body. A
// card payment answers with a 303 to the gateway unless the client asked
// for JSON.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SubmitRequestDTO
	if r.ContentLength > 0 {
		if err := decode(w, r, &req); err != nil {
			respondRequestError(ctx, w, err)
			return
		}
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.checkout.Submit(ctx, sessionID(ctx), key)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	if res.RedirectURL != "" && !wantsJSON(r) {
		http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respondJSON(ctx, w, status, SubmitResponseDTO{
		Status:      res.Status,
		SaleID:      res.SaleID,
		RedirectURL: res.RedirectURL,
		Replayed:    res.Replayed,
		Checkout:    toCheckoutDTO(res.Checkout),
	})
}

// GET /api/v1/payments/return/success
func (h *CheckoutHandler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.checkout.CompletePayment(ctx, sessionID(ctx))
	if res == nil {
		handleError(ctx, w, err)
		return
	}

	dto := PaymentResultDTO{
		Outcome: res.Outcome.Outcome,
		SaleID:  res.Outcome.SaleID,
		Amount:  res.Outcome.Amount,
		Detail:  res.Outcome.Detail,
	}
	if err != nil {
		dto.Message = domain.UserMessage(err)
		logger.FromContext(ctx).Info("payment return not confirmed", zap.String("outcome", string(dto.Outcome)), zap.Error(err))
	}
	co := toCheckoutDTO(res.Checkout)
	dto.Checkout = &co

	if wantsJSON(r) {
		status := http.StatusOK
		if err != nil {
			status, _ = statusFor(err)
		}
		respondJSON(ctx, w, status, dto)
		return
	}
	h.redirectToStorefront(w, r, "/checkout/result", url.Values{
		"outcome": {string(dto.Outcome)},
		"sale_id": {dto.SaleID},
		"message": {dto.Message},
	})
}

// GET /api/v1/payments/return/cancel
func (h *CheckoutHandler) PaymentCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	co, err := h.checkout.CancelPayment(ctx, sessionID(ctx))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	if wantsJSON(r) {
		respondJSON(ctx, w, http.StatusOK, toCheckoutDTO(co))
		return
	}
	h.redirectToStorefront(w, r, "/checkout", url.Values{"message": {co.LastError}})
}

func (h *CheckoutHandler) redirectToStorefront(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	for k, v := range q {
		if len(v) == 0 || v[0] == "" {
			q.Del(k)
		}
	}
	target := h.storefrontURL + path
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
