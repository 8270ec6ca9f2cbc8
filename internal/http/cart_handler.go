package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/domain"
)

// CartAPI is implemented by service.CartService.
type CartAPI interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	AddItem(ctx context.Context, ownerID string, productID int64, qty int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, ownerID string, productID int64, qty int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, ownerID string, productID int64) (*domain.Cart, error)
	Clear(ctx context.Context, ownerID string) error
}

type CartHandler struct {
	carts CartAPI
}

func NewCartHandler(carts CartAPI) *CartHandler {
	return &CartHandler{carts: carts}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"omitempty,min=1,max=99"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=99"`
}

type CartLineDTO struct {
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	AvailableStock int             `json:"available_stock"`
	ImageURL       string          `json:"image_url,omitempty"`
}

type CartDTO struct {
	Lines     []CartLineDTO   `json:"lines"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

func toCartDTO(c *domain.Cart) CartDTO {
	out := CartDTO{Lines: make([]CartLineDTO, 0, len(c.Lines)), ItemCount: c.ItemCount(), Total: c.Total()}
	for _, l := range c.Lines {
		out.Lines = append(out.Lines, CartLineDTO{
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      l.UnitPrice,
			Quantity:       l.Quantity,
			Subtotal:       l.Subtotal(),
			AvailableStock: l.AvailableStock,
			ImageURL:       l.ImageRef,
		})
	}
	return out
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, err := h.carts.GetCart(ctx, sessionID(ctx))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toCartDTO(cart))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AddItemRequestDTO
	if err := decode(w, r, &req); err != nil {
		respondRequestError(ctx, w, err)
		return
	}

	cart, err := h.carts.AddItem(ctx, sessionID(ctx), req.ProductID, req.Quantity)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, toCartDTO(cart))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityRequestDTO
	if err := decode(w, r, &req); err != nil {
		respondRequestError(ctx, w, err)
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, sessionID(ctx), productID, req.Quantity)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toCartDTO(cart))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(ctx, sessionID(ctx), productID)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toCartDTO(cart))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := sessionID(ctx)
	if err := h.carts.Clear(ctx, sid); err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toCartDTO(domain.NewCart(sid)))
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(r.Context(), w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer", "")
		return 0, false
	}
	return productID, true
}
