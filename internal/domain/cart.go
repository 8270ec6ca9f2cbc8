package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view needed to put an item in a cart.
type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	ImageURL string          `json:"image_url,omitempty"`
}

type CartLine struct {
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	AvailableStock int             `json:"available_stock"`
	ImageRef       string          `json:"image_ref,omitempty"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	OwnerID   string     `json:"owner_id"`
	Lines     []CartLine `json:"lines"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewCart(ownerID string) *Cart {
	now := time.Now()
	return &Cart{
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddItem increments an existing line by qty or appends a new line seeded
// with qty. qty below 1 counts as 1. Catalog fields of an existing line are
// refreshed from p. No stock clamping happens here.
func (c *Cart) AddItem(p Product, qty int) CartLine {
	if qty < 1 {
		qty = 1
	}
	c.UpdatedAt = time.Now()

	if i := c.indexOf(p.ID); i >= 0 {
		line := &c.Lines[i]
		line.Quantity += qty
		line.Name = p.Name
		line.UnitPrice = p.Price
		line.AvailableStock = p.Stock
		line.ImageRef = p.ImageURL
		return *line
	}

	line := CartLine{
		ProductID:      p.ID,
		Name:           p.Name,
		UnitPrice:      p.Price,
		Quantity:       qty,
		AvailableStock: p.Stock,
		ImageRef:       p.ImageURL,
	}
	c.Lines = append(c.Lines, line)
	return line
}

// UpdateQuantity sets the quantity of a line, clamped to [1, AvailableStock].
// A non-positive AvailableStock means stock is unknown and only the lower
// bound applies.
func (c *Cart) UpdateQuantity(productID int64, qty int) (CartLine, error) {
	i := c.indexOf(productID)
	if i < 0 {
		return CartLine{}, ErrItemNotFound
	}
	line := &c.Lines[i]
	line.Quantity = clampQuantity(qty, line.AvailableStock)
	c.UpdatedAt = time.Now()
	return *line, nil
}

// RemoveItem drops the line for productID and reports whether it existed.
func (c *Cart) RemoveItem(productID int64) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	c.UpdatedAt = time.Now()
	return true
}

func (c *Cart) Clear() {
	c.Lines = nil
	c.UpdatedAt = time.Now()
}

// Total is recomputed from the current lines on every call.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Line(productID int64) (CartLine, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

func (c *Cart) indexOf(productID int64) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func clampQuantity(qty, stock int) int {
	if stock > 0 && qty > stock {
		qty = stock
	}
	if qty < 1 {
		qty = 1
	}
	return qty
}
