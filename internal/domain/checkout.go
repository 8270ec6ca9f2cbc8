package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteFunc resolves a shipping quote for an address.
type QuoteFunc func(address string) (ShippingQuote, error)

// Checkout is the checkout wizard state of one storefront session. Methods
// validate every step change with CanTransitionTo and keep form data on
// failure.
type Checkout struct {
	Step           CheckoutStep      `json:"step"`
	Customer       CustomerDetails   `json:"customer"`
	Fulfillment    FulfillmentMethod `json:"fulfillment,omitempty"`
	Shipping       *ShippingQuote    `json:"shipping,omitempty"`
	PaymentMethod  PaymentMethod     `json:"payment_method,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	SaleID         string            `json:"sale_id,omitempty"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func NewCheckout() *Checkout {
	return &Checkout{Step: StepCollectingDetails, UpdatedAt: time.Now()}
}

// SetDetails stores the customer details. Name and phone are required here,
// email is only checked at the submission gate. With delivery chosen an
// address change re-resolves shipping through live.
func (c *Checkout) SetDetails(d CustomerDetails, live QuoteFunc) error {
	if err := c.editable(); err != nil {
		return err
	}
	d = d.Sanitized()
	if d.Name == "" {
		return InputError("name is required")
	}
	if d.Phone == "" {
		return InputError("phone is required")
	}

	addressChanged := d.Address != c.Customer.Address
	c.Customer = d
	if addressChanged && c.Fulfillment == FulfillmentDelivery {
		if err := c.requote(live); err != nil {
			return err
		}
	}
	return c.advance()
}

// ChooseFulfillment selects pickup or delivery. Pickup zeroes shipping and
// drops any zone; delivery quotes the current address.
func (c *Checkout) ChooseFulfillment(f FulfillmentMethod, live QuoteFunc) error {
	if err := c.editable(); err != nil {
		return err
	}
	if !f.Valid() {
		return InputError("unknown fulfillment method")
	}
	if !c.Customer.Complete() {
		return ErrIllegalTransition
	}

	c.Fulfillment = f
	if f == FulfillmentPickup {
		c.Shipping = &ShippingQuote{Cost: decimal.Zero}
		return c.advance()
	}
	if err := c.requote(live); err != nil {
		return err
	}
	return c.advance()
}

// UpdateAddress is the live address edit. An empty address resets shipping
// without error.
func (c *Checkout) UpdateAddress(address string, live QuoteFunc) error {
	if err := c.editable(); err != nil {
		return err
	}
	c.Customer.Address = cleanText(address)
	if c.Fulfillment == FulfillmentDelivery {
		if err := c.requote(live); err != nil {
			return err
		}
	}
	return c.advance()
}

// CalculateShipping is the explicit "calculate" action. Unlike the live
// path, resolve is expected to reject an empty address.
func (c *Checkout) CalculateShipping(resolve QuoteFunc) error {
	if err := c.editable(); err != nil {
		return err
	}
	if c.Fulfillment != FulfillmentDelivery {
		return ErrIllegalTransition
	}
	q, err := resolve(c.Customer.Address)
	if err != nil {
		return err
	}
	c.Shipping = &q
	return c.advance()
}

// ChoosePayment records the payment method once shipping is settled.
func (c *Checkout) ChoosePayment(m PaymentMethod, settings StoreSettings) error {
	if err := c.editable(); err != nil {
		return err
	}
	if c.Step != StepChoosingPayment {
		return ErrIllegalTransition
	}
	if !m.Valid() {
		return InputError("unknown payment method")
	}
	if !settings.Enabled(m) {
		return ErrPaymentMethodDisabled
	}
	c.PaymentMethod = m
	c.touch()
	return nil
}

// Validate is the gate every submission passes. Pickup has its shipping
// forced to zero as a side effect.
func (c *Checkout) Validate(cart *Cart, settings StoreSettings) error {
	if cart == nil || cart.IsEmpty() {
		return ErrEmptyCart
	}
	if c.Customer.Name == "" || c.Customer.Phone == "" {
		return InputError("name and phone are required")
	}
	if !c.PaymentMethod.Valid() {
		return InputError("choose a payment method")
	}
	if !settings.Enabled(c.PaymentMethod) {
		return ErrPaymentMethodDisabled
	}
	if c.PaymentMethod == PaymentCard && !ValidEmail(c.Customer.Email) {
		return ValidationError("a valid email is required for card payments")
	}

	switch c.Fulfillment {
	case FulfillmentPickup:
		c.Shipping = &ShippingQuote{Cost: decimal.Zero}
	case FulfillmentDelivery:
		if c.Customer.Address == "" {
			return InputError("address is required for delivery")
		}
		if !c.ShippingCost().IsPositive() {
			return ValidationError("shipping could not be calculated, please recheck your locality")
		}
	default:
		return InputError("choose pickup or delivery")
	}
	return nil
}

// BeginSubmission locks the wizard for one attempt. Card payments move to
// REDIRECTING_TO_GATEWAY, the rest to SUBMITTING.
func (c *Checkout) BeginSubmission(cart *Cart, settings StoreSettings, key string) error {
	if c.Step.InFlight() {
		return ErrCheckoutBusy
	}
	if err := c.Validate(cart, settings); err != nil {
		return err
	}
	to := StepSubmitting
	if c.PaymentMethod == PaymentCard {
		to = StepRedirectingToGateway
	}
	if err := c.transition(to); err != nil {
		return err
	}
	c.IdempotencyKey = key
	c.LastError = ""
	return nil
}

// BuildSaleOrder snapshots the cart and form data into a SaleOrder.
func (c *Checkout) BuildSaleOrder(cart *Cart) SaleOrder {
	items := make([]SaleItem, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		items = append(items, SaleItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return SaleOrder{
		CustomerSummary:   CustomerSummary(c.Customer, c.Fulfillment),
		Customer:          c.Customer,
		Items:             items,
		ShippingCost:      c.ShippingCost(),
		PaymentMethod:     c.PaymentMethod,
		PaymentReference:  c.IdempotencyKey,
		FulfillmentMethod: c.Fulfillment,
	}
}

func (c *Checkout) AwaitGateway(card CardCheckout) {
	c.SaleID = card.SaleID
	c.RedirectURL = card.RedirectURL
	c.touch()
}

func (c *Checkout) MarkConfirmed(saleID string) error {
	if err := c.transition(StepConfirmed); err != nil {
		return err
	}
	if saleID != "" {
		c.SaleID = saleID
	}
	c.LastError = ""
	c.RedirectURL = ""
	return nil
}

// MarkFailed is used when the direct sale could not be created.
func (c *Checkout) MarkFailed(message string) error {
	if err := c.transition(StepFailed); err != nil {
		return err
	}
	c.LastError = message
	return nil
}

// ReturnToPayment sends the wizard back to payment selection with a message,
// keeping all form data.
func (c *Checkout) ReturnToPayment(message string) error {
	if err := c.transition(StepChoosingPayment); err != nil {
		return err
	}
	c.LastError = message
	c.RedirectURL = ""
	c.IdempotencyKey = ""
	return nil
}

func (c *Checkout) Retry() error {
	if c.Step != StepFailed {
		return ErrIllegalTransition
	}
	return c.ReturnToPayment(c.LastError)
}

// Stalled reports a direct submission whose outcome was never stored, such
// as one cut short by a crash. It only applies once after has passed since
// the wizard entered SUBMITTING.
func (c *Checkout) Stalled(now time.Time, after time.Duration) bool {
	return c.Step == StepSubmitting && now.Sub(c.UpdatedAt) > after
}

func (c *Checkout) ShippingCost() decimal.Decimal {
	if c.Shipping == nil {
		return decimal.Zero
	}
	return c.Shipping.Cost
}

func (c *Checkout) editable() error {
	if c.Step.InFlight() {
		return ErrCheckoutBusy
	}
	if c.Step == StepConfirmed || c.Step == StepFailed {
		return ErrIllegalTransition
	}
	return nil
}

func (c *Checkout) requote(live QuoteFunc) error {
	if c.Customer.Address == "" {
		c.Shipping = nil
		return nil
	}
	q, err := live(c.Customer.Address)
	if err != nil {
		return err
	}
	c.Shipping = &q
	return nil
}

// advance moves between the form steps according to the data collected so far.
func (c *Checkout) advance() error {
	to := StepChoosingPayment
	switch {
	case !c.Customer.Complete():
		to = StepCollectingDetails
	case !c.Fulfillment.Valid():
		to = StepChoosingFulfillment
	case c.Fulfillment == FulfillmentDelivery && c.Shipping == nil:
		to = StepComputingShipping
	}
	if to == c.Step {
		c.touch()
		return nil
	}
	return c.transition(to)
}

func (c *Checkout) transition(to CheckoutStep) error {
	if !CanTransitionTo(c.Step, to) {
		return ErrIllegalTransition
	}
	c.Step = to
	c.touch()
	return nil
}

func (c *Checkout) touch() {
	c.UpdatedAt = time.Now()
}
