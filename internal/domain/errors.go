package domain

import (
	"errors"
)

// Error kinds. Every error surfaced by the checkout core wraps one of these.
var (
	ErrInput            = errors.New("invalid input")
	ErrValidation       = errors.New("validation failed")
	ErrSaleCreation     = errors.New("sale creation failed")
	ErrCheckoutCreation = errors.New("checkout creation failed")
	ErrExpired          = errors.New("payment session expired")
	ErrUnverifiable     = errors.New("payment could not be verified")
)

var (
	ErrEmptyCart             = errors.New("cart is empty, nothing to checkout")
	ErrItemNotFound          = errors.New("item not found in cart")
	ErrIllegalTransition     = errors.New("illegal transition of checkout step")
	ErrCheckoutBusy          = errors.New("checkout submission already in progress")
	ErrPaymentMethodDisabled = errors.New("payment method is not enabled")
)

// Error carries a user-facing message next to its kind and optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func InputError(message string) error {
	return &Error{Kind: ErrInput, Message: message}
}

func ValidationError(message string) error {
	return &Error{Kind: ErrValidation, Message: message}
}

func SaleCreationError(message string, cause error) error {
	return &Error{Kind: ErrSaleCreation, Message: message, Err: cause}
}

func CheckoutCreationError(message string, cause error) error {
	return &Error{Kind: ErrCheckoutCreation, Message: message, Err: cause}
}

func ExpiredError(message string) error {
	return &Error{Kind: ErrExpired, Message: message}
}

func UnverifiableError(message string, cause error) error {
	return &Error{Kind: ErrUnverifiable, Message: message, Err: cause}
}

// UserMessage returns the message safe to show to a shopper. Raw causes are
// never included.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	switch {
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrCheckoutBusy),
		errors.Is(err, ErrPaymentMethodDisabled):
		return err.Error()
	}
	return "something went wrong, please try again"
}
