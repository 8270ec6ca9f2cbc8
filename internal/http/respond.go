package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
)

const maxRequestBodySize = 1 << 20 // 1MB

var validate = validator.New(validator.WithRequiredStructEnabled())

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(ctx).Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, code, message, details string) {
	respondJSON(ctx, w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "empty_cart"
	case errors.Is(err, domain.ErrPaymentMethodDisabled):
		return http.StatusUnprocessableEntity, "payment_method_disabled"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, domain.ErrCheckoutBusy):
		return http.StatusConflict, "checkout_busy"
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, domain.ErrSaleCreation):
		return http.StatusBadGateway, "sale_creation_failed"
	case errors.Is(err, domain.ErrCheckoutCreation):
		return http.StatusBadGateway, "checkout_creation_failed"
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone, "payment_expired"
	case errors.Is(err, domain.ErrUnverifiable):
		return http.StatusFailedDependency, "payment_unverifiable"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable, "backend_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	log := logger.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("code", code), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("code", code), zap.Error(err))
	}
	respondError(ctx, w, status, code, domain.UserMessage(err), "")
}

// decode reads a JSON body into dst and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &requestError{message: "invalid JSON body", details: err.Error()}
	}
	if err := validate.Struct(dst); err != nil {
		return &requestError{message: "invalid request", details: describe(err)}
	}
	return nil
}

// requestError is a malformed request, rejected before reaching a service.
type requestError struct {
	message string
	details string
}

func (e *requestError) Error() string { return e.message + ": " + e.details }

func respondRequestError(ctx context.Context, w http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", re.message, re.details)
		return
	}
	handleError(ctx, w, err)
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
