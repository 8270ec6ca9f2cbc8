package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/health"
)

// HealthReporter is implemented by health.Monitor.
type HealthReporter interface {
	Report() health.Report
}

type RouterConfig struct {
	RequestTimeout time.Duration
	SessionTTL     time.Duration
	SecureCookies  bool
}

func NewRouter(cfg RouterConfig, log *zap.Logger, carts *CartHandler, checkout *CheckoutHandler, hr HealthReporter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		report := hr.Report()
		status := http.StatusOK
		if report.Status == health.StatusError {
			status = http.StatusServiceUnavailable
		}
		respondJSON(req.Context(), w, status, report)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.SessionTTL, cfg.SecureCookies))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Post("/items", carts.AddItem)
			r.Put("/items/{product_id}", carts.UpdateQuantity)
			r.Delete("/items/{product_id}", carts.RemoveItem)
		})

		r.Post("/shipping/quote", checkout.Quote)

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkout.Get)
			r.Delete("/", checkout.Reset)
			r.Get("/options", checkout.Options)
			r.Post("/details", checkout.SetDetails)
			r.Post("/fulfillment", checkout.ChooseFulfillment)
			r.Put("/address", checkout.UpdateAddress)
			r.Post("/shipping", checkout.CalculateShipping)
			r.Post("/payment-method", checkout.ChoosePayment)
			r.Post("/submit", checkout.Submit)
			r.Post("/retry", checkout.Retry)
		})

		r.Route("/payments/return", func(r chi.Router) {
			r.Get("/success", checkout.PaymentSuccess)
			r.Get("/cancel", checkout.PaymentCancel)
		})
	})

	return r
}
