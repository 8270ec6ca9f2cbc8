// Package backend is the typed client of the storefront REST API that owns
// products, sales, settings and payment status.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
)

var (
	ErrNotFound          = errors.New("backend resource not found")
	ErrMalformedResponse = errors.New("malformed backend response")
)

const maxBodyBytes = 1 << 20

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// NewBreaker builds a breaker that only counts server-side failures.
func NewBreaker(cfg circuitbreaker.Config) *circuitbreaker.CircuitBreaker {
	cfg.Classifier = countsAsFailure
	return circuitbreaker.New(cfg)
}

// New builds a client whose transport is traced with otelhttp. Every call
// runs under timeout and through a circuit breaker that ignores 4xx answers.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: timeout,
	}
	c.breaker = NewBreaker(circuitbreaker.DefaultConfig("backend"))

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSale registers a sale (POST /Sales).
func (c *Client) CreateSale(ctx context.Context, order domain.SaleOrder) (SaleReceipt, error) {
	body, err := c.do(ctx, http.MethodPost, "/Sales", toSaleWire(order))
	if err != nil {
		return SaleReceipt{}, err
	}
	return parseSaleReceipt(body)
}

// CreateCardCheckout opens a hosted card checkout (POST /payway/checkout).
func (c *Client) CreateCardCheckout(ctx context.Context, req CardCheckoutRequest) (CardCheckoutResponse, error) {
	payload := cardCheckoutWire{
		SaleID: req.SaleID,
		Amount: req.Amount.InexactFloat64(),
		Customer: customerWire{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
	}
	body, err := c.do(ctx, http.MethodPost, "/payway/checkout", payload)
	if err != nil {
		return CardCheckoutResponse{}, err
	}

	var w cardCheckoutResponseWire
	if err := json.Unmarshal(body, &w); err != nil {
		return CardCheckoutResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return CardCheckoutResponse{CheckoutURL: w.CheckoutURL, TransactionID: string(w.TransactionID)}, nil
}

// PaymentStatus reads the authoritative status of a card transaction. A
// response without a status is reported as ErrMalformedResponse.
func (c *Client) PaymentStatus(ctx context.Context, transactionID string) (domain.PaymentStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/payment-status/"+url.PathEscape(transactionID), nil)
	if err != nil {
		return domain.PaymentStatus{}, err
	}

	var w paymentStatusWire
	if err := json.Unmarshal(body, &w); err != nil {
		return domain.PaymentStatus{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(w.Status) == "" {
		return domain.PaymentStatus{}, fmt.Errorf("%w: missing status", ErrMalformedResponse)
	}
	return w.toDomain(), nil
}

func (c *Client) Settings(ctx context.Context) (domain.StoreSettings, error) {
	body, err := c.do(ctx, http.MethodGet, "/settings", nil)
	if err != nil {
		return domain.StoreSettings{}, err
	}

	var w settingsWire
	if err := json.Unmarshal(body, &w); err != nil {
		return domain.StoreSettings{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return w.toDomain(), nil
}

func (c *Client) Product(ctx context.Context, id int64) (domain.Product, error) {
	body, err := c.do(ctx, http.MethodGet, "/Products/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return domain.Product{}, err
	}

	var w productWire
	if err := json.Unmarshal(body, &w); err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if w.ID == 0 {
		w.ID = id
	}
	return domain.Product{
		ID:       w.ID,
		Name:     w.Name,
		Price:    w.Price.Decimal,
		Stock:    w.Stock,
		ImageURL: w.ImageURL,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body []byte
	err := c.breaker.Execute(func() error {
		var reqBody io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("marshal %s body: %w", path, err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read %s response: %w", path, err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		body = data
		return nil
	})
	return body, err
}

// countsAsFailure keeps client errors and cancellations from tripping the
// breaker.
func countsAsFailure(err error) bool {
	if !circuitbreaker.DefaultClassifier(err) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code < 500 {
		return false
	}
	return true
}
