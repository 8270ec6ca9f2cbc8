// Package circuitbreaker wraps sony/gobreaker with the settings used for
// calls to the storefront backend.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

var ErrOpen = errors.New("circuit breaker is open")

type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Classifier reports whether an error should count as a failure.
type Classifier func(error) bool

// DefaultClassifier ignores caller cancellation.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

type Config struct {
	Name             string
	FailureThreshold int
	OpenTimeout      time.Duration
	Classifier       Classifier
	OnStateChange    func(name string, from, to State)
}

func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		Classifier:       DefaultClassifier,
	}
}

type CircuitBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	classify := cfg.Classifier
	if classify == nil {
		classify = DefaultClassifier
	}
	threshold := uint32(cfg.FailureThreshold)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !classify(err)
		},
		OnStateChange: cfg.OnStateChange,
	}

	return &CircuitBreaker{
		name:    cfg.Name,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (cb *CircuitBreaker) State() State {
	return cb.breaker.State()
}

// Execute runs fn unless the breaker is open. While half-open only one
// probe is let through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := cb.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrOpen, cb.name)
	}
	return err
}
