package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fjod/storefront/internal/backend"
)

func TestRetryPolicy_StopsOnSuccess(t *testing.T) {
	s := &fakeSleeper{}
	calls := 0
	err := RetryPolicy{MaxAttempts: 3, Delay: time.Second}.Do(context.Background(), s.Sleep, retryableStatusError, func() error {
		calls++
		if calls < 2 {
			return backend.ErrMalformedResponse
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, s.slept)
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	s := &fakeSleeper{}
	calls := 0
	err := RetryPolicy{MaxAttempts: 3, Delay: time.Second}.Do(context.Background(), s.Sleep, retryableStatusError, func() error {
		calls++
		return backend.ErrNotFound
	})
	assert.ErrorIs(t, err, backend.ErrNotFound)
	assert.Equal(t, 3, calls)
	assert.Len(t, s.slept, 2, "no sleep after the last attempt")
}

func TestRetryPolicy_NonRetryable(t *testing.T) {
	s := &fakeSleeper{}
	calls := 0
	badRequest := &backend.StatusError{Method: "GET", Path: "/payment-status/tx", Code: 400}
	err := RetryPolicy{MaxAttempts: 3}.Do(context.Background(), s.Sleep, retryableStatusError, func() error {
		calls++
		return badRequest
	})
	assert.ErrorIs(t, err, badRequest)
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.slept)
}

func TestRetryPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = RetryPolicy{}.Do(context.Background(), (&fakeSleeper{}).Sleep, retryableStatusError, func() error {
		calls++
		return errors.New("dial tcp: connection refused")
	})
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := DefaultRetryPolicy().Do(ctx, sleepCtx, retryableStatusError, func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryableStatusError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("connection reset"), true},
		{fmt.Errorf("GET /payment-status/x: %w", backend.ErrNotFound), true},
		{backend.ErrMalformedResponse, true},
		{&backend.StatusError{Code: 503}, true},
		{&backend.StatusError{Code: 429}, true},
		{&backend.StatusError{Code: 422}, false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, retryableStatusError(tt.err))
		})
	}
}
