package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func newTestBreaker(threshold int) *CircuitBreaker {
	return New(Config{Name: "test", FailureThreshold: threshold, OpenTimeout: 50 * time.Millisecond})
}

func TestExecute_OpensAfterThreshold(t *testing.T) {
	cb := newTestBreaker(2)

	for i := 0; i < 2; i++ {
		err := cb.Execute(func() error { return errBackend })
		require.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestExecute_SuccessResetsFailures(t *testing.T) {
	cb := newTestBreaker(2)

	_ = cb.Execute(func() error { return errBackend })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return errBackend })

	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_HalfOpenProbe(t *testing.T) {
	cb := newTestBreaker(1)

	_ = cb.Execute(func() error { return errBackend })
	require.Equal(t, StateOpen, cb.State())

	require.Eventually(t, func() bool {
		return cb.State() == StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_FailedProbeReopens(t *testing.T) {
	cb := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBackend })
	}
	require.Eventually(t, func() bool {
		return cb.State() == StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	err := cb.Execute(func() error { return errBackend })
	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, StateOpen, cb.State())
}

func TestExecute_CancellationIsNotAFailure(t *testing.T) {
	cb := newTestBreaker(1)

	err := cb.Execute(func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_CustomClassifier(t *testing.T) {
	errClient := errors.New("bad request")
	cb := New(Config{
		Name:             "backend",
		FailureThreshold: 1,
		Classifier: func(err error) bool {
			return err != nil && !errors.Is(err, errClient)
		},
	})

	_ = cb.Execute(func() error { return errClient })
	assert.Equal(t, StateClosed, cb.State())
}

func TestStateChangeCallback(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	cb := New(Config{
		Name:             "backend",
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(func() error { return errBackend })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"backend:closed->open"}, transitions)
}
