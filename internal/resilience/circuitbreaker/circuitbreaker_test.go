package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StartsClosed(t *testing.T) {
	cb := New(InferenceConfig())

	assert.Equal(t, "inference", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.False(t, cb.IsOpen())
}

func TestExecute_Success(t *testing.T) {
	cb := New(InferenceConfig())

	result, err := cb.Execute(func() (interface{}, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestExecute_PropagatesError(t *testing.T) {
	cb := New(InferenceConfig())
	boom := errors.New("connection refused")

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, gobreaker.StateClosed, cb.State(), "a single failure must not trip the circuit")
}

func TestExecute_TripsAfterFailureThreshold(t *testing.T) {
	cb := New(Config{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      4,
	})

	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, errors.New("down")
		})
	}

	assert.True(t, cb.IsOpen())

	_, err := cb.Execute(func() (interface{}, error) {
		t.Fatal("open circuit must not call the function")
		return nil, nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestExecute_BelowMinRequestsStaysClosed(t *testing.T) {
	cb := New(Config{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      10,
	})

	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, errors.New("down")
		})
	}

	assert.False(t, cb.IsOpen())
}
