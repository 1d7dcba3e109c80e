package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 2, Timeout: 50 * time.Millisecond}, nil)

	boom := errors.New("boom")
	require.Error(t, b.Execute(func() error { return boom }))
	assert.Equal(t, Closed, b.State())

	require.Error(t, b.Execute(func() error { return boom }))
	assert.Equal(t, Open, b.State())

	err := b.Execute(func() error { t.Fatal("fn must not run while open"); return nil })
	assert.Error(t, err)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond}, nil)

	require.Error(t, b.Execute(func() error { return errors.New("boom") }))
	require.Equal(t, Open, b.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 1}, nil)
	require.Error(t, b.Execute(func() error { return errors.New("boom") }))
	require.Equal(t, Open, b.State())

	b.Reset()
	assert.Equal(t, Closed, b.State())
}
