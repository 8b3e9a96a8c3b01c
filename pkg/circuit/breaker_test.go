package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func passing(context.Context) error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Config{Name: "test_consec", MaxConsecFailures: 3, OpenFor: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(context.Background(), failing, nil), errBoom)
	}
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Do(context.Background(), passing, nil), ErrOpen)
}

func TestBreakerHalfOpenProbeCloses(t *testing.T) {
	b := New(Config{Name: "test_probe", MaxConsecFailures: 1, OpenFor: time.Second}, nil)
	now := time.Now()
	b.now = func() time.Time { return now }

	require.Error(t, b.Do(context.Background(), failing, nil))
	require.Equal(t, Open, b.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, b.Do(context.Background(), passing, nil))
	assert.Equal(t, Closed, b.State())
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	notFound := errors.New("not found")
	b := New(Config{
		Name:              "test_ignore",
		MaxConsecFailures: 1,
		IsFailure:         func(err error) bool { return !errors.Is(err, notFound) },
	}, nil)

	for i := 0; i < 5; i++ {
		_ = b.Do(context.Background(), func(context.Context) error { return notFound }, nil)
	}
	assert.Equal(t, Closed, b.State())
}

func TestBreakerFallbackReceivesCause(t *testing.T) {
	b := New(Config{Name: "test_fallback", MaxConsecFailures: 1, OpenFor: time.Hour}, nil)
	_ = b.Do(context.Background(), failing, nil)

	var cause error
	err := b.Do(context.Background(), passing, func(_ context.Context, c error) error {
		cause = c
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, cause, ErrOpen)
}
