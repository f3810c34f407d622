package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := retry(context.Background(), zerolog.Nop(), "postgres", 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	refused := errors.New("connection refused")
	calls := 0
	err := retry(context.Background(), zerolog.Nop(), "redis", 2, time.Millisecond, func(context.Context) error {
		calls++
		return refused
	})

	require.ErrorIs(t, err, refused)
	assert.Contains(t, err.Error(), "redis unreachable after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, zerolog.Nop(), "postgres", 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("connection refused")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
