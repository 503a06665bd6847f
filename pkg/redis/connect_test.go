package redis_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planskit/pkg/redis"
)

func TestConnect(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)

	client, err := redis.Connect(t.Context(), redis.Config{
		ConnectionURL:  "redis://" + srv.Addr() + "/0",
		RetryAttempts:  2,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, redis.Ping(t.Context(), client))

	srv.Close()
	assert.ErrorIs(t, redis.Ping(t.Context(), client), redis.ErrUnreachable)
}

func TestConnect_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(t.Context(), redis.Config{})
		assert.ErrorIs(t, err, redis.ErrMissingURL)
	})

	t.Run("malformed url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(t.Context(), redis.Config{ConnectionURL: "http://localhost"})
		assert.ErrorIs(t, err, redis.ErrInvalidURL)
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		srv := miniredis.RunT(t)
		addr := srv.Addr()
		srv.Close()

		_, err := redis.Connect(t.Context(), redis.Config{
			ConnectionURL:  "redis://" + addr,
			RetryAttempts:  2,
			RetryInterval:  5 * time.Millisecond,
			ConnectTimeout: 500 * time.Millisecond,
		})
		assert.ErrorIs(t, err, redis.ErrNotReady)
	})
}
