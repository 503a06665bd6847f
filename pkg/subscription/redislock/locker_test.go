package redislock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redispkg "github.com/dmitrymomot/planskit/pkg/redis"
	"github.com/dmitrymomot/planskit/pkg/subscription/redislock"
)

func newLocker(t *testing.T, opts ...redislock.Option) (*redislock.Locker, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	opts = append([]redislock.Option{redislock.WithRetry(time.Millisecond, 5*time.Millisecond)}, opts...)
	return redislock.New(client, opts...), srv
}

func TestLocker_LockAndRelease(t *testing.T) {
	t.Parallel()

	locker, srv := newLocker(t)

	unlock, err := locker.Lock(t.Context(), "team:1")
	require.NoError(t, err)
	assert.True(t, srv.Exists(redislock.DefaultPrefix+"team:1"))
	assert.Equal(t, redislock.DefaultTTL, srv.TTL(redislock.DefaultPrefix+"team:1"))

	unlock()
	unlock()
	assert.False(t, srv.Exists(redislock.DefaultPrefix+"team:1"))
}

func TestLocker_WaitsForHolder(t *testing.T) {
	t.Parallel()

	locker, _ := newLocker(t)

	unlock, err := locker.Lock(t.Context(), "team:2")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "team:2")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := locker.Lock(t.Context(), "team:2")
	require.NoError(t, err)
	unlock2()
}

func TestLocker_ReleaseKeepsForeignLock(t *testing.T) {
	t.Parallel()

	locker, srv := newLocker(t, redislock.WithTTL(time.Second), redislock.WithPrefix("test:"))

	unlock, err := locker.Lock(t.Context(), "team:3")
	require.NoError(t, err)

	// The first holder's TTL lapses and another process takes the key.
	srv.FastForward(2 * time.Second)
	require.NoError(t, srv.Set("test:team:3", "someone-else"))

	unlock()
	got, err := srv.Get("test:team:3")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLocker_Serializes(t *testing.T) {
	t.Parallel()

	locker, _ := newLocker(t)

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "team:4")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.False(t, overlap.Load())
}

func TestLocker_ConnectionError(t *testing.T) {
	t.Parallel()

	locker, srv := newLocker(t)
	require.NoError(t, locker.Ping(t.Context()))
	srv.Close()

	assert.ErrorIs(t, locker.Ping(t.Context()), redispkg.ErrUnreachable)
	_, err := locker.Lock(t.Context(), "team:5")
	require.Error(t, err)
	assert.NotErrorIs(t, err, redislock.ErrLockHeld)
}
