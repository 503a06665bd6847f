package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planskit/pkg/subscription"
)

func TestLocalLocker(t *testing.T) {
	t.Parallel()

	t.Run("excludes holders of the same key", func(t *testing.T) {
		t.Parallel()
		locker := subscription.NewLocalLocker()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			inside  int
			maxSeen int
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(context.Background(), "team:1")
				if !assert.NoError(t, err) {
					return
				}
				defer unlock()

				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen)
	})

	t.Run("different keys do not block", func(t *testing.T) {
		t.Parallel()
		locker := subscription.NewLocalLocker()

		unlockA, err := locker.Lock(context.Background(), "a")
		require.NoError(t, err)
		defer unlockA()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		unlockB, err := locker.Lock(ctx, "b")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("waiter gives up with its context", func(t *testing.T) {
		t.Parallel()
		locker := subscription.NewLocalLocker()

		unlock, err := locker.Lock(context.Background(), "k")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, "k")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		// Double unlock is harmless and the key is free again.
		unlock()
		unlock()
		again, err := locker.Lock(context.Background(), "k")
		require.NoError(t, err)
		again()
	})
}
