package subscription_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planskit/pkg/subscription"
)

// countingRepository counts plan lookups that reach the backing store.
type countingRepository struct {
	*subscription.MemoryRepository
	finds atomic.Int32
}

func (r *countingRepository) FindPlan(ctx context.Context, id string) (*subscription.Plan, error) {
	r.finds.Add(1)
	return r.MemoryRepository.FindPlan(ctx, id)
}

func TestCachedRepository(t *testing.T) {
	t.Parallel()

	backing := &countingRepository{MemoryRepository: subscription.NewMemoryRepository(testPlans(t)...)}
	repo, err := subscription.NewCachedRepository(backing, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for range 3 {
		p, err := repo.FindPlan(ctx, "basic")
		require.NoError(t, err)
		assert.Equal(t, "Basic", p.Name)
	}
	assert.Equal(t, int32(1), backing.finds.Load())

	// Callers get copies; mutating one does not poison the cache.
	p, err := repo.FindPlan(ctx, "basic")
	require.NoError(t, err)
	p.Features[0].Limit = 999
	again, err := repo.FindPlan(ctx, "basic")
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.Features[0].Limit)

	p.Name = "Basic v2"
	require.NoError(t, repo.SavePlan(ctx, p))
	updated, err := repo.FindPlan(ctx, "basic")
	require.NoError(t, err)
	assert.Equal(t, "Basic v2", updated.Name)
	assert.Equal(t, int32(2), backing.finds.Load())

	require.NoError(t, repo.DeletePlan(ctx, "basic", t0))
	deleted, err := repo.FindPlan(ctx, "basic")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())

	_, err = repo.FindPlan(ctx, "missing")
	assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
}

func TestCachedRepository_BacksService(t *testing.T) {
	t.Parallel()

	repo, err := subscription.NewCachedRepository(subscription.NewMemoryRepository(testPlans(t)...), 0)
	require.NoError(t, err)
	svc := subscription.NewService(repo)
	owner := subscription.NewOwner("user", "cached")

	_, err = svc.Subscribe(context.Background(), owner, "pro", 30)
	require.NoError(t, err)
	assert.True(t, svc.HasFeature(context.Background(), owner, "api"))
}
