package pgstore_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planskit/pkg/pg"
	"github.com/dmitrymomot/planskit/pkg/subscription"
	"github.com/dmitrymomot/planskit/pkg/subscription/pgstore"
)

// newTestStore opens the store against PG_CONN_URL and skips when it is unset.
func newTestStore(t *testing.T) *pgstore.Store {
	t.Helper()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL not set")
	}

	store, err := pgstore.Open(context.Background(), pg.Config{
		ConnectionString: url,
		MaxOpenConns:     8,
		RetryAttempts:    1,
		MigrationsTable:  "planskit_migrations_test",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Ping(context.Background()))
	return store
}

func testPlan(t *testing.T) *subscription.Plan {
	t.Helper()
	price, err := subscription.NewMoney("19.90", "EUR")
	require.NoError(t, err)
	return &subscription.Plan{
		ID:           "pg-test-" + uuid.NewString(),
		Name:         "Pro",
		Price:        price,
		DurationDays: 30,
		Features: []subscription.Feature{
			{Code: "seats", Name: "Seats", Kind: subscription.FeatureKindLimit, Limit: 10},
			{Code: "sso", Name: "SSO", Kind: subscription.FeatureKindFeature},
		},
	}
}

func testOwner() subscription.Owner {
	return subscription.NewOwner("team", uuid.NewString())
}

func TestStore_Plans(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan := testPlan(t)
	require.NoError(t, store.SavePlan(ctx, plan))

	got, err := store.FindPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", got.Name)
	assert.True(t, plan.Price.Amount.Equal(got.Price.Amount))
	assert.Equal(t, "EUR", got.Price.Currency)
	require.Len(t, got.Features, 2)
	assert.Equal(t, "seats", got.Features[0].Code)
	assert.Equal(t, int64(10), got.Features[0].Limit)
	assert.NotEqual(t, uuid.Nil, got.Features[0].ID)

	plan.Features = plan.Features[:1]
	require.NoError(t, store.SavePlan(ctx, plan))
	got, err = store.FindPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Len(t, got.Features, 1)

	require.NoError(t, store.DeletePlan(ctx, plan.ID, time.Now()))
	got, err = store.FindPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())

	_, err = store.FindPlan(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	assert.ErrorIs(t, store.DeletePlan(ctx, "missing-"+uuid.NewString(), time.Now()), subscription.ErrPlanNotFound)
}

func TestStore_SubscriptionsAndUsage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan := testPlan(t)
	require.NoError(t, store.SavePlan(ctx, plan))

	owner := testOwner()
	svc := subscription.NewService(store, subscription.WithLocker(pgstore.NewLocker(store.Pool())))

	sub, err := svc.Subscribe(ctx, owner, plan.ID, 30)
	require.NoError(t, err)
	assert.True(t, sub.Active)

	active, err := store.FindActiveSubscription(ctx, owner, time.Now())
	require.NoError(t, err)
	assert.Equal(t, sub.ID, active.ID)
	assert.WithinDuration(t, sub.ExpiresOn, active.ExpiresOn, time.Millisecond)

	_, err = store.FindActiveSubscription(ctx, testOwner(), time.Now())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	usage, err := svc.RecordUsage(ctx, sub.ID, "seats", decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.True(t, usage.Used.Equal(decimal.NewFromInt(4)))

	info, err := svc.Remaining(ctx, sub.ID, "seats")
	require.NoError(t, err)
	assert.True(t, info.Remaining.Equal(decimal.NewFromInt(6)))

	subs, err := store.ListSubscriptions(ctx, owner)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, store.DeleteSubscription(ctx, sub.ID))
	_, err = store.FindUsage(ctx, sub.ID, "seats")
	assert.ErrorIs(t, err, subscription.ErrUsageNotFound)
	_, err = store.GetSubscription(ctx, sub.ID)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	assert.ErrorIs(t, store.DeleteSubscription(ctx, sub.ID), subscription.ErrSubscriptionNotFound)

	orphan := &subscription.UsageRecord{ID: uuid.New(), SubscriptionID: uuid.New(), Code: "seats", Used: decimal.Zero}
	assert.ErrorIs(t, store.SaveUsage(ctx, orphan), subscription.ErrSubscriptionNotFound)
}

func TestStore_ListRenewalCandidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan := testPlan(t)
	require.NoError(t, store.SavePlan(ctx, plan))

	now := time.Now().UTC().Truncate(time.Microsecond)
	row := func(owner subscription.Owner, active, recurring bool, expires time.Time) *subscription.PlanSubscription {
		return &subscription.PlanSubscription{
			ID:                uuid.New(),
			PlanID:            plan.ID,
			Owner:             owner,
			Active:            active,
			ChargingPrice:     plan.Price.Amount,
			ChargingCurrency:  plan.Price.Currency,
			IsRecurring:       recurring,
			RecurringEachDays: 30,
			StartsOn:          expires.AddDate(0, 0, -30),
			ExpiresOn:         expires,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}

	lapsed, unpaid, current, oneOff := testOwner(), testOwner(), testOwner(), testOwner()
	require.NoError(t, store.SaveSubscription(ctx, row(lapsed, true, true, now.Add(-time.Hour))))
	require.NoError(t, store.SaveSubscription(ctx, row(unpaid, false, true, now.AddDate(0, 0, 30))))
	require.NoError(t, store.SaveSubscription(ctx, row(current, true, true, now.AddDate(0, 0, 5))))
	require.NoError(t, store.SaveSubscription(ctx, row(oneOff, true, false, now.Add(-time.Hour))))

	owners, err := store.ListRenewalCandidates(ctx, now)
	require.NoError(t, err)
	assert.Contains(t, owners, lapsed)
	assert.Contains(t, owners, unpaid)
	assert.NotContains(t, owners, current)
	assert.NotContains(t, owners, oneOff)
}

func TestLocker_SerializesKey(t *testing.T) {
	store := newTestStore(t)
	locker := pgstore.NewLocker(store.Pool())
	key := "team:" + uuid.NewString()

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(20 * time.Millisecond)
			inside.Add(-1)
			unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.False(t, overlap.Load())
}
