package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planskit/pkg/clock"
	"github.com/dmitrymomot/planskit/pkg/subscription"
)

func TestService_Renew(t *testing.T) {
	t.Parallel()

	t.Run("no subscriptions", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.svc.Renew(context.Background(), f.owner)
		assert.ErrorIs(t, err, subscription.ErrNoSubscriptions)
	})

	t.Run("still active", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		subscribed(t, f, "basic")
		_, err := f.svc.Renew(context.Background(), f.owner)
		assert.ErrorIs(t, err, subscription.ErrAlreadyActive)
	})

	t.Run("expired recurring starts a fresh period", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		sub, err := f.svc.Subscribe(ctx, f.owner, "basic", 7)
		require.NoError(t, err)
		now := sub.ExpiresOn.Add(3 * clock.Day)
		f.clock.Set(now)
		f.sink.reset()

		renewed, err := f.svc.Renew(ctx, f.owner)
		require.NoError(t, err)
		assert.NotEqual(t, sub.ID, renewed.ID)
		assert.Equal(t, "basic", renewed.PlanID)
		assert.True(t, renewed.IsRecurring)
		assert.Equal(t, 7, renewed.RecurringEachDays)
		assert.Equal(t, now.Add(-clock.BackdateTick), renewed.StartsOn)
		assert.Equal(t, now.AddDate(0, 0, 7), renewed.ExpiresOn)
		assert.Equal(t, []string{subscription.EventNewSubscription}, f.sink.names())

		state, err := f.svc.State(ctx, f.owner)
		require.NoError(t, err)
		assert.Equal(t, subscription.SubscriberActive, state)
	})

	t.Run("non recurring", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		sub, err := f.svc.Subscribe(ctx, f.owner, "basic", 30, subscription.WithRecurring(false))
		require.NoError(t, err)
		f.clock.Set(sub.ExpiresOn)

		_, err = f.svc.Renew(ctx, f.owner)
		assert.ErrorIs(t, err, subscription.ErrNotRecurring)
	})

	t.Run("retired plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		sub := subscribed(t, f, "basic")
		require.NoError(t, f.repo.DeletePlan(ctx, "basic", t0))
		f.clock.Set(sub.ExpiresOn)

		_, err := f.svc.Renew(ctx, f.owner)
		assert.ErrorIs(t, err, subscription.ErrPlanUnavailable)
	})

	t.Run("keeps the payment method", func(t *testing.T) {
		t.Parallel()
		charger := &mockCharger{}
		f := newFixture(t, subscription.WithCharger("card", charger))
		charger.On("Charge", mock.Anything, mock.Anything).Return(receipt(money(t, "10", "USD")), nil).Twice()

		sub, err := f.svc.Subscribe(withCard(context.Background()), f.owner, "basic", 30)
		require.NoError(t, err)
		f.clock.Set(sub.ExpiresOn)

		renewed, err := f.svc.Renew(withCard(context.Background()), f.owner)
		require.NoError(t, err)
		assert.Equal(t, "card", renewed.PaymentMethod)
		assert.True(t, renewed.Active)
		charger.AssertExpectations(t)
	})
}

// stubService overrides Renew; every other method panics through the nil embed.
type stubService struct {
	subscription.Service
	renew func(ctx context.Context, owner subscription.Owner) (*subscription.PlanSubscription, error)
}

func (s stubService) Renew(ctx context.Context, owner subscription.Owner) (*subscription.PlanSubscription, error) {
	return s.renew(ctx, owner)
}

func TestRenewer_RunOnce(t *testing.T) {
	t.Parallel()

	charger := &mockCharger{}
	f := newFixture(t, subscription.WithCharger("card", charger))
	ctx := context.Background()

	lapsed := subscription.NewOwner("team", "lapsed")
	current := subscription.NewOwner("team", "current")
	oneOff := subscription.NewOwner("team", "one-off")
	cancelled := subscription.NewOwner("team", "cancelled")
	owing := subscription.NewOwner("team", "owing")

	_, err := f.svc.Subscribe(ctx, lapsed, "basic", 10)
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, oneOff, "basic", 10, subscription.WithRecurring(false))
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, cancelled, "basic", 10)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, cancelled)
	require.NoError(t, err)

	charger.On("Charge", mock.Anything, mock.Anything).Return(nil, errDeclined).Once()
	_, err = f.svc.Subscribe(withCard(ctx), owing, "basic", 10)
	require.NoError(t, err)

	f.clock.Advance(20 * clock.Day)
	_, err = f.svc.Subscribe(ctx, current, "pro", 30)
	require.NoError(t, err)

	// The sweep context carries the card profile used for the owed charge.
	unreachable := errors.New("provider unreachable")
	charger.On("Charge", mock.Anything, mock.Anything).Return(nil, unreachable).Once()

	owners, err := f.repo.ListRenewalCandidates(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []subscription.Owner{lapsed, owing}, owners)

	renewer := subscription.NewRenewer(f.svc, f.repo, subscription.WithRenewerClock(f.clock))
	report, err := renewer.RunOnce(withCard(ctx))
	assert.ErrorIs(t, err, unreachable)
	assert.Equal(t, subscription.RenewalReport{Candidates: 2, Renewed: 1, Failed: 1}, report)

	active, err := f.svc.ActiveSubscription(ctx, lapsed)
	require.NoError(t, err)
	assert.Equal(t, "basic", active.PlanID)
	charger.AssertExpectations(t)
}

func TestRenewer_CancelledChainIsNotCharged(t *testing.T) {
	t.Parallel()

	charger := &mockCharger{}
	f := newFixture(t, subscription.WithCharger("card", charger))
	ctx := withCard(context.Background())

	charger.On("Charge", mock.Anything, mock.MatchedBy(basicCharge)).
		Return(receipt(money(t, "10", "USD")), nil).Once()
	_, err := f.svc.Subscribe(ctx, f.owner, "basic", 30)
	require.NoError(t, err)
	_, err = f.svc.ExtendWith(ctx, f.owner, 30, false)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.owner)
	require.NoError(t, err)

	f.clock.Advance(31 * clock.Day)
	state, err := f.svc.State(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, subscription.SubscriberCancelled, state)

	owners, err := f.repo.ListRenewalCandidates(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, owners)

	renewer := subscription.NewRenewer(f.svc, f.repo, subscription.WithRenewerClock(f.clock))
	report, err := renewer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, subscription.RenewalReport{}, report)

	_, err = f.svc.Renew(ctx, f.owner)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionCancelled)
	charger.AssertNumberOfCalls(t, "Charge", 1)
}

func TestRenewer_CountsRefusalsAsSkipped(t *testing.T) {
	t.Parallel()

	repo := subscription.NewMemoryRepository(testPlans(t)...)
	mockClock := clock.NewMock(t0)
	svc := subscription.NewService(repo, subscription.WithClock(mockClock))

	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.Subscribe(context.Background(), subscription.NewOwner("user", id), "basic", 1)
		require.NoError(t, err)
	}
	mockClock.Advance(2 * clock.Day)

	stub := stubService{renew: func(_ context.Context, owner subscription.Owner) (*subscription.PlanSubscription, error) {
		if owner.ID == "b" {
			return nil, subscription.ErrAlreadyActive
		}
		return &subscription.PlanSubscription{ID: uuid.New(), Owner: owner}, nil
	}}

	renewer := subscription.NewRenewer(stub, repo,
		subscription.WithRenewerClock(mockClock),
		subscription.WithRenewalConcurrency(1),
	)
	report, err := renewer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subscription.RenewalReport{Candidates: 3, Renewed: 2, Skipped: 1}, report)
}

func TestRenewer_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	repo := subscription.NewMemoryRepository()
	renewer := subscription.NewRenewer(subscription.NewService(repo), repo,
		subscription.WithRenewalInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := renewer.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRenewer_PanicsWithoutDependencies(t *testing.T) {
	t.Parallel()

	repo := subscription.NewMemoryRepository()
	assert.Panics(t, func() { subscription.NewRenewer(nil, repo) })
	assert.Panics(t, func() { subscription.NewRenewer(subscription.NewService(repo), nil) })
}
