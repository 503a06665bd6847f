package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planskit/pkg/clock"
	"github.com/dmitrymomot/planskit/pkg/subscription"
)

var t0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func money(t *testing.T, amount, code string) subscription.Money {
	t.Helper()
	m, err := subscription.NewMoney(amount, code)
	require.NoError(t, err)
	return m
}

func testPlans(t *testing.T) []subscription.Plan {
	t.Helper()
	return []subscription.Plan{
		{
			ID:              "basic",
			Name:            "Basic",
			Price:           money(t, "10.00", "USD"),
			DurationDays:    30,
			ProviderPriceID: "price_basic",
			Features: []subscription.Feature{
				{ID: uuid.New(), Code: "seats", Kind: subscription.FeatureKindLimit, Limit: 10},
				{ID: uuid.New(), Code: "sso", Kind: subscription.FeatureKindFeature},
				{ID: uuid.New(), Code: "storage", Kind: subscription.FeatureKindLimit},
			},
		},
		{
			ID:              "pro",
			Name:            "Pro",
			Price:           money(t, "25.00", "USD"),
			DurationDays:    30,
			ProviderPriceID: "price_pro",
			Features: []subscription.Feature{
				{ID: uuid.New(), Code: "seats", Kind: subscription.FeatureKindLimit, Limit: 50},
				{ID: uuid.New(), Code: "sso", Kind: subscription.FeatureKindFeature},
				{ID: uuid.New(), Code: "storage", Kind: subscription.FeatureKindLimit},
				{ID: uuid.New(), Code: "api", Kind: subscription.FeatureKindFeature},
			},
		},
		{
			ID:           "free",
			Name:         "Free",
			DurationDays: 14,
			Features: []subscription.Feature{
				{ID: uuid.New(), Code: "seats", Kind: subscription.FeatureKindLimit, Limit: 1},
			},
		},
	}
}

// recordingSink keeps every published event in order.
type recordingSink struct {
	mu     sync.Mutex
	events []subscription.Event
}

func (s *recordingSink) Publish(_ context.Context, event subscription.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, e := range s.events {
		names[i] = e.EventName()
	}
	return names
}

func (s *recordingSink) all() []subscription.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]subscription.Event(nil), s.events...)
}

func (s *recordingSink) last() subscription.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type mockCharger struct {
	mock.Mock
}

func (m *mockCharger) Charge(ctx context.Context, req subscription.ChargeRequest) (*subscription.ChargeReceipt, error) {
	args := m.Called(ctx, req)
	receipt, _ := args.Get(0).(*subscription.ChargeReceipt)
	return receipt, args.Error(1)
}

var errDeclined = errors.Join(subscription.ErrChargeDeclined, errors.New("card_declined"))

// flakyRepository injects infrastructure faults into a MemoryRepository.
type flakyRepository struct {
	*subscription.MemoryRepository

	mu      sync.Mutex
	saveErr error
	listErr error

	// saveErr kicks in once budget more saves have gone through.
	budget    int
	budgetErr error
}

func (r *flakyRepository) failSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

func (r *flakyRepository) failSavesAfter(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budget = n
	r.budgetErr = err
}

func (r *flakyRepository) failLists(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}

func (r *flakyRepository) SaveSubscription(ctx context.Context, sub *subscription.PlanSubscription) error {
	r.mu.Lock()
	err := r.saveErr
	if err == nil && r.budgetErr != nil {
		if r.budget == 0 {
			err = r.budgetErr
		} else {
			r.budget--
		}
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryRepository.SaveSubscription(ctx, sub)
}

func (r *flakyRepository) ListSubscriptions(ctx context.Context, owner subscription.Owner) ([]subscription.PlanSubscription, error) {
	r.mu.Lock()
	err := r.listErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.MemoryRepository.ListSubscriptions(ctx, owner)
}

type fixture struct {
	svc   subscription.Service
	repo  *subscription.MemoryRepository
	clock *clock.Mock
	sink  *recordingSink
	owner subscription.Owner
}

func newFixture(t *testing.T, opts ...subscription.ServiceOption) *fixture {
	t.Helper()

	f := &fixture{
		repo:  subscription.NewMemoryRepository(testPlans(t)...),
		clock: clock.NewMock(t0),
		sink:  &recordingSink{},
		owner: subscription.NewOwner("team", uuid.NewString()),
	}
	base := []subscription.ServiceOption{
		subscription.WithClock(f.clock),
		subscription.WithEventSink(f.sink),
	}
	f.svc = subscription.NewService(f.repo, append(base, opts...)...)
	return f
}

// withCard returns a context carrying a card payment profile.
func withCard(ctx context.Context) context.Context {
	return subscription.SetPaymentProfileToContext(ctx, subscription.PaymentProfile{
		Method:           "card",
		CustomerRef:      "cus_123",
		PaymentMethodRef: "pm_123",
	})
}

func receipt(amount subscription.Money) *subscription.ChargeReceipt {
	return &subscription.ChargeReceipt{Reference: "pi_" + uuid.NewString(), Amount: amount, ChargedAt: t0}
}

func decimalOf(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
