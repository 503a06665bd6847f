package subscription_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planskit/pkg/subscription"
	"github.com/dmitrymomot/planskit/pkg/webhook"
)

type delivery struct {
	header http.Header
	body   []byte
}

type webhookReceiver struct {
	mu         sync.Mutex
	deliveries []delivery
	failFirst  atomic.Int32
}

func newWebhookReceiver(t *testing.T) (*webhookReceiver, *httptest.Server) {
	t.Helper()
	rcv := &webhookReceiver{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rcv.failFirst.Add(-1) >= 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		rcv.mu.Lock()
		rcv.deliveries = append(rcv.deliveries, delivery{header: r.Header.Clone(), body: body})
		rcv.mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return rcv, srv
}

func (r *webhookReceiver) received() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.deliveries...)
}

func TestWebhookSink_Publish(t *testing.T) {
	t.Parallel()

	rcv, srv := newWebhookReceiver(t)
	f := newFixture(t)
	sub := subscribed(t, f, "basic")

	sender := webhook.NewSender(webhook.WithSecret("whsec"), webhook.WithRetry(0, time.Millisecond))
	sink := subscription.NewWebhookSink(sender, srv.URL, nil)
	require.NoError(t, sink.Publish(context.Background(), f.sink.last()))

	got := rcv.received()
	require.Len(t, got, 1)
	assert.Equal(t, subscription.EventNewSubscription, got[0].header.Get(webhook.HeaderEvent))

	sig, err := webhook.ParseSignature(got[0].header)
	require.NoError(t, err)
	require.NoError(t, webhook.Verify("whsec", got[0].body, sig, time.Now(), time.Minute))

	var env struct {
		Type           string    `json:"type"`
		OccurredAt     time.Time `json:"occurred_at"`
		SubscriberType string    `json:"subscriber_type"`
		SubscriberID   string    `json:"subscriber_id"`
		SubscriptionID string    `json:"subscription_id"`
		Data           struct {
			Subscription struct {
				PlanID string
				Active bool
			}
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got[0].body, &env))
	assert.Equal(t, subscription.EventNewSubscription, env.Type)
	assert.True(t, env.OccurredAt.Equal(t0))
	assert.Equal(t, f.owner.Type, env.SubscriberType)
	assert.Equal(t, f.owner.ID, env.SubscriberID)
	assert.Equal(t, sub.ID.String(), env.SubscriptionID)
	assert.Equal(t, "basic", env.Data.Subscription.PlanID)
	assert.True(t, env.Data.Subscription.Active)
}

func TestWebhookSink_PublishFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t)
	subscribed(t, f, "basic")

	sink := subscription.NewWebhookSink(webhook.NewSender(), srv.URL, nil)
	err := sink.Publish(context.Background(), f.sink.last())
	assert.ErrorIs(t, err, webhook.ErrPermanentFailure)
}

func TestNewWebhookEnvelope_ChargeFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sub := subscribed(t, f, "basic")

	env := subscription.NewWebhookEnvelope(subscription.ChargeFailed{
		EventMeta: subscription.EventMeta{Subscription: *sub, OccurredAt: t0},
		Amount:    money(t, "10", "USD"),
		Declined:  true,
		Err:       errDeclined,
	})
	assert.Equal(t, subscription.EventChargeFailed, env.Type)
	assert.Equal(t, t0, env.OccurredAt)
	assert.Contains(t, env.Error, "card_declined")

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"Declined":true`)
	assert.NotContains(t, string(raw), `"Err"`)
}

func TestWebhookSink_Forward(t *testing.T) {
	t.Parallel()

	rcv, srv := newWebhookReceiver(t)
	rcv.failFirst.Store(1)

	hub := subscription.NewEventHub(8)
	events := hub.Listen(context.Background())
	f := newFixture(t, subscription.WithEventSink(hub))

	sink := subscription.NewWebhookSink(webhook.NewSender(webhook.WithRetry(0, time.Millisecond)), srv.URL, nil)
	done := make(chan error, 1)
	go func() { done <- sink.Forward(context.Background(), events) }()

	ctx := context.Background()
	_, err := f.svc.Subscribe(ctx, f.owner, "basic", 30)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.owner)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(rcv.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, subscription.EventCancelSubscription, rcv.received()[0].header.Get(webhook.HeaderEvent),
		"the failed first delivery is skipped")

	require.NoError(t, hub.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("forward did not stop after the hub closed")
	}
}

func TestWebhookSink_ForwardStopsWithContext(t *testing.T) {
	t.Parallel()

	sink := subscription.NewWebhookSink(webhook.NewSender(), "https://example.com/hooks", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Forward(ctx, make(chan subscription.Event)), context.Canceled)
}

func TestNewWebhookSinkFromConfig(t *testing.T) {
	t.Parallel()

	disabled := subscription.NewWebhookSinkFromConfig(webhook.Config{}, nil)
	assert.Nil(t, disabled)
	assert.NoError(t, disabled.Forward(context.Background(), make(chan subscription.Event)))
	assert.NotNil(t, subscription.NewWebhookSinkFromConfig(webhook.Config{URL: "https://example.com/hooks"}, nil))
	assert.Panics(t, func() { subscription.NewWebhookSink(nil, "https://example.com", nil) })
}

func TestWebhookSink_DisabledSinkIsSafeToWire(t *testing.T) {
	t.Parallel()

	disabled := subscription.NewWebhookSinkFromConfig(webhook.Config{}, nil)
	recorder := &recordingSink{}
	f := newFixture(t, subscription.WithEventSink(subscription.MultiSink{disabled, recorder}))
	subscribed(t, f, "basic")
	assert.Equal(t, []string{subscription.EventNewSubscription}, recorder.names())

	g := newFixture(t, subscription.WithEventSink(disabled))
	assert.NotPanics(t, func() { subscribed(t, g, "basic") })
}
