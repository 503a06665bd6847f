package subscription_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planskit/pkg/logger"
	"github.com/dmitrymomot/planskit/pkg/subscription"
)

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestService_Logging(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithLevel(slog.LevelInfo),
	)

	charger := &mockCharger{}
	charger.On("Charge", mock.Anything, mock.Anything).Return(nil, errDeclined).Once()
	f := newFixture(t, subscription.WithCharger("card", charger), subscription.WithLogger(log))

	ctx := withCard(context.Background())
	sub, err := f.svc.Subscribe(ctx, f.owner, "basic", 30)
	require.NoError(t, err)

	// Refusals stay below info.
	_, err = f.svc.Cancel(ctx, f.owner)
	require.ErrorIs(t, err, subscription.ErrNoActiveSubscription)

	entries := logEntries(t, buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "subscription charge declined", entry["msg"])
	assert.Equal(t, "card", entry["payment_method"])
	assert.Equal(t, f.owner.Key(), entry["subscriber"])
	assert.Equal(t, sub.ID.String(), entry["subscription_id"])
	assert.Contains(t, entry["error"], "card_declined")
}
