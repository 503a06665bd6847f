package subscription

import (
	"context"
	"errors"
	"testing"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransactions struct {
	txn *paddle.Transaction
	err error
	req *paddle.CreateTransactionRequest
}

func (f *fakeTransactions) CreateTransaction(_ context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
	f.req = req
	return f.txn, f.err
}

func paddleRequest() ChargeRequest {
	return ChargeRequest{
		Owner:          NewOwner("team", "9"),
		SubscriptionID: uuid.New(),
		PlanID:         "pro",
		PriceRef:       "pri_01",
		Amount:         Money{Amount: decimalFromInt(25), Currency: "EUR"},
		Profile:        PaymentProfile{Method: "paddle", CustomerRef: "ctm_01"},
	}
}

func TestPaddleCharger_Charge(t *testing.T) {
	t.Parallel()

	t.Run("creates a catalog transaction", func(t *testing.T) {
		t.Parallel()
		fake := &fakeTransactions{txn: &paddle.Transaction{ID: "txn_01"}}
		req := paddleRequest()

		receipt, err := newPaddleCharger(fake).Charge(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "txn_01", receipt.Reference)
		assert.Equal(t, req.Amount, receipt.Amount)

		require.NotNil(t, fake.req)
		require.NotNil(t, fake.req.CustomerID)
		assert.Equal(t, "ctm_01", *fake.req.CustomerID)
		assert.Len(t, fake.req.Items, 1)
		assert.Equal(t, req.SubscriptionID.String(), fake.req.CustomData["subscription_id"])
	})

	t.Run("requires references", func(t *testing.T) {
		t.Parallel()
		fake := &fakeTransactions{}

		req := paddleRequest()
		req.PriceRef = ""
		_, err := newPaddleCharger(fake).Charge(context.Background(), req)
		assert.ErrorIs(t, err, ErrMissingPriceID)

		req = paddleRequest()
		req.Profile.CustomerRef = ""
		_, err = newPaddleCharger(fake).Charge(context.Background(), req)
		assert.ErrorIs(t, err, ErrMissingProviderCustomerID)
		assert.Nil(t, fake.req)
	})

	t.Run("api failure", func(t *testing.T) {
		t.Parallel()
		outage := errors.New("503")
		_, err := newPaddleCharger(&fakeTransactions{err: outage}).Charge(context.Background(), paddleRequest())
		assert.ErrorIs(t, err, outage)
		assert.NotErrorIs(t, err, ErrChargeDeclined)
	})
}

func TestNewPaddleCharger(t *testing.T) {
	t.Parallel()

	_, err := NewPaddleCharger(PaddleConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewPaddleCharger(PaddleConfig{APIKey: "key", Environment: "staging"})
	assert.ErrorIs(t, err, ErrInvalidProviderEnvironment)

	for _, env := range []string{"sandbox", "production", ""} {
		charger, err := NewPaddleCharger(PaddleConfig{APIKey: "key", Environment: env})
		require.NoError(t, err, env)
		assert.NotNil(t, charger)
	}
}
