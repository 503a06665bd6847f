package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle charger.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

type transactionCreator interface {
	CreateTransaction(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error)
}

// PaddleCharger bills the plan's catalog price as a Paddle transaction for the
// subscriber's Paddle customer. Paddle collects it with the customer's saved method.
type PaddleCharger struct {
	transactions transactionCreator
	now          func() time.Time
}

// NewPaddleCharger creates a Paddle charger for the configured environment.
func NewPaddleCharger(config PaddleConfig) (*PaddleCharger, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, errors.Join(ErrInvalidProviderEnvironment, fmt.Errorf("paddle environment %q", config.Environment))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return newPaddleCharger(client.TransactionsClient), nil
}

func newPaddleCharger(transactions transactionCreator) *PaddleCharger {
	return &PaddleCharger{transactions: transactions, now: func() time.Time { return time.Now().UTC() }}
}

func (c *PaddleCharger) Charge(ctx context.Context, req ChargeRequest) (*ChargeReceipt, error) {
	if req.PriceRef == "" {
		return nil, ErrMissingPriceID
	}
	if req.Profile.CustomerRef == "" {
		return nil, ErrMissingProviderCustomerID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceRef,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(req.Profile.CustomerRef),
		CustomData: paddle.CustomData{
			"subscription_id": req.SubscriptionID.String(),
			"plan_id":         req.PlanID,
			"owner_type":      req.Owner.Type,
			"owner_id":        req.Owner.ID,
		},
	}

	transaction, err := c.transactions.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}

	return &ChargeReceipt{
		Reference: transaction.ID,
		Amount:    req.Amount,
		ChargedAt: c.now(),
	}, nil
}
