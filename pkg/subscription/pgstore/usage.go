package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/planskit/pkg/pg"
	"github.com/dmitrymomot/planskit/pkg/subscription"
)

func (s *Store) FindUsage(ctx context.Context, subscriptionID uuid.UUID, code string) (*subscription.UsageRecord, error) {
	var (
		u    subscription.UsageRecord
		used string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, subscription_id, code, used::text, created_at, updated_at
		FROM plan_subscription_usages
		WHERE subscription_id = $1 AND code = $2`, subscriptionID, code).
		Scan(&u.ID, &u.SubscriptionID, &u.Code, &used, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrUsageNotFound
		}
		return nil, fmt.Errorf("find usage: %w", err)
	}
	if u.Used, err = decimal.NewFromString(used); err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	return &u, nil
}

// SaveUsage upserts on (subscription_id, code).
func (s *Store) SaveUsage(ctx context.Context, usage *subscription.UsageRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plan_subscription_usages (id, subscription_id, code, used, created_at, updated_at)
		VALUES ($1,$2,$3,$4::numeric,$5,$6)
		ON CONFLICT (subscription_id, code) DO UPDATE SET
			used = EXCLUDED.used,
			updated_at = EXCLUDED.updated_at`,
		usage.ID, usage.SubscriptionID, usage.Code, usage.Used.String(), usage.CreatedAt, usage.UpdatedAt)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return subscription.ErrSubscriptionNotFound
		}
		return fmt.Errorf("save usage: %w", err)
	}
	return nil
}
