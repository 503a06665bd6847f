package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/planskit/pkg/pg"
	"github.com/dmitrymomot/planskit/pkg/subscription"
)

const subscriptionColumns = `id, plan_id, owner_type, owner_id, payment_method, active,
	charging_price::text, charging_currency, is_recurring, recurring_each_days,
	starts_on, expires_on, cancelled_on, created_at, updated_at`

func (s *Store) FindActiveSubscription(ctx context.Context, owner subscription.Owner, now time.Time) (*subscription.PlanSubscription, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+`
		FROM plan_subscriptions
		WHERE owner_type = $1 AND owner_id = $2 AND active
			AND starts_on <= $3 AND expires_on > $3
		ORDER BY starts_on DESC LIMIT 1`, owner.Type, owner.ID, now)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("find active subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, owner subscription.Owner) ([]subscription.PlanSubscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+subscriptionColumns+`
		FROM plan_subscriptions
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY starts_on DESC`, owner.Type, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]subscription.PlanSubscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*subscription.PlanSubscription, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM plan_subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub *subscription.PlanSubscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plan_subscriptions (id, plan_id, owner_type, owner_id, payment_method, active,
			charging_price, charging_currency, is_recurring, recurring_each_days,
			starts_on, expires_on, cancelled_on, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			payment_method = EXCLUDED.payment_method,
			active = EXCLUDED.active,
			charging_price = EXCLUDED.charging_price,
			charging_currency = EXCLUDED.charging_currency,
			is_recurring = EXCLUDED.is_recurring,
			recurring_each_days = EXCLUDED.recurring_each_days,
			starts_on = EXCLUDED.starts_on,
			expires_on = EXCLUDED.expires_on,
			cancelled_on = EXCLUDED.cancelled_on,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.PlanID, sub.Owner.Type, sub.Owner.ID, sub.PaymentMethod, sub.Active,
		sub.ChargingPrice.String(), nullable(sub.ChargingCurrency), sub.IsRecurring, sub.RecurringEachDays,
		sub.StartsOn, sub.ExpiresOn, sub.CancelledOn, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return subscription.ErrPlanNotFound
		}
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes the row; usage rows go with it through ON DELETE CASCADE.
func (s *Store) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plan_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) ListRenewalCandidates(ctx context.Context, asOf time.Time) ([]subscription.Owner, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner_type, owner_id FROM (
			SELECT DISTINCT ON (owner_type, owner_id)
				owner_type, owner_id, active, is_recurring, expires_on, cancelled_on
			FROM plan_subscriptions
			ORDER BY owner_type, owner_id, starts_on DESC
		) latest
		WHERE cancelled_on IS NULL
			AND (NOT active OR (is_recurring AND expires_on <= $1))
		ORDER BY owner_type || ':' || owner_id`, asOf)
	if err != nil {
		return nil, fmt.Errorf("list renewal candidates: %w", err)
	}

	owners, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (subscription.Owner, error) {
		var o subscription.Owner
		err := row.Scan(&o.Type, &o.ID)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan renewal candidates: %w", err)
	}
	return owners, nil
}

func scanSubscription(row pgx.Row) (*subscription.PlanSubscription, error) {
	var (
		sub      subscription.PlanSubscription
		price    string
		currency *string
	)
	err := row.Scan(&sub.ID, &sub.PlanID, &sub.Owner.Type, &sub.Owner.ID, &sub.PaymentMethod, &sub.Active,
		&price, &currency, &sub.IsRecurring, &sub.RecurringEachDays,
		&sub.StartsOn, &sub.ExpiresOn, &sub.CancelledOn, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sub.ChargingPrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("decode charging price: %w", err)
	}
	sub.ChargingCurrency = deref(currency)
	return &sub, nil
}
