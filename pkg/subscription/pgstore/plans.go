package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/planskit/pkg/pg"
	"github.com/dmitrymomot/planskit/pkg/subscription"
)

func (s *Store) FindPlan(ctx context.Context, id string) (*subscription.Plan, error) {
	var (
		p        subscription.Plan
		price    string
		currency *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, price::text, currency, duration_days,
			provider_price_id, deleted_at, created_at, updated_at
		FROM plans WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &price, &currency, &p.DurationDays,
			&p.ProviderPriceID, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrPlanNotFound
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}

	amount, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("decode plan price: %w", err)
	}
	p.Price = subscription.Money{Amount: amount, Currency: deref(currency)}

	rows, err := s.pool.Query(ctx, `
		SELECT id, plan_id, name, code, description, kind, "limit"
		FROM plan_features WHERE plan_id = $1 ORDER BY position, code`, id)
	if err != nil {
		return nil, fmt.Errorf("list plan features: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f    subscription.Feature
			kind string
		)
		if err := rows.Scan(&f.ID, &f.PlanID, &f.Name, &f.Code, &f.Description, &kind, &f.Limit); err != nil {
			return nil, fmt.Errorf("scan plan feature: %w", err)
		}
		f.Kind = subscription.FeatureKind(kind)
		p.Features = append(p.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list plan features: %w", err)
	}
	return &p, nil
}

// SavePlan upserts the plan and replaces its feature set in one transaction.
func (s *Store) SavePlan(ctx context.Context, plan *subscription.Plan) error {
	now := time.Now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO plans (id, name, description, price, currency, duration_days,
				provider_price_id, deleted_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				price = EXCLUDED.price,
				currency = EXCLUDED.currency,
				duration_days = EXCLUDED.duration_days,
				provider_price_id = EXCLUDED.provider_price_id,
				deleted_at = EXCLUDED.deleted_at,
				updated_at = EXCLUDED.updated_at`,
			plan.ID, plan.Name, plan.Description, plan.Price.Amount.String(), nullable(plan.Price.Currency),
			plan.Duration(), plan.ProviderPriceID, plan.DeletedAt, plan.CreatedAt, plan.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert plan: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM plan_features WHERE plan_id = $1`, plan.ID); err != nil {
			return fmt.Errorf("clear plan features: %w", err)
		}

		batch := &pgx.Batch{}
		for i, f := range plan.Features {
			if f.ID == uuid.Nil {
				f.ID = uuid.New()
				plan.Features[i].ID = f.ID
			}
			plan.Features[i].PlanID = plan.ID
			batch.Queue(`
				INSERT INTO plan_features (id, plan_id, position, name, code, description, kind, "limit")
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				f.ID, plan.ID, i, f.Name, f.Code, f.Description, string(f.Kind), f.Limit)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert plan features: %w", err)
		}
		return nil
	})
	if err != nil {
		if pg.IsCheckViolationError(err) || pg.IsDuplicateKeyError(err) {
			return errors.Join(subscription.ErrInvalidPlanConfiguration, err)
		}
		return err
	}
	return nil
}

func (s *Store) DeletePlan(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE plans SET deleted_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrPlanNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
