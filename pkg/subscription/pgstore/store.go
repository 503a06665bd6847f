package pgstore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/planskit/pkg/pg"
	"github.com/dmitrymomot/planskit/pkg/subscription"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the goose files.
const MigrationsDir = "migrations"

// Migrations returns the embedded schema for callers that run goose themselves.
func Migrations() embed.FS {
	return migrations
}

var _ subscription.Repository = (*Store)(nil)

// Store is a subscription.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &Store{pool: pool}
}

// Open connects with cfg, applies the embedded migrations and returns the store.
func Open(ctx context.Context, cfg pg.Config, log *slog.Logger) (*Store, error) {
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx, pool, migrations, MigrationsDir, cfg, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate subscription schema: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close closes the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return pg.Ping(ctx, s.pool)
}
