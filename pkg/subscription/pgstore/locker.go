package pgstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/planskit/pkg/subscription"
)

var _ subscription.Locker = (*Locker)(nil)

// Locker serializes subscribers across processes with PostgreSQL session
// advisory locks. Each held lock pins one pooled connection until released,
// so size the pool for the expected number of concurrent operations.
type Locker struct {
	pool *pgxpool.Pool
}

func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection for %s: %w", key, err)
	}

	id := advisoryKey(key)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, id); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock for %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be done.
			if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, id); err != nil {
				// A connection that failed to unlock must not return to the pool still holding the lock.
				_ = conn.Conn().Close(context.Background())
			}
			conn.Release()
		})
	}, nil
}

// advisoryKey maps a lock key onto the bigint space of pg_advisory_lock.
func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("planskit:" + key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
