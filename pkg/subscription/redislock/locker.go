package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	redispkg "github.com/dmitrymomot/planskit/pkg/redis"
	"github.com/dmitrymomot/planskit/pkg/subscription"
)

const (
	DefaultTTL       = 30 * time.Second
	DefaultPrefix    = "planskit:lock:"
	DefaultRetryWait = 25 * time.Millisecond
	DefaultMaxWait   = 500 * time.Millisecond
)

// ErrLockHeld is returned by an acquisition attempt while another holder owns the key.
var ErrLockHeld = errors.New("redislock: key is held by another process")

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ subscription.Locker = (*Locker)(nil)

// Locker serializes subscribers across processes with Redis SET NX PX.
// The TTL bounds how long a crashed holder can block others, so it must
// exceed the longest lifecycle operation, charge included.
type Locker struct {
	client    redis.UniversalClient
	ttl       time.Duration
	prefix    string
	retryWait time.Duration
	maxWait   time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets how long a lock survives without release.
func WithTTL(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithPrefix namespaces lock keys.
func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithRetry sets the initial and maximum wait between acquisition attempts.
func WithRetry(initial, maxWait time.Duration) Option {
	return func(l *Locker) {
		if initial > 0 {
			l.retryWait = initial
		}
		if maxWait >= l.retryWait {
			l.maxWait = maxWait
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *Locker {
	if client == nil {
		panic("redislock: client is required")
	}
	l := &Locker{
		client:    client,
		ttl:       DefaultTTL,
		prefix:    DefaultPrefix,
		retryWait: DefaultRetryWait,
		maxWait:   DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open connects with cfg and returns a Locker on the new client.
func Open(ctx context.Context, cfg redispkg.Config, opts ...Option) (*Locker, error) {
	client, err := redispkg.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, opts...), nil
}

// Ping reports whether Redis answers.
func (l *Locker) Ping(ctx context.Context) error {
	return redispkg.Ping(ctx, l.client)
}

// Lock retries SET NX with exponential backoff until it wins or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	attempt := func() error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("redislock: set %s: %w", redisKey, err))
		}
		if !ok {
			return ErrLockHeld
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryWait
	b.MaxInterval = l.maxWait
	b.MaxElapsedTime = 0

	if err := backoff.Retry(attempt, backoff.WithContext(b, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Join(ctxErr, err)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = releaseScript.Run(context.Background(), l.client, []string{redisKey}, token).Err()
		})
	}, nil
}
