package redis

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Connect parses cfg.ConnectionURL and returns a client that answered PING.
// Attempts back off exponentially and stop at ConnectTimeout.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrMissingURL
	}
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	if cfg.RetryInterval > 0 {
		b.InitialInterval = cfg.RetryInterval
	}
	b.MaxElapsedTime = 0
	retries := max(cfg.RetryAttempts-1, 0)

	var client *redis.Client
	err = backoff.Retry(func() error {
		c := redis.NewClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return err
		}
		client = c
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
	if err != nil {
		return nil, errors.Join(ErrNotReady, err)
	}
	return client, nil
}

// Ping checks a live client. Failures wrap ErrUnreachable so callers can
// tell a lost connection apart from a command error.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrUnreachable, err)
	}
	return nil
}
