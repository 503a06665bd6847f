package mongo

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Connect returns a client that answered a ping, retrying with
// exponential backoff.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	opts := options.Client().
		ApplyURI(cfg.ConnectionURL).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetRetryWrites(cfg.RetryWrites).
		SetRetryReads(cfg.RetryReads)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxConnIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.MaxConnIdleTime)
	}

	b := backoff.NewExponentialBackOff()
	if cfg.RetryInterval > 0 {
		b.InitialInterval = cfg.RetryInterval
	}
	b.MaxElapsedTime = 0
	retries := max(cfg.RetryAttempts-1, 0)

	var client *mongo.Client
	err := backoff.Retry(func() error {
		c, err := mongo.Connect(opts)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := c.Ping(ctx, nil); err != nil {
			_ = c.Disconnect(context.WithoutCancel(ctx))
			return err
		}
		client = c
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
	if err != nil {
		return nil, errors.Join(ErrFailedToConnectToMongo, err)
	}
	return client, nil
}

// ConnectDatabase connects and returns cfg.Database on the new client.
func ConnectDatabase(ctx context.Context, cfg Config) (*mongo.Database, error) {
	client, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.Database(cfg.Database), nil
}

// Ping asks the primary to respond, so a client stuck on secondaries
// reports unhealthy.
func Ping(ctx context.Context, client *mongo.Client) error {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return errors.Join(ErrUnreachable, err)
	}
	return nil
}
