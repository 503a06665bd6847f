// Package redis connects to Redis with retry and exposes a health probe.
//
//	import "github.com/dmitrymomot/planskit/pkg/redis"
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// The client is what pkg/subscription/redislock uses to serialize lifecycle
// operations across processes.
package redis
