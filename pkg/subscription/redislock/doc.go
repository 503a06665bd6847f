// Package redislock provides a Redis-backed subscription.Locker.
//
// Each lock is a key set with SET NX PX and a random token; release runs a
// Lua script that deletes the key only while it still holds that token, so a
// holder whose TTL lapsed cannot free a lock someone else now owns.
// Acquisition polls with exponential backoff until the context is done.
//
//	locker, err := redislock.Open(ctx, redisCfg, redislock.WithTTL(time.Minute))
//	if err != nil {
//		return err
//	}
//	svc := subscription.NewService(repo, subscription.WithLocker(locker))
package redislock
