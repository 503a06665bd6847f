// Package mongostore stores plans, subscriptions and usage in MongoDB.
//
// Plans embed their features; subscriptions and usage records live in their
// own collections. Amounts are stored as Decimal128.
//
//	store, err := mongostore.Open(ctx, mongoCfg)
//	if err != nil {
//		return err
//	}
//	defer store.Close(context.Background())
//
//	svc := subscription.NewService(store, subscription.WithLocker(locker))
//
// Deleting a subscription removes its usage records in a second step without
// a transaction, so standalone servers work too. Pair the store with a
// distributed Locker such as redislock when more than one process runs
// lifecycle operations.
package mongostore
