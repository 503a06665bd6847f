// Package pgstore stores plans, subscriptions and usage in PostgreSQL.
//
// Store implements subscription.Repository on top of a pgx pool; Locker
// implements subscription.Locker with session advisory locks, so several
// processes can share one database safely:
//
//	store, err := pgstore.Open(ctx, pgCfg, log)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	svc := subscription.NewService(store,
//		subscription.WithLocker(pgstore.NewLocker(store.Pool())),
//	)
//
// Open applies the embedded goose migrations. Prices and usage are kept in
// NUMERIC columns and exchanged as text so no precision is lost on the way
// through the driver.
package pgstore
