// Package mongo opens MongoDB clients from environment configuration.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.ConnectDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
// Connect pings the deployment before returning and retries with exponential
// backoff, so a process started alongside its database waits for it instead
// of failing on the first attempt. Errors wrap ErrFailedToConnectToMongo.
package mongo
