// Package pg opens PostgreSQL connection pools and applies embedded goose
// migrations.
//
// Connect parses a Config (usually loaded with pkg/config), opens a pgx pool
// and pings it, retrying with exponential backoff. Migrate runs goose against
// an fs.FS, which lets store packages ship their schema with go:embed:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations, "migrations", cfg, log); err != nil {
//		return err
//	}
//
// IsNotFoundError, IsDuplicateKeyError, IsForeignKeyViolationError and
// IsCheckViolationError classify driver errors without importing pgconn at
// call sites.
package pg
