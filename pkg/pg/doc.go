// Package pg connects to PostgreSQL through a pgx connection pool and
// applies goose migrations embedded by the packages that own the tables.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	err = pg.Migrate(ctx, pool, cfg, templates.Migrations, "migrations", log)
//
// Error helpers classify driver errors: IsNotFoundError for empty result
// sets and IsDuplicateKeyError for unique constraint violations.
package pg
