// Package pg содержит инфраструктуру PostgreSQL: пул pgxpool, транзакции через
// context, встроенные миграции golang-migrate и проверки здоровья.
//
//	pool, err := pg.Connect(ctx, dsn, pg.DefaultPoolOptions(), pg.DefaultConnectRetry(), log)
//	_, err = pg.Migrator{Pool: pool, FS: migrationsFS, Dir: "migrations", Log: log}.Up()
//	tx := pg.NewTxRunner(pool)
package pg
