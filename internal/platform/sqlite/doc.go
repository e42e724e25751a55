// Package sqlite открывает встроенную SQLite базу (modernc.org/sqlite, без cgo),
// применяет встроенные миграции golang-migrate и выполняет код в транзакциях.
//
//	db, err := sqlite.Open(ctx, "data/authflow.db", sqlite.DefaultOptions())
//	_, err = sqlite.Migrator{DB: db, FS: migrationsFS, Dir: "migrations"}.Up()
//	tx := sqlite.NewTxRunner(db)
//	err = tx.WithinTx(ctx, func(ctx context.Context) error {
//		_, err := tx.GetQuerier(ctx).ExecContext(ctx, "...")
//		return err
//	})
//
// Вложенный WithinTx присоединяется к внешней транзакции. Ошибки SQLITE_BUSY
// повторяются с экспоненциальной задержкой.
package sqlite
