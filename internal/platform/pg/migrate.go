package pg

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

const DefaultMigrationsTable = "schema_migrations"

// MigrationInfo - версия схемы до и после прогона.
type MigrationInfo struct {
	Applied        bool
	CurrentVersion uint
	FinalVersion   uint
	Dirty          bool
}

// Migrator прогоняет миграции через уже открытый пул, второго подключения по
// DSN не нужно. Dirty-состояние не чинится автоматически.
type Migrator struct {
	Pool  *pgxpool.Pool
	FS    fs.FS
	Dir   string
	Table string
	Log   *slog.Logger
}

func ApplyMigrations(pool *pgxpool.Pool, fsys fs.FS, dir string) (MigrationInfo, error) {
	return Migrator{Pool: pool, FS: fsys, Dir: dir}.Up()
}

// Up безопасно вызывать повторно: ErrNoChange ошибкой не считается.
func (mg Migrator) Up() (info MigrationInfo, err error) {
	src, err := iofs.New(mg.FS, mg.Dir)
	if err != nil {
		return info, fmt.Errorf("pg migrations %q: %w", mg.Dir, err)
	}
	defer src.Close()

	// Close возвращает соединения в пул, сам пул остаётся открытым.
	db := stdlib.OpenDBFromPool(mg.Pool)
	defer db.Close()

	table := mg.Table
	if table == "" {
		table = DefaultMigrationsTable
	}
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{MigrationsTable: table})
	if err != nil {
		return info, fmt.Errorf("pg migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return info, fmt.Errorf("pg migrate: %w", err)
	}
	if mg.Log != nil {
		m.Log = migrateLog{mg.Log}
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return info, fmt.Errorf("pg schema version: %w", err)
	}
	info = MigrationInfo{CurrentVersion: v, FinalVersion: v, Dirty: dirty}
	if dirty {
		return info, fmt.Errorf("pg schema is dirty at version %d", v)
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		return info, nil
	case err != nil:
		return info, fmt.Errorf("pg migrate up: %w", err)
	}
	info.Applied = true
	if v, _, err := m.Version(); err == nil {
		info.FinalVersion = v
	}
	return info, nil
}

type migrateLog struct{ log *slog.Logger }

func (l migrateLog) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (migrateLog) Verbose() bool { return false }
