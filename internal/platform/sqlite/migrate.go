package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationInfo - версия схемы до и после прогона.
type MigrationInfo struct {
	Applied        bool
	CurrentVersion uint
	FinalVersion   uint
}

// Migrator прогоняет миграции из FS/Dir на уже открытой DB.
//
// Экземпляр migrate не закрывается: его Close закрыл бы и DB, а in-memory
// база при этом исчезает.
type Migrator struct {
	DB  *sql.DB
	FS  fs.FS
	Dir string
	// Table - таблица версий, по умолчанию schema_migrations.
	Table string
	// Log получает сообщения golang-migrate на уровне Debug.
	Log *slog.Logger
}

// ApplyMigrations - Migrator с настройками по умолчанию.
func ApplyMigrations(db *sql.DB, fsys fs.FS, dir string) (MigrationInfo, error) {
	return Migrator{DB: db, FS: fsys, Dir: dir}.Up()
}

// Up применяет все новые миграции. ErrNoChange ошибкой не считается.
func (mg Migrator) Up() (MigrationInfo, error) {
	m, err := mg.instance()
	if err != nil {
		return MigrationInfo{}, err
	}

	before, err := version(m)
	if err != nil {
		return MigrationInfo{}, err
	}
	info := MigrationInfo{CurrentVersion: before, FinalVersion: before}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		return info, nil
	case err != nil:
		return info, fmt.Errorf("sqlite migrate up: %w", err)
	}
	info.Applied = true
	if info.FinalVersion, err = version(m); err != nil {
		return info, err
	}
	return info, nil
}

func (mg Migrator) instance() (*migrate.Migrate, error) {
	src, err := iofs.New(mg.FS, mg.Dir)
	if err != nil {
		return nil, fmt.Errorf("sqlite migrations %q: %w", mg.Dir, err)
	}
	driver, err := sqlitemigrate.WithInstance(mg.DB, &sqlitemigrate.Config{MigrationsTable: mg.Table})
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	if mg.Log != nil {
		m.Log = migrateLog{mg.Log}
	}
	return m, nil
}

// version возвращает 0 для пустой базы и ошибку для dirty-состояния.
func version(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("sqlite schema version: %w", err)
	case dirty:
		return v, fmt.Errorf("sqlite schema is dirty at version %d", v)
	}
	return v, nil
}

type migrateLog struct{ log *slog.Logger }

func (l migrateLog) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l migrateLog) Verbose() bool { return false }
