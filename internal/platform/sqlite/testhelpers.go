package sqlite

import (
	"context"
	"database/sql"
	"io/fs"
	"testing"
)

// NewTestDB открывает in-memory БД, применяет миграции и закрывает её по окончании теста.
func NewTestDB(t testing.TB, fsys fs.FS, dir string) *sql.DB {
	t.Helper()
	db, err := OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if fsys != nil {
		if _, err := ApplyMigrations(db, fsys, dir); err != nil {
			t.Fatalf("apply migrations: %v", err)
		}
	}
	return db
}

// CountRows возвращает количество строк в таблице.
func CountRows(t testing.TB, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count rows in %s: %v", table, err)
	}
	return n
}
