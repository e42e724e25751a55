package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"authflow/pkg/retry"
)

type txKey struct{}

// Querier - общее подмножество *sql.DB и *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// TxRunner открывает транзакции на DB и кладёт их в context.
// Транзакция, упавшая на блокировке файла, начинается заново.
type TxRunner struct {
	DB      *sql.DB
	Options *sql.TxOptions
	Retry   retry.Config
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{
		DB: db,
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Jitter:       true,
		},
	}
}

// WithinTx коммитит, если fn вернула nil, иначе откатывает.
// Вложенный вызов работает внутри уже открытой транзакции.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := SqlTx(ctx); ok {
		return fn(ctx)
	}
	return retry.Do(ctx, r.Retry, func(ctx context.Context) error {
		tx, err := r.DB.BeginTx(ctx, r.Options)
		if err != nil {
			return err
		}
		if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
			if rbErr := ignoreDone(tx.Rollback()); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
		return tx.Commit()
	}, IsBusy)
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// SqlTx возвращает транзакцию, открытую выше по стеку.
func SqlTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if tx, ok := SqlTx(ctx); ok {
		return tx
	}
	return r.DB
}

// resultCode достаёт расширенный код SQLite из ошибки драйвера.
func resultCode(err error) (int, bool) {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// IsBusy: SQLITE_BUSY или SQLITE_LOCKED, включая расширенные коды.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := resultCode(err); ok {
		primary := code & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	// ошибки, пришедшие не от драйвера напрямую, сравниваем по тексту
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked")
}

func IsUniqueViolation(err error) bool {
	code, ok := resultCode(err)
	if !ok {
		return false
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// соединение без расширенных кодов
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	}
	return false
}
