package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"authflow/pkg/retry"
)

// SQLSTATE коды, которые различает слой хранения.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

type txKey struct{}

// Querier - общие методы пула и транзакции.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// TxRunner выполняет код в транзакции и повторяет ее при конфликте
// сериализации или дедлоке.
type TxRunner struct {
	Pool    *pgxpool.Pool
	Options pgx.TxOptions
	Retry   retry.Config
}

// NewTxRunner создает TxRunner с уровнем изоляции READ COMMITTED.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{
		Pool:    pool,
		Options: pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2,
			Jitter:       true,
		},
	}
}

// WithinTx выполняет fn в транзакции: ошибка откатывает, nil коммитит.
// Если в ctx уже есть транзакция, fn присоединяется к ней и повторов нет:
// повторять должна внешняя транзакция.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := PgxTx(ctx); ok {
		return fn(ctx)
	}
	return retry.Do(ctx, r.Retry, func(ctx context.Context) error {
		return pgx.BeginTxFunc(ctx, r.Pool, r.Options, func(tx pgx.Tx) error {
			return fn(context.WithValue(ctx, txKey{}, tx))
		})
	}, IsRetryableTx)
}

// PgxTx извлекает активную транзакцию из контекста.
func PgxTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// GetQuerier возвращает транзакцию из контекста или пул.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if tx, ok := PgxTx(ctx); ok {
		return tx
	}
	return r.Pool
}

// IsUniqueViolation проверяет нарушение UNIQUE ограничения.
func IsUniqueViolation(err error) bool {
	return sqlState(err) == codeUniqueViolation
}

// IsRetryableTx проверяет, что транзакцию имеет смысл повторить целиком.
func IsRetryableTx(err error) bool {
	switch sqlState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// IsNoRows проверяет, что запрос не вернул строк.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
