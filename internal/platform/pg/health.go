package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"authflow/internal/apperr"
	"authflow/internal/platform/logger"
	"authflow/pkg/retry"
)

// HealthTimeout ограничивает одну проверку HealthCheckPool.
const HealthTimeout = 5 * time.Second

// ErrNilPool возвращается проверками, когда пул не создан.
var ErrNilPool = errors.New("pg: pool is nil")

// DefaultConnectRetry: до 10 попыток, не дольше двух минут.
func DefaultConnectRetry() retry.Config {
	return retry.Config{
		MaxAttempts:    10,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		MaxElapsedTime: 2 * time.Minute,
		Jitter:         true,
	}
}

// Connect повторяет NewPool, пока база недоступна по сети.
// Неверный DSN или отказ в авторизации возвращаются сразу.
func Connect(ctx context.Context, dsn string, opts PoolOptions, cfg retry.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	if log != nil {
		next := cfg.OnRetry
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			log.Warn("postgres not ready", slog.Int("attempt", attempt), slog.Duration("delay", delay), logger.Error(err))
			if next != nil {
				next(attempt, err, delay)
			}
		}
	}

	var pool *pgxpool.Pool
	err := retry.Do(ctx, cfg, func(ctx context.Context) (err error) {
		pool, err = NewPool(ctx, dsn, opts)
		return err
	}, apperr.IsRetryable)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// HealthCheckPool делает полный круг до сервера, а не только Acquire.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return ErrNilPool
	}
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("pg health query: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("pg health query returned %d", one)
	}
	return nil
}
