// Package retry runs an operation with exponential backoff.
//
// Basic usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//	    return pool.Ping(ctx)
//	}, nil)
//
// The last argument decides which failures are worth another attempt. Callers
// that classify errors pass their own check:
//
//	err := retry.Do(ctx, cfg, connect, apperr.IsRetryable)
//
// NextDelay lets transports honour server hints such as Retry-After.
package retry
