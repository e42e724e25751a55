package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// TxLock - режим BEGIN для транзакций database/sql.
type TxLock string

const (
	TxLockDeferred TxLock = "deferred"
	// TxLockImmediate берёт блокировку записи на BEGIN, и SQLITE_BUSY
	// возникает до первого запроса, а не посреди транзакции.
	TxLockImmediate TxLock = "immediate"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	WALMode         bool
	ForeignKeys     bool
	BusyTimeout     time.Duration
	TxLock          TxLock
}

// DefaultOptions рассчитаны на файл, с которым работает один процесс.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
		TxLock:          TxLockImmediate,
	}
}

// Open создаёт каталог для path, если его нет.
func Open(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir %s: %w", dir, err)
		}
	}
	return open(ctx, "file:"+path, opts)
}

// OpenInMemory держит одно соединение: у каждого соединения своя :memory: база.
func OpenInMemory(ctx context.Context) (*sql.DB, error) {
	opts := DefaultOptions()
	opts.WALMode = false
	opts.MaxOpenConns, opts.MaxIdleConns = 1, 1
	opts.ConnMaxLifetime = 0
	return open(ctx, ":memory:", opts)
}

func open(ctx context.Context, base string, opts Options) (*sql.DB, error) {
	db, err := sql.Open("sqlite", BuildDSN(base, opts))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if opts.PingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return db, nil
}

// pragmas выполняются драйвером на каждом новом соединении пула.
func (o Options) pragmas() []string {
	var p []string
	if o.ForeignKeys {
		p = append(p, "foreign_keys(1)")
	}
	if o.BusyTimeout > 0 {
		p = append(p, "busy_timeout("+strconv.FormatInt(o.BusyTimeout.Milliseconds(), 10)+")")
	}
	if o.WALMode {
		p = append(p, "journal_mode(WAL)", "synchronous(NORMAL)")
	}
	return p
}

// BuildDSN дописывает к base параметры _pragma и _txlock драйвера modernc.
func BuildDSN(base string, opts Options) string {
	q := url.Values{"_pragma": opts.pragmas()}
	if opts.TxLock != "" && opts.TxLock != TxLockDeferred {
		q.Set("_txlock", string(opts.TxLock))
	}
	if len(q["_pragma"]) == 0 {
		q.Del("_pragma")
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}
