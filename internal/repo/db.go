package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	// sqlite драйвер для локального запуска и тестов
	_ "modernc.org/sqlite"
)

const sqliteScheme = "sqlite://"

// NewPool создаёт пул соединений PostgreSQL.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// OpenSQLite открывает базу sqlite через database/sql.
// path — путь к файлу или "file:...?mode=memory" DSN.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Open выбирает реализацию SessionProvider по схеме URL:
//   - postgres:// и postgresql:// — pgxpool
//   - sqlite://<path> — database/sql + modernc sqlite
func Open(ctx context.Context, url string, maxConns int32) (SessionProvider, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		pool, err := NewPool(ctx, url, maxConns)
		if err != nil {
			return nil, err
		}
		return NewPgxSessions(pool), nil

	case strings.HasPrefix(url, sqliteScheme):
		db, err := OpenSQLite(ctx, strings.TrimPrefix(url, sqliteScheme))
		if err != nil {
			return nil, err
		}
		if maxConns > 0 {
			db.SetMaxOpenConns(int(maxConns))
		}
		return NewSQLSessions(db), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, url)
	}
}
