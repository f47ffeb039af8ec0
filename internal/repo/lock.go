package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// lockConn — соединение, на котором держится advisory lock.
// *pgxpool.Conn удовлетворяет этому интерфейсу.
type lockConn interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Release()
}

// AdvisoryLock — pg_advisory_lock на отдельном соединении.
//
// Блокировка принадлежит сессии PostgreSQL, поэтому соединение
// держится, пока блокировка взята. Если сессия оборвалась,
// блокировка потеряна вместе с ней.
type AdvisoryLock struct {
	acquire func(ctx context.Context) (lockConn, error)
	key     int64

	mu   sync.Mutex
	conn lockConn
}

// AdvisoryLock создаёт advisory lock с ключом key.
func (p *PgxSessions) AdvisoryLock(key int64) *AdvisoryLock {
	return &AdvisoryLock{
		key: key,
		acquire: func(ctx context.Context) (lockConn, error) {
			conn, err := p.pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	}
}

// TryLock пытается взять блокировку.
//
// Владелец проверяет, что его соединение живо. Если нет, соединение
// отпускается и блокировка берётся заново.
func (l *AdvisoryLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}

	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Unlock отпускает блокировку, если она взята.
func (l *AdvisoryLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}

	_, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key)
	l.conn.Release()
	l.conn = nil

	if err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
