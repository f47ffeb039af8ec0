package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Цены хранятся как NUMERIC(10,2); суммируем целые центы,
// чтобы не терять точность на float.
const (
	pgMenuTotalsQuery = `
		SELECT COUNT(*), CAST(COALESCE(SUM(ROUND(price * 100)), 0) AS BIGINT)
		FROM menu_items
		WHERE restaurant_id = $1
	`

	pgRestaurantIDsQuery = `
		SELECT id FROM restaurants
		WHERE is_active
		ORDER BY id ASC
	`
)

// PgxSessions — SessionProvider поверх pgxpool.
type PgxSessions struct {
	pool *pgxpool.Pool
}

// NewPgxSessions создаёт новый PgxSessions.
func NewPgxSessions(pool *pgxpool.Pool) *PgxSessions {
	return &PgxSessions{pool: pool}
}

// Acquire берёт соединение из пула.
func (p *PgxSessions) Acquire(ctx context.Context) (Session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &pgxSession{conn: conn}, nil
}

// Close закрывает пул.
func (p *PgxSessions) Close() {
	p.pool.Close()
}

type pgxSession struct {
	conn *pgxpool.Conn
	once sync.Once
}

func (s *pgxSession) MenuTotals(ctx context.Context, restaurantID int64) (MenuTotals, error) {
	var totals MenuTotals
	err := s.conn.QueryRow(ctx, pgMenuTotalsQuery, restaurantID).Scan(&totals.Count, &totals.SumCents)
	if err != nil {
		return MenuTotals{}, fmt.Errorf("query menu totals: %w", err)
	}
	return totals, nil
}

func (s *pgxSession) RestaurantIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.conn.Query(ctx, pgRestaurantIDsQuery)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan restaurant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *pgxSession) Release() {
	s.once.Do(s.conn.Release)
}
