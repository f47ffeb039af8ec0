package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

const (
	sqlMenuTotalsQuery = `
		SELECT COUNT(*), CAST(COALESCE(SUM(CAST(ROUND(price * 100) AS INTEGER)), 0) AS INTEGER)
		FROM menu_items
		WHERE restaurant_id = ?
	`

	sqlRestaurantIDsQuery = `
		SELECT id FROM restaurants
		WHERE is_active <> 0
		ORDER BY id ASC
	`
)

// SQLSessions — SessionProvider поверх database/sql (sqlite).
// Каждая сессия держит отдельное *sql.Conn.
type SQLSessions struct {
	db *sql.DB
}

// NewSQLSessions создаёт новый SQLSessions.
func NewSQLSessions(db *sql.DB) *SQLSessions {
	return &SQLSessions{db: db}
}

// Acquire берёт отдельное соединение.
func (p *SQLSessions) Acquire(ctx context.Context) (Session, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &sqlSession{conn: conn}, nil
}

// Close закрывает базу.
func (p *SQLSessions) Close() {
	p.db.Close()
}

// Stats возвращает статистику пула database/sql.
func (p *SQLSessions) Stats() sql.DBStats {
	return p.db.Stats()
}

type sqlSession struct {
	conn *sql.Conn
	once sync.Once
}

func (s *sqlSession) MenuTotals(ctx context.Context, restaurantID int64) (MenuTotals, error) {
	var totals MenuTotals
	err := s.conn.QueryRowContext(ctx, sqlMenuTotalsQuery, restaurantID).Scan(&totals.Count, &totals.SumCents)
	if err != nil {
		return MenuTotals{}, fmt.Errorf("query menu totals: %w", err)
	}
	return totals, nil
}

func (s *sqlSession) RestaurantIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, sqlRestaurantIDsQuery)
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

func (s *sqlSession) Release() {
	s.once.Do(func() {
		s.conn.Close()
	})
}
