// Package repotest поднимает in-memory sqlite со схемой меню для тестов.
package repotest

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/menustats/internal/repo"
)

// Schema — минимальная схема CRUD-сервиса, которую читает аналитика.
const Schema = `
CREATE TABLE restaurants (
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE menu_items (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	restaurant_id INTEGER NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	price         NUMERIC(10, 2) NOT NULL
);
`

// DB — тестовая база.
type DB struct {
	*sql.DB
	t *testing.T
}

// New открывает отдельную in-memory базу и создаёт схему.
// База закрывается через t.Cleanup.
func New(t *testing.T) *DB {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(uuid.NewString(), "-", "") + "?mode=memory&cache=shared"
	db, err := repo.OpenSQLite(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	return &DB{DB: db, t: t}
}

// AddRestaurant добавляет ресторан.
func (d *DB) AddRestaurant(id int64, active bool) {
	d.t.Helper()
	if _, err := d.Exec(`INSERT INTO restaurants (id, name, is_active) VALUES (?, ?, ?)`, id, "restaurant", active); err != nil {
		d.t.Fatalf("insert restaurant: %v", err)
	}
}

// AddMenuItems добавляет позиции меню с ценами в виде десятичных строк.
func (d *DB) AddMenuItems(restaurantID int64, prices ...string) {
	d.t.Helper()
	for _, p := range prices {
		if _, err := d.Exec(`INSERT INTO menu_items (restaurant_id, name, price) VALUES (?, ?, ?)`, restaurantID, "item", p); err != nil {
			d.t.Fatalf("insert menu item: %v", err)
		}
	}
}

// Sessions возвращает SessionProvider поверх этой базы.
func (d *DB) Sessions() *repo.SQLSessions {
	return repo.NewSQLSessions(d.DB)
}
