package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shaiso/menustats/internal/repo"
	"github.com/shaiso/menustats/internal/repo/repotest"
)

func TestSQLSessions_MenuTotals(t *testing.T) {
	db := repotest.New(t)
	db.AddRestaurant(42, true)
	db.AddMenuItems(42, "10.00", "20.00", "30.00")
	db.AddRestaurant(7, true)
	db.AddMenuItems(7, "19.99", "0.01")

	sessions := db.Sessions()

	tests := []struct {
		name         string
		restaurantID int64
		want         repo.MenuTotals
	}{
		{"three items", 42, repo.MenuTotals{Count: 3, SumCents: 6000}},
		{"fractional prices", 7, repo.MenuTotals{Count: 2, SumCents: 2000}},
		{"no menu", 99, repo.MenuTotals{Count: 0, SumCents: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := sessions.Acquire(context.Background())
			if err != nil {
				t.Fatalf("acquire: %v", err)
			}
			defer s.Release()

			got, err := s.MenuTotals(context.Background(), tt.restaurantID)
			if err != nil {
				t.Fatalf("menu totals: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestSQLSessions_RestaurantIDs(t *testing.T) {
	db := repotest.New(t)
	db.AddRestaurant(3, true)
	db.AddRestaurant(1, true)
	db.AddRestaurant(2, false)

	s, err := db.Sessions().Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.Release()

	ids, err := s.RestaurantIDs(context.Background())
	if err != nil {
		t.Fatalf("restaurant ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("expected active [1 3], got %v", ids)
	}
}

func TestSQLSessions_ReleaseReturnsConnection(t *testing.T) {
	db := repotest.New(t)
	sessions := db.Sessions()

	s, err := sessions.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if sessions.Stats().InUse != 1 {
		t.Errorf("expected 1 connection in use, got %d", sessions.Stats().InUse)
	}

	s.Release()
	s.Release() // повторный Release безопасен

	if sessions.Stats().InUse != 0 {
		t.Errorf("expected 0 connections in use after release, got %d", sessions.Stats().InUse)
	}
}

func TestSQLSessions_CanceledContext(t *testing.T) {
	db := repotest.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := db.Sessions().Acquire(ctx); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestOpen_UnsupportedURL(t *testing.T) {
	_, err := repo.Open(context.Background(), "mysql://localhost/db", 0)
	if !errors.Is(err, repo.ErrUnsupportedURL) {
		t.Errorf("expected ErrUnsupportedURL, got %v", err)
	}
}

func TestOpen_SQLite(t *testing.T) {
	p, err := repo.Open(context.Background(), "sqlite://file:open_test?mode=memory&cache=shared", 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	if _, ok := p.(*repo.SQLSessions); !ok {
		t.Errorf("expected *repo.SQLSessions, got %T", p)
	}
}
