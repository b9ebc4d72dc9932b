package factory

import (
	"context"
	"path/filepath"
	"testing"

	pg "github.com/loykin/warden/internal/store/postgres"
	sq "github.com/loykin/warden/internal/store/sqlite"
)

func TestNewFromDSNEmpty(t *testing.T) {
	if _, err := NewFromDSN("  "); err == nil {
		t.Fatalf("empty DSN must error")
	}
}

func TestNewFromDSNSqliteScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.db")
	s, err := NewFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("sqlite dsn: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, ok := s.(*sq.DB); !ok {
		t.Fatalf("expected sqlite store, got %T", s)
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
}

func TestNewFromDSNBarePathIsSqlite(t *testing.T) {
	s, err := NewFromDSN(filepath.Join(t.TempDir(), "bare.db"))
	if err != nil {
		t.Fatalf("bare path: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, ok := s.(*sq.DB); !ok {
		t.Fatalf("expected sqlite store, got %T", s)
	}
}

func TestNewFromDSNPostgres(t *testing.T) {
	// sql.Open is lazy, so dispatch can be checked without a live server.
	s, err := NewFromDSN("postgres://u:p@localhost:5432/db?sslmode=disable")
	if err != nil {
		t.Fatalf("postgres dsn: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, ok := s.(*pg.DB); !ok {
		t.Fatalf("expected postgres store, got %T", s)
	}
}
