package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetValue(ctx, "v1", "ae_user_id"); err != nil || ok {
		t.Fatalf("expected missing value, got ok=%v err=%v", ok, err)
	}

	if err := s.SetValue(ctx, "v1", "ae_user_id", "web-1"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := s.SetValue(ctx, "v1", "ae_user_id", "web-2"); err != nil {
		t.Fatalf("SetValue overwrite failed: %v", err)
	}
	if err := s.SetValue(ctx, "v2", "ae_user_id", "web-3"); err != nil {
		t.Fatalf("SetValue other visitor failed: %v", err)
	}

	got, ok, err := s.GetValue(ctx, "v1", "ae_user_id")
	if err != nil || !ok || got != "web-2" {
		t.Fatalf("expected web-2, got %q ok=%v err=%v", got, ok, err)
	}

	if err := s.DeleteValue(ctx, "v1", "ae_user_id"); err != nil {
		t.Fatalf("DeleteValue failed: %v", err)
	}
	if err := s.DeleteValue(ctx, "v1", "missing"); err != nil {
		t.Fatalf("DeleteValue of missing key failed: %v", err)
	}
	if _, ok, _ := s.GetValue(ctx, "v1", "ae_user_id"); ok {
		t.Fatal("expected value to be deleted")
	}
	if got, _, _ := s.GetValue(ctx, "v2", "ae_user_id"); got != "web-3" {
		t.Fatalf("other visitor affected, got %q", got)
	}
}

func TestSQLiteStoreDeleteIdleVisitors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"ae_user_id", "ae_session_id"} {
		if err := s.SetValue(ctx, "v1", key, "x"); err != nil {
			t.Fatalf("SetValue failed: %v", err)
		}
	}

	n, err := s.DeleteIdleVisitors(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("expected no fresh rows deleted, got %d err=%v", n, err)
	}

	n, err = s.DeleteIdleVisitors(ctx, -time.Hour)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 rows deleted, got %d err=%v", n, err)
	}
}

func TestSQLiteStorePing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
