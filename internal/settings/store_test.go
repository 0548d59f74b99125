package settings

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "prefs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_GetSetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "language"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v err %v, want false nil", ok, err)
	}
	if err := s.Set(ctx, "language", "en"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "language", "zh"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	v, ok, err := s.Get(ctx, "language")
	if err != nil || !ok || v != "zh" {
		t.Fatalf("Get() = %q %v %v, want zh true nil", v, ok, err)
	}
	if err := s.Delete(ctx, "language"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := s.Get(ctx, "language"); ok {
		t.Error("Get() after Delete ok = true")
	}
	if err := s.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete() unset key error = %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	_ = s.Set(ctx, "refresh_rate_ms", "900000")
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if v, ok, _ := s.Get(ctx, "refresh_rate_ms"); !ok || v != "900000" {
		t.Errorf("Get() after reopen = %q %v, want 900000 true", v, ok)
	}
}
