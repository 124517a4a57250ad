package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteKV(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || got != "v2" {
		t.Errorf("Get(k) = %q, %v; want v2", got, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteHashes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.HSet(ctx, "plugin_enabled", "web_summary", "true"); err != nil {
		t.Fatal(err)
	}
	if err := s.HSet(ctx, "plugin_enabled", "web_summary", "false"); err != nil {
		t.Fatal(err)
	}
	got, err := s.HGet(ctx, "plugin_enabled", "web_summary")
	if err != nil || got != "false" {
		t.Errorf("HGet = %q, %v; want false", got, err)
	}

	if _, err := s.HGet(ctx, "plugin_enabled", "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("HGet(absent) err = %v, want ErrNotFound", err)
	}

	if err := s.HSetAll(ctx, "settings:webui", map[string]string{"addr": ":8080", "theme": "dark"}); err != nil {
		t.Fatal(err)
	}
	all, err := s.HGetAll(ctx, "settings:webui")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["addr"] != ":8080" || all["theme"] != "dark" {
		t.Errorf("HGetAll = %v", all)
	}
}

func TestSQLiteLogAppendTrims(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if err := s.LogAppend(ctx, "hist", []byte(fmt.Sprintf("m%d", i)), 20); err != nil {
			t.Fatal(err)
		}
	}

	values, err := s.LogRange(ctx, "hist", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 20 {
		t.Fatalf("log holds %d records, want 20", len(values))
	}
	if string(values[0]) != "m5" || string(values[19]) != "m24" {
		t.Errorf("log window = [%s .. %s], want [m5 .. m24]", values[0], values[19])
	}
}

func TestSQLiteLogRangeLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.LogAppend(ctx, "hist", []byte(fmt.Sprintf("m%d", i)), 0); err != nil {
			t.Fatal(err)
		}
	}

	values, err := s.LogRange(ctx, "hist", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 3 {
		t.Fatalf("got %d records, want 3", len(values))
	}
	// Most recent three, oldest first.
	if string(values[0]) != "m7" || string(values[2]) != "m9" {
		t.Errorf("range = [%s, %s, %s]", values[0], values[1], values[2])
	}
}

func TestSQLiteLogDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.LogAppend(ctx, "hist", []byte("m"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.LogDelete(ctx, "hist"); err != nil {
		t.Fatal(err)
	}
	values, err := s.LogRange(ctx, "hist", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 0 {
		t.Errorf("log not empty after delete: %v", values)
	}
}

func TestSQLiteBlobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key, err := s.PutBlob(ctx, []byte("image bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if key == "" {
		t.Fatal("empty blob key")
	}

	data, err := s.GetBlob(ctx, key)
	if err != nil || string(data) != "image bytes" {
		t.Errorf("GetBlob = %q, %v", data, err)
	}

	if err := s.DeleteBlob(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetBlob(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBlob after delete err = %v, want ErrNotFound", err)
	}
}

// The memory driver must behave identically for the operations the engine
// relies on; run the trim invariant against it too.
func TestMemoryLogAppendTrims(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if err := m.LogAppend(ctx, "hist", []byte(fmt.Sprintf("m%d", i)), 20); err != nil {
			t.Fatal(err)
		}
	}
	values, err := m.LogRange(ctx, "hist", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 20 || string(values[0]) != "m5" {
		t.Errorf("memory log window wrong: len=%d first=%s", len(values), values[0])
	}
}
