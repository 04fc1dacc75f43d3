package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &Entry{
		CommandID:   3,
		Name:        "backup",
		CommandLine: "tar czf backup.tgz /data",
		StartTime:   time.Now().Add(-2 * time.Second).UTC(),
		EndTime:     time.Now().UTC(),
		ReturnCode:  0,
		Stdout:      "done\n",
		Stderr:      "",
	}
	if err := store.Save(ctx, e); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CommandID != 3 || got.Name != "backup" || got.Stdout != "done\n" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestSQLiteStore_ListOrderedByEndTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		e := &Entry{
			CommandID:   i,
			CommandLine: "true",
			StartTime:   base,
			EndTime:     base.Add(time.Duration(i) * time.Second),
			ReturnCode:  0,
		}
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].CommandID != 2 {
		t.Errorf("expected newest entry first, got command %d", entries[0].CommandID)
	}
}

func TestSQLiteStore_GetUnknown(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown id")
	}
}
