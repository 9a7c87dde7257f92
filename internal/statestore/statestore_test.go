package statestore

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestMemoryGetSetDelete verifies basic key-value behavior of the memory
// store.
func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := s.Get(ctx, "k"); err != nil || v != "v1" {
		t.Errorf("Get = %q, %v; want v1", v, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

// TestMemoryWatchSkipsOwnWrites verifies a store never observes its own
// writes but does observe a peer's, including deletes.
func TestMemoryWatchSkipsOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewMemoryHub()
	a, b := hub.Open(), hub.Open()
	if a.Origin() == b.Origin() {
		t.Fatal("peers must have distinct origins")
	}

	events, err := a.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := a.Set(ctx, "k", "own"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "k", "foreign"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Origin != b.Origin() || ev.Value != "foreign" {
			t.Errorf("event = %+v, want b's write", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for foreign write")
	}

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	select {
	case ev := <-events:
		if !ev.Deleted {
			t.Errorf("event = %+v, want delete", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delete event")
	}
}

// TestMemoryCloseEndsWatch verifies Close unblocks watchers whose context
// is still live, by closing their event channels.
func TestMemoryCloseEndsWatch(t *testing.T) {
	ctx := context.Background()

	hub := NewMemoryHub()
	s := hub.Open()

	events, err := s.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("got event after Close, want closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel still open after Close")
	}
}

// TestSQLiteGetSetDelete verifies the SQLite store round-trips values and
// reports deletions (tombstones) as absent.
func TestSQLiteGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, err := s.Get(ctx, "k"); err != nil || v != "v2" {
		t.Errorf("Get = %q, %v; want v2", v, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

// TestSQLiteReopen verifies values survive closing and reopening the
// database, which is the restart-durability the session depends on.
func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.Set(ctx, "k", "survives"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if v, err := s2.Get(ctx, "k"); err != nil || v != "survives" {
		t.Errorf("Get after reopen = %q, %v; want survives", v, err)
	}
}

// TestSQLiteWatchSeesForeignWrites verifies the poll watcher reports writes
// from a second store over the same database, and skips the watcher's own.
func TestSQLiteWatchSeesForeignWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()

	a, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite a: %v", err)
	}
	defer a.Close()
	b, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite b: %v", err)
	}
	defer b.Close()

	events, err := a.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := a.Set(ctx, "k", "own"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "k", "foreign"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Origin != b.Origin() || ev.Value != "foreign" || ev.Deleted {
			t.Errorf("event = %+v, want b's write", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for foreign write")
	}
}

// TestSQLiteWatchSameMillisecondWrites verifies a foreign write stamped
// with the same millisecond as an already-reported row is still delivered,
// and that neither row is delivered twice.
func TestSQLiteWatchSameMillisecondWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer a.Close()

	events, err := a.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Insert rows directly so both carry an identical timestamp. The
	// second lands after the first has already been reported, which is
	// exactly the ordering a strictly-greater cursor would drop.
	ms := time.Now().UnixMilli()
	insert := func(key string) {
		t.Helper()
		_, err := a.db.Exec(
			`INSERT OR REPLACE INTO kv (key, value, origin, updated_ms) VALUES (?, ?, ?, ?)`,
			key, "v", "peer", ms,
		)
		if err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
	}
	waitFor := func(key string) {
		t.Helper()
		select {
		case ev := <-events:
			if ev.Key != key {
				t.Fatalf("event key = %q, want %q", ev.Key, key)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", key)
		}
	}

	insert("k1")
	waitFor("k1")
	insert("k2")
	waitFor("k2")

	// Nothing should be redelivered on subsequent polls.
	select {
	case ev := <-events:
		t.Errorf("unexpected redelivery: %+v", ev)
	case <-time.After(2*sqlitePollInterval + 500*time.Millisecond):
	}
}
