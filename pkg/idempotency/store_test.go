package idempotency

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "idem.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(context.Background(), "p1", "/v1/chat/completions", "key-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if ok {
				t.Fatal("Get() found an entry in an empty store")
			}
		})
	}
}

func TestStore_PutThenReplay(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			body := []byte(`{"id":"chatcmpl-1","object":"chat.completion"}`)

			if err := store.Put(ctx, "p1", "/v1/chat/completions", "key-1", Entry{Status: 200, Body: body}); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			entry, ok, err := store.Get(ctx, "p1", "/v1/chat/completions", "key-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !ok {
				t.Fatal("Get() missed a stored entry")
			}
			if entry.Status != 200 {
				t.Errorf("Status = %d, want 200", entry.Status)
			}
			if !bytes.Equal(entry.Body, body) {
				t.Errorf("Body = %q, want byte-identical replay", entry.Body)
			}
		})
	}
}

func TestStore_FirstWriterWins(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := store.Put(ctx, "p1", "/e", "k", Entry{Status: 200, Body: []byte("first")}); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := store.Put(ctx, "p1", "/e", "k", Entry{Status: 502, Body: []byte("second")}); err != nil {
				t.Fatalf("second Put() error = %v", err)
			}

			entry, ok, _ := store.Get(ctx, "p1", "/e", "k")
			if !ok {
				t.Fatal("entry missing")
			}
			if string(entry.Body) != "first" {
				t.Fatalf("Body = %q, want the first writer's response", entry.Body)
			}
		})
	}
}

func TestStore_KeyIsolation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.Put(ctx, "p1", "/e", "k", Entry{Status: 200, Body: []byte("p1-body")})

			// Different principal, same endpoint+key: no replay.
			if _, ok, _ := store.Get(ctx, "p2", "/e", "k"); ok {
				t.Fatal("entry leaked across principals")
			}
			// Different endpoint: no replay.
			if _, ok, _ := store.Get(ctx, "p1", "/other", "k"); ok {
				t.Fatal("entry leaked across endpoints")
			}
		})
	}
}

func TestStore_Sweep(t *testing.T) {
	ctx := context.Background()

	clock := time.Now()
	store := NewMemoryStoreWithClock(func() time.Time { return clock })

	store.Put(ctx, "p1", "/e", "old", Entry{Status: 200, Body: []byte("x"), CreatedAt: clock.Add(-25 * time.Hour)})
	store.Put(ctx, "p1", "/e", "new", Entry{Status: 200, Body: []byte("y"), CreatedAt: clock})

	removed, err := store.Sweep(ctx, DefaultWindow)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("Sweep() removed %d entries, want 1", removed)
	}

	if _, ok, _ := store.Get(ctx, "p1", "/e", "new"); !ok {
		t.Fatal("fresh entry removed by sweep")
	}
}

func TestStore_ExpiredEntryNotReplayed(t *testing.T) {
	ctx := context.Background()

	clock := time.Now()
	store := NewMemoryStoreWithClock(func() time.Time { return clock })
	store.Put(ctx, "p1", "/e", "k", Entry{Status: 200, Body: []byte("x"), CreatedAt: clock.Add(-25 * time.Hour)})

	if _, ok, _ := store.Get(ctx, "p1", "/e", "k"); ok {
		t.Fatal("entry older than the window was replayed")
	}
}

func TestStore_ConcurrentPut(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					body := []byte{byte('a' + i)}
					store.Put(ctx, "p1", "/e", "race", Entry{Status: 200, Body: body})
				}(i)
			}
			wg.Wait()

			// Exactly one writer won; repeated reads agree.
			first, ok, _ := store.Get(ctx, "p1", "/e", "race")
			if !ok {
				t.Fatal("no entry after concurrent puts")
			}
			second, _, _ := store.Get(ctx, "p1", "/e", "race")
			if !bytes.Equal(first.Body, second.Body) {
				t.Fatal("reads disagree after concurrent puts")
			}
		})
	}
}
