package badgerstore

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MODJayden/jobcue/domain"
	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func queued(t *testing.T, method, path string) domain.QueuedRequest {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("generating id: %v", err)
	}
	return domain.QueuedRequest{
		ID:             id,
		Method:         method,
		Path:           path,
		Header:         http.Header{"Content-Type": {"application/json"}},
		Body:           []byte(`{"rating":5}`),
		IdempotencyKey: uuid.NewString(),
		EnqueuedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestOpen(t *testing.T) {
	t.Run("should require a path for a persistent store", func(t *testing.T) {
		if _, err := Open(Config{}); err == nil {
			t.Fatalf("expected an error without a path")
		}
	})

	t.Run("should persist the queue across reopen", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()

		store, err := Open(Config{Path: dir})
		if err != nil {
			t.Fatalf("opening store: %v", err)
		}
		req := queued(t, http.MethodPost, "/reviews")
		if err := store.Enqueue(ctx, req); err != nil {
			t.Fatalf("enqueueing: %v", err)
		}
		store.Close()

		store, err = Open(Config{Path: dir})
		if err != nil {
			t.Fatalf("reopening store: %v", err)
		}
		defer store.Close()

		queue, err := store.All(ctx)
		if err != nil {
			t.Fatalf("reading queue: %v", err)
		}
		if len(queue) != 1 || queue[0].ID != req.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", req, queue)
		}
	})
}

func TestQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("should return an empty queue when nothing was stored", func(t *testing.T) {
		store := setupTestStore(t)

		queue, err := store.All(ctx)
		if err != nil {
			t.Fatalf("reading queue: %v", err)
		}
		if queue == nil || len(queue) != 0 {
			t.Fatalf("\nwanted:\n[]\ngot:\n%v", queue)
		}
	})

	t.Run("should append in FIFO order without deduplicating", func(t *testing.T) {
		store := setupTestStore(t)

		first := queued(t, http.MethodPost, "/jobs")
		second := first
		for _, req := range []domain.QueuedRequest{first, second} {
			if err := store.Enqueue(ctx, req); err != nil {
				t.Fatalf("enqueueing: %v", err)
			}
		}

		n, err := store.CountQueued(ctx)
		if err != nil || n != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d (%v)", n, err)
		}
	})

	t.Run("should not lose concurrent appends", func(t *testing.T) {
		store := setupTestStore(t)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := store.Enqueue(ctx, queued(t, http.MethodPut, "/profile")); err != nil {
					t.Errorf("enqueueing: %v", err)
				}
			}()
		}
		wg.Wait()

		n, _ := store.CountQueued(ctx)
		if n != 4 {
			t.Fatalf("\nwanted:\n4\ngot:\n%d", n)
		}
	})

	t.Run("should replace the whole queue", func(t *testing.T) {
		store := setupTestStore(t)

		store.Enqueue(ctx, queued(t, http.MethodPost, "/jobs"))
		kept := queued(t, http.MethodDelete, "/jobs/3")
		kept.RetryCount = 2

		if err := store.ReplaceAll(ctx, []domain.QueuedRequest{kept}); err != nil {
			t.Fatalf("replacing: %v", err)
		}
		queue, _ := store.All(ctx)
		if len(queue) != 1 || queue[0].ID != kept.ID || queue[0].RetryCount != 2 {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", kept, queue)
		}

		if err := store.ReplaceAll(ctx, nil); err != nil {
			t.Fatalf("clearing: %v", err)
		}
		queue, _ = store.All(ctx)
		if len(queue) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(queue))
		}
	})
}

func TestCredential(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	if _, err := store.GetToken(ctx); !errors.Is(err, domain.ErrNoCredential) {
		t.Fatalf("\nwanted:\n%v\ngot:\n%v", domain.ErrNoCredential, err)
	}

	if err := store.SetToken(ctx, "abc"); err != nil {
		t.Fatalf("setting token: %v", err)
	}
	if token, err := store.GetToken(ctx); err != nil || token != "abc" {
		t.Fatalf("\nwanted:\nabc\ngot:\n%s (%v)", token, err)
	}

	if err := store.ClearToken(ctx); err != nil {
		t.Fatalf("clearing token: %v", err)
	}
	if err := store.ClearToken(ctx); err != nil {
		t.Fatalf("clearing absent token: %v", err)
	}
	if _, err := store.GetToken(ctx); !errors.Is(err, domain.ErrNoCredential) {
		t.Fatalf("\nwanted:\n%v\ngot:\n%v", domain.ErrNoCredential, err)
	}
}
