package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/naraboard/internal/apperr"
	"github.com/kalambet/naraboard/internal/cleanup"
	"github.com/kalambet/naraboard/internal/storage"
)

type mockSyncer struct {
	syncFn func(ctx context.Context, maxPages, maxItems, size int) (SyncResult, error)
}

func (m *mockSyncer) SyncAll(ctx context.Context, maxPages, maxItems, size int) (SyncResult, error) {
	return m.syncFn(ctx, maxPages, maxItems, size)
}

type mockCleaner struct {
	mu      sync.Mutex
	dryRuns []bool
	err     error
}

func (m *mockCleaner) Run(_ context.Context, dryRun bool) (cleanup.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dryRuns = append(m.dryRuns, dryRun)
	return cleanup.Result{DryRun: dryRun}, m.err
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueue(t *testing.T, store *storage.Store, task storage.Task) {
	t.Helper()
	if err := store.EnqueueTask(task); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
}

// resetRunAfter makes a task claimable immediately after FailTask backoff.
func resetRunAfter(t *testing.T, store *storage.Store, taskID string) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	if _, err := store.DB().Exec(`UPDATE tasks SET run_after = ? WHERE id = ?`, past, taskID); err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func okSyncer(calls *atomic.Int32) *mockSyncer {
	return &mockSyncer{syncFn: func(context.Context, int, int, int) (SyncResult, error) {
		calls.Add(1)
		return SyncResult{Pages: 1}, nil
	}}
}

func TestWorker_ProcessesSyncTask(t *testing.T) {
	store := openTestStore(t)
	task := NewSyncTask(SyncPayload{Pages: 2, Size: 30, Cleanup: true})
	enqueue(t, store, task)

	var gotPages, gotSize int
	syncer := &mockSyncer{syncFn: func(_ context.Context, maxPages, _ int, size int) (SyncResult, error) {
		gotPages, gotSize = maxPages, size
		return SyncResult{Pages: 2}, nil
	}}
	cleaner := &mockCleaner{}
	w := NewWorker(store, syncer, cleaner, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if gotPages != 2 || gotSize != 30 {
		t.Errorf("SyncAll(pages=%d, size=%d), want 2, 30", gotPages, gotSize)
	}
	if len(cleaner.dryRuns) != 1 || cleaner.dryRuns[0] {
		t.Errorf("cleanup after sync = %v, want one real run", cleaner.dryRuns)
	}

	got, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestWorker_ProcessesCleanupTask(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, NewCleanupTask(CleanupPayload{DryRun: true}))

	var calls atomic.Int32
	cleaner := &mockCleaner{}
	w := NewWorker(store, okSyncer(&calls), cleaner, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("sync ran %d times for a cleanup task", calls.Load())
	}
	if len(cleaner.dryRuns) != 1 || !cleaner.dryRuns[0] {
		t.Errorf("cleanup runs = %v, want one dry run", cleaner.dryRuns)
	}
}

func TestWorker_NoTask(t *testing.T) {
	store := openTestStore(t)
	var calls atomic.Int32
	w := NewWorker(store, okSyncer(&calls), &mockCleaner{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("RunOnce = %v, %v; want false, nil", didWork, err)
	}
}

func TestWorker_RetriesUpstreamFailure(t *testing.T) {
	store := openTestStore(t)
	task := NewSyncTask(SyncPayload{})
	enqueue(t, store, task)

	var calls atomic.Int32
	syncer := &mockSyncer{syncFn: func(context.Context, int, int, int) (SyncResult, error) {
		n := calls.Add(1)
		if n <= 2 {
			return SyncResult{}, apperr.UpstreamUnavailable(fmt.Sprintf("attempt %d", n), nil)
		}
		return SyncResult{Pages: 1}, nil
	}}
	w := NewWorker(store, syncer, &mockCleaner{}, 0)
	ctx := context.Background()

	// 1st attempt fails and is rescheduled.
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 1 = %v, %v", didWork, err)
	}
	got, _ := store.GetTask(task.ID)
	if got.Status != "pending" || got.Attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", got.Status, got.Attempts)
	}

	// Backoff keeps it out of reach until run_after passes.
	if didWork, _ := w.RunOnce(ctx); didWork {
		t.Error("task claimed during backoff")
	}

	resetRunAfter(t, store, task.ID)
	w.RunOnce(ctx)
	got, _ = store.GetTask(task.ID)
	if got.Attempts != 2 {
		t.Errorf("after 2nd fail: attempts=%d, want 2", got.Attempts)
	}

	resetRunAfter(t, store, task.ID)
	w.RunOnce(ctx)
	got, _ = store.GetTask(task.ID)
	if got.Status != "completed" {
		t.Errorf("after 3rd attempt: status=%q, want completed", got.Status)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	task := NewCleanupTask(CleanupPayload{})
	enqueue(t, store, task)

	w := NewWorker(store, okSyncer(new(atomic.Int32)), &mockCleaner{err: apperr.StoreUnavailable("scan", nil)}, 0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, task.ID)
		}
	}

	got, _ := store.GetTask(task.ID)
	if got.Status != "failed" {
		t.Errorf("final status = %q, want failed", got.Status)
	}
	if got.LastError == "" {
		t.Error("LastError is empty")
	}
}

func TestWorker_BadPayloadFails(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, storage.Task{ID: "t-bad", Type: TaskSync, PayloadJSON: `{"pages":"many"}`, MaxAttempts: 1})

	w := NewWorker(store, okSyncer(new(atomic.Int32)), &mockCleaner{}, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, _ := store.GetTask("t-bad")
	if got.Status != "failed" {
		t.Errorf("status = %q, want failed", got.Status)
	}
}

func TestWorker_NonRetryableFailsAtOnce(t *testing.T) {
	tests := []struct {
		name string
		task storage.Task
	}{
		{"sync payload", storage.Task{ID: "t-sync", Type: TaskSync, PayloadJSON: `{"pages":"many"}`}},
		{"cleanup payload", storage.Task{ID: "t-cleanup", Type: TaskCleanup, PayloadJSON: `{"dryRun":"yes"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := openTestStore(t)
			enqueue(t, store, tt.task)

			w := NewWorker(store, okSyncer(new(atomic.Int32)), &mockCleaner{}, 0)
			if _, err := w.RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			got, _ := store.GetTask(tt.task.ID)
			if got.Status != "failed" || got.Attempts != 1 {
				t.Errorf("status=%q attempts=%d, want failed after 1 attempt", got.Status, got.Attempts)
			}
		})
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	var calls atomic.Int32
	w := NewWorker(store, okSyncer(&calls), &mockCleaner{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	enqueue(t, store, NewSyncTask(SyncPayload{}))
	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never picked up the task")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
