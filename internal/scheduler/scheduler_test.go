package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/naraboard/internal/ingest"
	"github.com/kalambet/naraboard/internal/storage"
)

type fakeQueue struct {
	mu      sync.Mutex
	tasks   []storage.Task
	open    map[string]bool
	openErr error
}

func (q *fakeQueue) EnqueueTask(task storage.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) HasOpenTask(taskType string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.open[taskType], q.openErr
}

func (q *fakeQueue) count(taskType string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.tasks {
		if t.Type == taskType {
			n++
		}
	}
	return n
}

func TestEnqueue_SkipsWhenOpen(t *testing.T) {
	q := &fakeQueue{open: map[string]bool{ingest.TaskSync: true}}
	s := New(q, Options{})

	queued, err := s.Enqueue(ingest.TaskSync)
	if err != nil || queued {
		t.Errorf("Enqueue(sync) = %v, %v; want false, nil", queued, err)
	}
	queued, err = s.Enqueue(ingest.TaskCleanup)
	if err != nil || !queued {
		t.Errorf("Enqueue(cleanup) = %v, %v; want true, nil", queued, err)
	}
	if _, err := s.Enqueue("reindex"); err == nil {
		t.Error("expected error for unknown task type")
	}
}

func TestEnqueue_PropagatesQueueError(t *testing.T) {
	q := &fakeQueue{openErr: errors.New("database is locked")}
	if _, err := New(q, Options{}).Enqueue(ingest.TaskSync); err == nil {
		t.Error("expected error")
	}
}

func TestEnqueue_SyncPayload(t *testing.T) {
	q := &fakeQueue{}
	s := New(q, Options{Sync: ingest.SyncPayload{Pages: 3, Size: 50}})

	if _, err := s.Enqueue(ingest.TaskSync); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := q.tasks[0].PayloadJSON; got != `{"pages":3,"size":50}` {
		t.Errorf("PayloadJSON = %s", got)
	}
}

func TestStart_ImmediateSyncThenTicks(t *testing.T) {
	q := &fakeQueue{}
	s := New(q, Options{SyncInterval: 20 * time.Millisecond, CleanupInterval: 30 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if n := q.count(ingest.TaskSync); n < 3 {
		t.Errorf("sync tasks = %d, want >= 3", n)
	}
	if n := q.count(ingest.TaskCleanup); n < 1 {
		t.Errorf("cleanup tasks = %d, want >= 1", n)
	}
}

func TestStart_ZeroIntervalDisables(t *testing.T) {
	q := &fakeQueue{}
	s := New(q, Options{SyncInterval: 0, CleanupInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	if n := q.count(ingest.TaskSync); n != 0 {
		t.Errorf("sync tasks = %d, want 0 when disabled", n)
	}
	if n := q.count(ingest.TaskCleanup); n == 0 {
		t.Error("no cleanup tasks scheduled")
	}
}

func TestStart_AllDisabledBlocksUntilCancel(t *testing.T) {
	s := New(&fakeQueue{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-done:
		t.Fatal("Start returned before cancel")
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
