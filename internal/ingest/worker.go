package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/naraboard/internal/apperr"
	"github.com/kalambet/naraboard/internal/cleanup"
	"github.com/kalambet/naraboard/internal/storage"
)

// TaskStore abstracts the task queue operations.
type TaskStore interface {
	ClaimNextTask(types []string) (*storage.Task, error)
	CompleteTask(id string) error
	FailTask(id string, errMsg string) error
	AbandonTask(id string, errMsg string) error
}

// Syncer runs a multi-page sync.
type Syncer interface {
	SyncAll(ctx context.Context, maxPages, maxItems, size int) (SyncResult, error)
}

// Cleaner runs the cleanup pipeline.
type Cleaner interface {
	Run(ctx context.Context, dryRun bool) (cleanup.Result, error)
}

// Worker processes sync and cleanup tasks from the SQLite task queue. Failed
// tasks are retried by the queue with exponential backoff unless the error is
// not retryable, in which case they fail at once.
type Worker struct {
	store   TaskStore
	syncer  Syncer
	cleaner Cleaner
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 1s.
func NewWorker(store TaskStore, syncer Syncer, cleaner Cleaner, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		store:   store,
		syncer:  syncer,
		cleaner: cleaner,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single task.
// Returns true if a task was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.store.ClaimNextTask([]string{TaskSync, TaskCleanup})
	if err != nil {
		return false, fmt.Errorf("claiming task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	w.logger.Info("task started", "task_id", task.ID, "type", task.Type, "attempt", task.Attempts+1)
	if err := w.process(ctx, task); err != nil {
		retry := apperr.Retryable(err)
		w.logger.Warn("task failed", "task_id", task.ID, "type", task.Type, "retryable", retry, "error", err)
		fail := w.store.FailTask
		if !retry {
			fail = w.store.AbandonTask
		}
		if failErr := fail(task.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark task as failed", "task_id", task.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteTask(task.ID); err != nil {
		return true, fmt.Errorf("completing task %s: %w", task.ID, err)
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, task *storage.Task) error {
	switch task.Type {
	case TaskSync:
		var payload SyncPayload
		if err := json.Unmarshal([]byte(task.PayloadJSON), &payload); err != nil {
			return apperr.InvalidInput("parsing "+task.Type+" payload", err)
		}
		if _, err := w.syncer.SyncAll(ctx, payload.Pages, payload.MaxItems, payload.Size); err != nil {
			return err
		}
		if payload.Cleanup {
			if _, err := w.cleaner.Run(ctx, false); err != nil {
				return fmt.Errorf("cleanup after sync: %w", err)
			}
		}
		return nil

	case TaskCleanup:
		var payload CleanupPayload
		if err := json.Unmarshal([]byte(task.PayloadJSON), &payload); err != nil {
			return apperr.InvalidInput("parsing "+task.Type+" payload", err)
		}
		_, err := w.cleaner.Run(ctx, payload.DryRun)
		return err

	default:
		return apperr.InvalidInput(fmt.Sprintf("unknown task type %q", task.Type), nil)
	}
}
