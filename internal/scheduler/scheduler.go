// Package scheduler enqueues periodic sync and cleanup tasks.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/naraboard/internal/ingest"
	"github.com/kalambet/naraboard/internal/storage"
)

// Queue is the task queue the scheduler feeds.
type Queue interface {
	EnqueueTask(task storage.Task) error
	HasOpenTask(taskType string) (bool, error)
}

type Options struct {
	// SyncInterval <= 0 disables periodic sync.
	SyncInterval time.Duration
	// CleanupInterval <= 0 disables periodic cleanup.
	CleanupInterval time.Duration
	Sync            ingest.SyncPayload
}

type Scheduler struct {
	queue  Queue
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	isActive bool
}

func New(queue Queue, opts Options) *Scheduler {
	return &Scheduler{queue: queue, opts: opts, logger: slog.Default()}
}

// Start enqueues a sync task right away, then one per SyncInterval, and a
// cleanup task per CleanupInterval. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isActive {
		s.mu.Unlock()
		return nil
	}
	s.isActive = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.isActive = false
		s.mu.Unlock()
	}()

	syncC := tick(s.opts.SyncInterval)
	cleanupC := tick(s.opts.CleanupInterval)
	if syncC.C == nil && cleanupC.C == nil {
		s.logger.Info("scheduler disabled")
		<-ctx.Done()
		return nil
	}
	defer syncC.stop()
	defer cleanupC.stop()

	if syncC.C != nil {
		s.enqueue(ingest.TaskSync)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-syncC.C:
			s.enqueue(ingest.TaskSync)
		case <-cleanupC.C:
			s.enqueue(ingest.TaskCleanup)
		}
	}
}

func (s *Scheduler) enqueue(taskType string) {
	queued, err := s.Enqueue(taskType)
	if err != nil {
		s.logger.Error("scheduling task failed", "type", taskType, "error", err)
		return
	}
	if !queued {
		s.logger.Debug("task already pending, skipping", "type", taskType)
	}
}

// Enqueue adds a task of taskType unless one is already pending or running.
// Reports whether a task was added.
func (s *Scheduler) Enqueue(taskType string) (bool, error) {
	open, err := s.queue.HasOpenTask(taskType)
	if err != nil {
		return false, fmt.Errorf("checking open %s tasks: %w", taskType, err)
	}
	if open {
		return false, nil
	}

	var task storage.Task
	switch taskType {
	case ingest.TaskSync:
		task = ingest.NewSyncTask(s.opts.Sync)
	case ingest.TaskCleanup:
		task = ingest.NewCleanupTask(ingest.CleanupPayload{})
	default:
		return false, fmt.Errorf("unknown task type %q", taskType)
	}

	if err := s.queue.EnqueueTask(task); err != nil {
		return false, fmt.Errorf("enqueueing %s task: %w", taskType, err)
	}
	s.logger.Info("task scheduled", "type", taskType, "task_id", task.ID)
	return true, nil
}

// ticker wraps time.Ticker so a disabled interval yields a nil channel.
type ticker struct {
	t *time.Ticker
	C <-chan time.Time
}

func tick(d time.Duration) ticker {
	if d <= 0 {
		return ticker{}
	}
	t := time.NewTicker(d)
	return ticker{t: t, C: t.C}
}

func (t ticker) stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
