package ingest

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/kalambet/naraboard/internal/storage"
)

const (
	TaskSync    = "sync"
	TaskCleanup = "cleanup"
)

// SyncPayload is the payload of a sync task. Zero fields take the
// pipeline defaults.
type SyncPayload struct {
	Pages    int  `json:"pages"`
	Size     int  `json:"size"`
	MaxItems int  `json:"maxItems,omitempty"`
	Cleanup  bool `json:"cleanup,omitempty"`
}

// CleanupPayload is the payload of a cleanup task.
type CleanupPayload struct {
	DryRun bool `json:"dryRun,omitempty"`
}

// NewSyncTask builds a pending sync task with a fresh id.
func NewSyncTask(p SyncPayload) storage.Task {
	return newTask(TaskSync, p)
}

// NewCleanupTask builds a pending cleanup task with a fresh id.
func NewCleanupTask(p CleanupPayload) storage.Task {
	return newTask(TaskCleanup, p)
}

func newTask(taskType string, payload any) storage.Task {
	b, _ := json.Marshal(payload)
	return storage.Task{
		ID:          uuid.New().String(),
		Type:        taskType,
		PayloadJSON: string(b),
	}
}
