package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Posting is a normalized public-sector job posting keyed by the upstream id.
type Posting struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Department   string       `json:"department"`
	RegisteredOn string       `json:"registeredOn"`
	ExpiresOn    string       `json:"expiresOn"`
	ReadCount    int          `json:"readCount"`
	Grade        string       `json:"grade"`
	WorkRegion   string       `json:"workRegion"`
	ExtraInfo    string       `json:"extraInfo"`
	AreaCode     string       `json:"areaCode"`
	Body         string       `json:"body"`
	Attachments  []Attachment `json:"attachments"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

type Attachment struct {
	Filename    string `json:"filename"`
	SourcePath  string `json:"sourcePath"`
	DownloadURL string `json:"downloadUrl"`
	Size        int64  `json:"size"`
}

// ListQuery selects a page of postings. Search matches title or department.
type ListQuery struct {
	Page   int
	Limit  int
	Search string
}

type Task struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Run is one recorded execution of a pipeline.
type Run struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	CountsJSON string    `json:"counts"`
	Error      string    `json:"error,omitempty"`
}
