package storage

import (
	"fmt"

	"github.com/google/uuid"
)

// RecordRun stores a finished pipeline run. An empty ID is assigned a UUID.
func (s *Store) RecordRun(r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CountsJSON == "" {
		r.CountsJSON = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (id, kind, started_at, finished_at, counts_json, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.CountsJSON, r.Error,
	)
	if err != nil {
		return "", fmt.Errorf("recording %s run: %w", r.Kind, err)
	}
	return r.ID, nil
}

// RecentRuns returns the latest runs, newest first. An empty kind matches all.
func (s *Store) RecentRuns(kind string, limit int) ([]Run, error) {
	query := `SELECT id, kind, started_at, finished_at, counts_json, error FROM pipeline_runs`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Kind, &started, &finished, &r.CountsJSON, &r.Error); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parsing started_at for run %s: %w", r.ID, err)
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("parsing finished_at for run %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
