package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/kalambet/naraboard/internal/apperr"
	"github.com/kalambet/naraboard/internal/events"
	"github.com/kalambet/naraboard/internal/storage"
)

// 2025-06-01 09:00 KST.
var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type recordingEvents struct {
	events.Noop
	deleted []string
}

func (r *recordingEvents) PublishDeleted(_ context.Context, e events.Deleted) error {
	r.deleted = append(r.deleted, e.ID)
	return nil
}

func seed(t *testing.T, s *storage.Store) {
	t.Helper()
	rows := []storage.Posting{
		{ID: "fresh", RegisteredOn: "2025-05-20"},
		{ID: "open", RegisteredOn: "2025-01-01", ExpiresOn: "2025-07-01"},
		{ID: "closes-today", RegisteredOn: "2025.01.01", ExpiresOn: "20250601"},
		{ID: "stale", RegisteredOn: "2025-01-01", ExpiresOn: "2025-02-01"},
		{ID: "stale-no-expiry", RegisteredOn: "20250101"},
		{ID: "stale-bad-expiry", RegisteredOn: "2025-01-01", ExpiresOn: "soon"},
		{ID: "undated", RegisteredOn: "", ExpiresOn: "2020-01-01"},
	}
	if _, _, err := s.BatchUpsert(rows); err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
}

func TestRun_DeletesOnlyStale(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ev := &recordingEvents{}

	p := New(s, ev, Options{Now: clock, ScanBatch: 2})
	res, err := p.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := Result{Today: "2025-06-01", Scanned: 7, PreservedFresh: 2, PreservedOpen: 2, Stale: 3, Deleted: 3}
	if res != want {
		t.Errorf("Result = %+v, want %+v", res, want)
	}

	for _, id := range []string{"fresh", "open", "closes-today", "undated"} {
		if _, err := s.GetPosting(id); err != nil {
			t.Errorf("posting %s should survive: %v", id, err)
		}
	}
	for _, id := range []string{"stale", "stale-no-expiry", "stale-bad-expiry"} {
		if _, err := s.GetPosting(id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("posting %s should be deleted, got %v", id, err)
		}
	}

	sort.Strings(ev.deleted)
	if fmt.Sprint(ev.deleted) != "[stale stale-bad-expiry stale-no-expiry]" {
		t.Errorf("delete events = %v", ev.deleted)
	}

	runs, err := s.RecentRuns("cleanup", 5)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentRuns = %v, %v; want one run", runs, err)
	}
	if runs[0].Error != "" {
		t.Errorf("run error = %q", runs[0].Error)
	}
}

func TestRun_DryRunKeepsEverything(t *testing.T) {
	s := openStore(t)
	seed(t, s)

	res, err := New(s, nil, Options{Now: clock}).Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.DryRun || res.Stale != 3 || res.Deleted != 0 {
		t.Errorf("Result = %+v", res)
	}
	if n, _ := s.CountPostings(); n != 7 {
		t.Errorf("CountPostings = %d, want 7", n)
	}
}

func TestRun_Idempotent(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	p := New(s, nil, Options{Now: clock})

	if _, err := p.Run(context.Background(), false); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	res, err := p.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Stale != 0 || res.Deleted != 0 || res.Scanned != 4 {
		t.Errorf("second Result = %+v", res)
	}
}

// fakeStore serves a fixed set of postings and fails deletes for chosen ids.
type fakeStore struct {
	postings  []storage.Posting
	failIDs   map[string]bool
	batches   [][]string
	scanErr   error
	deleteErr error
	runs      []storage.Run
}

func (f *fakeStore) ScanAll(batchSize int, fn func([]storage.Posting) error) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	for i := 0; i < len(f.postings); i += batchSize {
		if err := fn(f.postings[i:min(i+batchSize, len(f.postings))]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) DeletePostings(ids []string) ([]string, map[string]error, error) {
	if f.deleteErr != nil {
		return nil, nil, f.deleteErr
	}
	f.batches = append(f.batches, append([]string(nil), ids...))
	failed := map[string]error{}
	var deleted []string
	for _, id := range ids {
		if f.failIDs[id] {
			failed[id] = errors.New("constraint violation")
			continue
		}
		deleted = append(deleted, id)
	}
	return deleted, failed, nil
}

func (f *fakeStore) RecordRun(r storage.Run) (string, error) {
	f.runs = append(f.runs, r)
	return "run-1", nil
}

func stalePostings(n int) []storage.Posting {
	out := make([]storage.Posting, n)
	for i := range out {
		out[i] = storage.Posting{ID: fmt.Sprintf("s%03d", i), RegisteredOn: "2024-01-01"}
	}
	return out
}

func TestRun_BatchesDeletesAndIsolatesFailures(t *testing.T) {
	f := &fakeStore{postings: stalePostings(120), failIDs: map[string]bool{"s005": true, "s070": true}}

	res, err := New(f, nil, Options{Now: clock}).Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.batches) != 3 {
		t.Fatalf("delete batches = %d, want 3", len(f.batches))
	}
	for i, b := range f.batches {
		if len(b) > DefaultDeleteBatch {
			t.Errorf("batch %d has %d ids, want <= %d", i, len(b), DefaultDeleteBatch)
		}
	}
	if res.Deleted != 118 || res.Failed != 2 {
		t.Errorf("Deleted/Failed = %d/%d, want 118/2", res.Deleted, res.Failed)
	}
}

func TestRun_DeleteBatchIsCapped(t *testing.T) {
	f := &fakeStore{postings: stalePostings(60)}
	if _, err := New(f, nil, Options{Now: clock, DeleteBatch: 500}).Run(context.Background(), false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.batches) != 2 || len(f.batches[0]) != DefaultDeleteBatch {
		t.Errorf("batches = %d (first %d)", len(f.batches), len(f.batches[0]))
	}
}

func TestRun_ScanFailureIsStoreUnavailable(t *testing.T) {
	f := &fakeStore{scanErr: errors.New("database is locked")}

	_, err := New(f, nil, Options{Now: clock}).Run(context.Background(), false)
	if !apperr.Is(err, apperr.KindStoreUnavailable) {
		t.Fatalf("err = %v, want StoreUnavailable", err)
	}
	if len(f.runs) != 1 || f.runs[0].Error == "" {
		t.Errorf("failed run not recorded: %+v", f.runs)
	}
}

func TestRun_BatchCommitFailureIsFatal(t *testing.T) {
	f := &fakeStore{postings: stalePostings(3), deleteErr: errors.New("disk I/O error")}

	_, err := New(f, nil, Options{Now: clock}).Run(context.Background(), false)
	if !apperr.Is(err, apperr.KindStoreUnavailable) {
		t.Errorf("err = %v, want StoreUnavailable", err)
	}
}

func TestRun_TodayFixedOncePerRun(t *testing.T) {
	calls := 0
	// Crosses midnight KST after the first read.
	now := func() time.Time {
		calls++
		if calls == 1 {
			return time.Date(2025, 6, 1, 14, 59, 0, 0, time.UTC)
		}
		return time.Date(2025, 6, 1, 15, 1, 0, 0, time.UTC)
	}
	f := &fakeStore{postings: []storage.Posting{
		{ID: "a", RegisteredOn: "2025-05-03"},
		{ID: "b", RegisteredOn: "2025-05-03"},
	}}

	res, err := New(f, nil, Options{Now: now, ScanBatch: 1}).Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Today != "2025-06-01" || res.PreservedFresh != 2 {
		t.Errorf("Result = %+v, want both fresh as of 2025-06-01", res)
	}
}

func TestStatus(t *testing.T) {
	s := openStore(t)
	seed(t, s)

	rep, err := New(s, nil, Options{Now: clock}).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rep.Total != 7 || rep.Stale != 3 || rep.Open != 2 || rep.Fresh != 2 {
		t.Errorf("report = %+v", rep)
	}
	if rep.UnparsedDates != 1 {
		t.Errorf("UnparsedDates = %d, want 1", rep.UnparsedDates)
	}
	if n, _ := s.CountPostings(); n != 7 {
		t.Errorf("Status deleted postings: %d left", n)
	}
}
