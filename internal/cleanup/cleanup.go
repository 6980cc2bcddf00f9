// Package cleanup removes postings the retention policy no longer keeps.
//
// A run scans the store in bounded batches, evaluates every posting against
// one fixed "today", and deletes the stale ones in batches of at most
// DeleteBatch ids. A failure to delete one posting is logged and skipped.
package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/kalambet/naraboard/internal/apperr"
	"github.com/kalambet/naraboard/internal/events"
	"github.com/kalambet/naraboard/internal/retention"
	"github.com/kalambet/naraboard/internal/storage"
)

const (
	DefaultScanBatch   = 200
	DefaultDeleteBatch = 50
	runKind            = "cleanup"
)

// Store is the subset of storage.Store the pipeline needs.
type Store interface {
	ScanAll(batchSize int, fn func(batch []storage.Posting) error) error
	DeletePostings(ids []string) (deleted []string, failed map[string]error, err error)
	RecordRun(r storage.Run) (string, error)
}

type Options struct {
	Policy      retention.Policy
	ScanBatch   int
	DeleteBatch int
	// Now is read once per run. Defaults to time.Now.
	Now func() time.Time
}

// Result reports the counts of one run.
type Result struct {
	Today          string `json:"today"`
	DryRun         bool   `json:"dryRun"`
	Scanned        int    `json:"scanned"`
	PreservedFresh int    `json:"preservedFresh"`
	PreservedOpen  int    `json:"preservedOpen"`
	Stale          int    `json:"stale"`
	Deleted        int    `json:"deleted"`
	Failed         int    `json:"failed"`
}

type Pipeline struct {
	store  Store
	events events.Publisher
	opts   Options
	logger *slog.Logger
}

func New(store Store, pub events.Publisher, opts Options) *Pipeline {
	if opts.ScanBatch <= 0 {
		opts.ScanBatch = DefaultScanBatch
	}
	if opts.DeleteBatch <= 0 || opts.DeleteBatch > DefaultDeleteBatch {
		opts.DeleteBatch = DefaultDeleteBatch
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Pipeline{store: store, events: pub, opts: opts, logger: slog.Default()}
}

// Run evaluates every stored posting and deletes the stale ones. With dryRun
// set nothing is deleted and Stale holds the would-be deletions.
func (p *Pipeline) Run(ctx context.Context, dryRun bool) (Result, error) {
	started := p.opts.Now()
	today := retention.Today(started)
	res := Result{Today: today.Format("2006-01-02"), DryRun: dryRun}

	var stale []storage.Posting
	err := p.store.ScanAll(p.opts.ScanBatch, func(batch []storage.Posting) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, posting := range batch {
			res.Scanned++
			switch p.opts.Policy.Evaluate(today, posting.RegisteredOn, posting.ExpiresOn) {
			case retention.PreserveFresh:
				res.PreservedFresh++
			case retention.PreserveOpen:
				res.PreservedOpen++
			default:
				res.Stale++
				stale = append(stale, posting)
			}
		}
		return nil
	})
	if err != nil {
		err = p.scanError(err)
		p.record(started, res, err)
		return res, err
	}

	if !dryRun {
		if err := p.deleteStale(ctx, stale, &res); err != nil {
			p.record(started, res, err)
			return res, err
		}
	}

	p.logger.Info("cleanup finished", "today", res.Today, "dry_run", dryRun, "scanned", res.Scanned,
		"fresh", res.PreservedFresh, "open", res.PreservedOpen, "stale", res.Stale,
		"deleted", res.Deleted, "failed", res.Failed)
	p.record(started, res, nil)
	return res, nil
}

func (p *Pipeline) deleteStale(ctx context.Context, stale []storage.Posting, res *Result) error {
	byID := make(map[string]storage.Posting, len(stale))
	ids := make([]string, 0, len(stale))
	for _, s := range stale {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	for start := 0; start < len(ids); start += p.opts.DeleteBatch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+p.opts.DeleteBatch, len(ids))

		deleted, failed, err := p.store.DeletePostings(ids[start:end])
		if err != nil {
			return apperr.StoreUnavailable("deleting stale postings", err)
		}
		for id, ferr := range failed {
			res.Failed++
			p.logger.Warn("delete failed", "id", id, "error", ferr)
		}
		now := p.opts.Now().UTC()
		for _, id := range deleted {
			res.Deleted++
			s := byID[id]
			ev := events.Deleted{ID: id, RegisteredOn: s.RegisteredOn, ExpiresOn: s.ExpiresOn, At: now}
			if err := p.events.PublishDeleted(ctx, ev); err != nil {
				p.logger.Warn("publishing delete event", "id", id, "error", err)
			}
		}
	}
	return nil
}

// Status classifies every stored posting without deleting anything.
func (p *Pipeline) Status(ctx context.Context) (retention.Report, error) {
	rep := retention.NewReporter(p.opts.Policy, retention.Today(p.opts.Now()))
	err := p.store.ScanAll(p.opts.ScanBatch, func(batch []storage.Posting) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, s := range batch {
			rep.Add(retention.Entry{
				ID:           s.ID,
				Title:        s.Title,
				Department:   s.Department,
				RegisteredOn: s.RegisteredOn,
				ExpiresOn:    s.ExpiresOn,
			})
		}
		return nil
	})
	if err != nil {
		return retention.Report{}, p.scanError(err)
	}
	return rep.Report(), nil
}

func (p *Pipeline) scanError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.StoreUnavailable("scanning postings", err)
}

func (p *Pipeline) record(started time.Time, res Result, runErr error) {
	counts, err := json.Marshal(res)
	if err != nil {
		p.logger.Error("marshalling cleanup counts", "error", err)
		return
	}
	run := storage.Run{
		Kind:       runKind,
		StartedAt:  started,
		FinishedAt: p.opts.Now(),
		CountsJSON: string(counts),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if _, err := p.store.RecordRun(run); err != nil {
		p.logger.Error("recording cleanup run", "error", err)
	}
}
