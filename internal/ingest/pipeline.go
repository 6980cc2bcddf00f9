// Package ingest pulls postings from the open-data service into the store.
//
// Each list item is normalized and enriched with its detail, attachments and
// position record. Enrichment failures are isolated to the record: it is
// stored with whatever was obtained. A failed list call is fatal for the page.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/naraboard/internal/apperr"
	"github.com/kalambet/naraboard/internal/events"
	"github.com/kalambet/naraboard/internal/normalize"
	"github.com/kalambet/naraboard/internal/pdftext"
	"github.com/kalambet/naraboard/internal/storage"
	"github.com/kalambet/naraboard/internal/upstream"
)

const (
	DefaultPageSize = 20
	DefaultMaxPages = 10
	DefaultMaxItems = 500
	DefaultThrottle = 500 * time.Millisecond

	maxPDFBytes = 10 << 20
	maxPDFPages = 3
	runKind     = "sync"
)

// Upstream is the open-data service as the pipeline consumes it.
type Upstream interface {
	ListPage(ctx context.Context, page, size int) ([]upstream.ListItem, error)
	GetDetail(ctx context.Context, id string) (*upstream.Detail, error)
	GetAttachments(ctx context.Context, id string) ([]upstream.File, error)
	GetPosition(ctx context.Context, id string) (*upstream.Position, error)
	Download(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// Store is the subset of storage.Store the pipeline writes to.
type Store interface {
	UpsertPosting(p storage.Posting) (created bool, err error)
	RecordRun(r storage.Run) (string, error)
}

type Options struct {
	DownloadBase string
	Throttle     time.Duration
	// PDFFallback downloads the first PDF attachment when a posting has no
	// body and no resolvable region.
	PDFFallback bool
	Now         func() time.Time
}

// SyncResult counts what one sync did.
type SyncResult struct {
	Pages    int `json:"pages"`
	Fetched  int `json:"fetched"`
	Stored   int `json:"stored"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Dropped  int `json:"dropped"`
	Enriched int `json:"enriched"`
	Partial  int `json:"partial"`
}

func (r *SyncResult) add(o SyncResult) {
	r.Pages += o.Pages
	r.Fetched += o.Fetched
	r.Stored += o.Stored
	r.Created += o.Created
	r.Updated += o.Updated
	r.Dropped += o.Dropped
	r.Enriched += o.Enriched
	r.Partial += o.Partial
}

type Pipeline struct {
	upstream Upstream
	store    Store
	events   events.Publisher
	limiter  *upstream.RateLimiter
	opts     Options
	logger   *slog.Logger
}

func NewPipeline(up Upstream, store Store, pub events.Publisher, opts Options) *Pipeline {
	if opts.DownloadBase == "" {
		opts.DownloadBase = normalize.DefaultDownloadBase
	}
	if opts.Throttle < 0 {
		opts.Throttle = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Pipeline{
		upstream: up,
		store:    store,
		events:   pub,
		limiter:  upstream.NewRateLimiter(opts.Throttle),
		opts:     opts,
		logger:   slog.Default(),
	}
}

// SyncPage fetches one list page and stores every usable record on it.
func (p *Pipeline) SyncPage(ctx context.Context, page, size int) (SyncResult, error) {
	return p.syncPage(ctx, page, size, 0)
}

// SyncAll walks pages from 1 until a page comes back empty or maxPages pages
// or maxItems records have been fetched. The run is recorded in the run log.
func (p *Pipeline) SyncAll(ctx context.Context, maxPages, maxItems, size int) (SyncResult, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	started := p.opts.Now()
	var total SyncResult
	var runErr error
	for page := 1; page <= maxPages && total.Fetched < maxItems; page++ {
		res, err := p.syncPage(ctx, page, size, maxItems-total.Fetched)
		total.add(res)
		if err != nil {
			runErr = fmt.Errorf("page %d: %w", page, err)
			break
		}
		if res.Fetched == 0 {
			break
		}
	}

	if runErr != nil {
		p.logger.Error("sync failed", "pages", total.Pages, "stored", total.Stored, "error", runErr)
	} else {
		p.logger.Info("sync finished", "pages", total.Pages, "fetched", total.Fetched, "stored", total.Stored,
			"created", total.Created, "dropped", total.Dropped, "partial", total.Partial)
	}
	p.record(started, total, runErr)
	return total, runErr
}

// syncPage stores at most limit records from the page; limit <= 0 means all.
func (p *Pipeline) syncPage(ctx context.Context, page, size, limit int) (SyncResult, error) {
	var res SyncResult

	items, err := p.upstream.ListPage(ctx, page, size)
	if err != nil {
		return res, err
	}
	res.Pages = 1
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	res.Fetched = len(items)

	for _, item := range items {
		if err := p.limiter.WaitTurn(ctx); err != nil {
			return res, err
		}

		if strings.TrimSpace(item.ID) == "" {
			res.Dropped++
			p.logger.Warn("dropping posting without id", "page", page, "title", item.Title,
				"error", apperr.IdentityMissing("list item without idx"))
			continue
		}

		posting, complete := p.buildPosting(ctx, item)
		created, err := p.store.UpsertPosting(posting)
		if err != nil {
			if apperr.Is(err, apperr.KindIdentityMissing) {
				res.Dropped++
				continue
			}
			return res, apperr.StoreUnavailable("storing posting "+posting.ID, err)
		}

		res.Stored++
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		if complete {
			res.Enriched++
		} else {
			res.Partial++
		}

		ev := events.Upserted{
			ID:         posting.ID,
			Title:      posting.Title,
			Department: posting.Department,
			WorkRegion: posting.WorkRegion,
			Grade:      posting.Grade,
			Created:    created,
			At:         p.opts.Now().UTC(),
		}
		if err := p.events.PublishUpserted(ctx, ev); err != nil {
			p.logger.Warn("publishing upsert event", "id", posting.ID, "error", err)
		}
	}
	return res, nil
}

// buildPosting normalizes item and enriches it. complete is false when any
// enrichment call failed.
func (p *Pipeline) buildPosting(ctx context.Context, item upstream.ListItem) (storage.Posting, bool) {
	id := strings.TrimSpace(item.ID)
	posting := storage.Posting{
		ID:           id,
		Title:        normalize.Clean(item.Title),
		Department:   normalize.Clean(item.Department),
		RegisteredOn: strings.TrimSpace(item.RegisteredOn),
		ExpiresOn:    strings.TrimSpace(item.ExpiresOn),
		ReadCount:    max(item.ReadCount, 0),
		ExtraInfo:    normalize.ExtraInfo(item.TypeInfo),
		AreaCode:     strings.TrimSpace(item.AreaCode),
		Attachments:  []storage.Attachment{},
	}
	complete := true

	var hints []string
	detail, err := p.upstream.GetDetail(ctx, id)
	if err != nil {
		complete = false
		p.logger.Warn("detail unavailable", "id", id, "error", err)
	}
	if detail != nil {
		if t := normalize.Clean(detail.Title); t != "" {
			posting.Title = t
		}
		posting.Body = detail.Body
		if posting.AreaCode == "" {
			posting.AreaCode = strings.TrimSpace(detail.AreaCode)
		}
		hints = append(hints, detail.WorkAddress, detail.AreaName)
	}

	files, err := p.upstream.GetAttachments(ctx, id)
	if err != nil {
		complete = false
		p.logger.Warn("attachments unavailable", "id", id, "error", err)
	}
	for _, f := range files {
		posting.Attachments = append(posting.Attachments, storage.Attachment{
			Filename:    normalize.Clean(f.Filename),
			SourcePath:  f.PathFragment,
			DownloadURL: normalize.DownloadURL(p.opts.DownloadBase, f.Filename, f.PathFragment),
			Size:        normalize.ParseSize(f.Size),
		})
	}

	text := normalize.BodyText(posting.Body)
	hints = append(hints, text)
	posting.WorkRegion = normalize.ResolveRegion(posting.AreaCode, posting.Title, strings.Join(hints, "\n"))
	posting.Grade = normalize.ResolveGrade(posting.Title, item.TypeInfo)

	if text == "" && normalize.IsUnknown(posting.WorkRegion) && p.opts.PDFFallback {
		if pdfText := p.attachmentText(ctx, posting); pdfText != "" {
			posting.WorkRegion = normalize.ResolveRegion("", "", pdfText)
			if normalize.IsUnknown(posting.Grade) {
				posting.Grade = normalize.ResolveGrade(pdfText)
			}
		}
	}

	pos, err := p.upstream.GetPosition(ctx, id)
	if err != nil {
		complete = false
		p.logger.Warn("position unavailable", "id", id, "error", err)
	}
	if pos != nil {
		if s := normalize.FormatPosition(pos.RoleName, normalize.ParseHeadcount(pos.Headcount)); s != "" {
			posting.Grade = s
		}
	}

	return posting, complete
}

// attachmentText returns the text of the first PDF attachment, or "".
func (p *Pipeline) attachmentText(ctx context.Context, posting storage.Posting) string {
	for _, a := range posting.Attachments {
		if !pdftext.IsPDF(a.Filename) || a.DownloadURL == "" {
			continue
		}
		b, err := p.upstream.Download(ctx, a.DownloadURL, maxPDFBytes)
		if err != nil {
			p.logger.Warn("attachment download failed", "id", posting.ID, "file", a.Filename, "error", err)
			return ""
		}
		text, err := pdftext.Extract(b, maxPDFPages)
		if err != nil {
			p.logger.Warn("attachment text extraction failed", "id", posting.ID, "file", a.Filename, "error", err)
			return ""
		}
		return text
	}
	return ""
}

func (p *Pipeline) record(started time.Time, res SyncResult, runErr error) {
	counts, err := json.Marshal(res)
	if err != nil {
		p.logger.Error("marshalling sync counts", "error", err)
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
		p.logger.Error("recording sync run", "error", err)
	}
}
