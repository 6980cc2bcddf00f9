package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/naraboard/internal/apperr"
	"github.com/kalambet/naraboard/internal/cache"
	"github.com/kalambet/naraboard/internal/cleanup"
	"github.com/kalambet/naraboard/internal/ingest"
	"github.com/kalambet/naraboard/internal/normalize"
	"github.com/kalambet/naraboard/internal/retention"
	"github.com/kalambet/naraboard/internal/storage"
)

// Store is the read side of storage.Store plus the task queue.
type Store interface {
	ListPostings(q storage.ListQuery) ([]storage.Posting, int, error)
	GetPosting(id string) (storage.Posting, error)
	StatsAsOf(today time.Time) (storage.Stats, error)
	EnqueueTask(task storage.Task) error
}

type Syncer interface {
	SyncAll(ctx context.Context, maxPages, maxItems, size int) (ingest.SyncResult, error)
}

type Cleaner interface {
	Run(ctx context.Context, dryRun bool) (cleanup.Result, error)
	Status(ctx context.Context) (retention.Report, error)
}

type Deps struct {
	Store   Store
	Syncer  Syncer
	Cleaner Cleaner
	Cache   cache.Cache // optional
	// AdminToken guards POST routes when set.
	AdminToken     string
	AllowedOrigins string
	DefaultLimit   int
	MaxLimit       int
	// Sync holds the page defaults for POST /jobs/sync.
	Sync ingest.SyncPayload
	Now  func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = cache.Noop{}
	}
	if d.DefaultLimit <= 0 {
		d.DefaultLimit = 20
	}
	if d.MaxLimit < d.DefaultLimit {
		d.MaxLimit = max(100, d.DefaultLimit)
	}
	if d.AllowedOrigins == "" {
		d.AllowedOrigins = "*"
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// JobList is the data of GET /jobs.
type JobList struct {
	Jobs  []storage.Posting `json:"jobs"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}

// JobContent is the data of GET /jobs/{id}/content.
type JobContent struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Department  string `json:"department"`
	Body        string `json:"body"`
	Text        string `json:"text"`
	OriginalURL string `json:"originalUrl"`
}

// TaskAccepted is the data of an async POST.
type TaskAccepted struct {
	TaskID string `json:"taskId"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// NewHandler returns the REST surface: /health and the /jobs routes.
func NewHandler(deps Deps) http.Handler {
	deps = deps.withDefaults()

	r := chi.NewRouter()
	r.Use(CORS(deps.AllowedOrigins))

	r.Get("/health", handleHealth)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", handleListJobs(deps))
		r.Get("/stats", handleStats(deps))
		r.Get("/status", handleStatus(deps))
		r.Get("/{id}", handleGetJob(deps))
		r.Get("/{id}/content", handleJobContent(deps))
		r.Get("/{id}/files", handleJobFiles(deps))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.AdminToken))
			r.Post("/sync", handleSync(deps))
			r.Post("/cleanup", handleCleanup(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := max(parseIntParam(r, "page", 1, 0), 1)
		limit := parseIntParam(r, "limit", deps.DefaultLimit, deps.MaxLimit)
		if limit == 0 {
			limit = deps.DefaultLimit
		}
		search := r.URL.Query().Get("search")

		jobs, total, err := deps.Store.ListPostings(storage.ListQuery{Page: page, Limit: limit, Search: search})
		if err != nil {
			writeError(w, apperr.StoreUnavailable("listing postings", err))
			return
		}

		respond(w, http.StatusOK, JobList{Jobs: jobs, Page: page, Limit: limit, Total: total},
			SourceStore, fmt.Sprintf("%d of %d postings", len(jobs), total))
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadPosting(w, deps, chi.URLParam(r, "id"))
		if !ok {
			return
		}
		respond(w, http.StatusOK, p, SourceStore, "")
	}
}

func handleJobFiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadPosting(w, deps, chi.URLParam(r, "id"))
		if !ok {
			return
		}
		respond(w, http.StatusOK, p.Attachments, SourceStore, fmt.Sprintf("%d attachments", len(p.Attachments)))
	}
}

func handleJobContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadPosting(w, deps, chi.URLParam(r, "id"))
		if !ok {
			return
		}
		// Keyed by revision: a rewritten posting misses and a deleted one 404s above.
		key := contentKey(p)

		var content JobContent
		if deps.Cache.Get(r.Context(), key, &content) {
			respond(w, http.StatusOK, content, SourceCache, "")
			return
		}

		content = JobContent{
			ID:          p.ID,
			Title:       p.Title,
			Department:  p.Department,
			Body:        p.Body,
			Text:        normalize.BodyText(p.Body),
			OriginalURL: normalize.OriginalURL(p.ID),
		}
		if err := deps.Cache.Set(r.Context(), key, content); err != nil {
			slog.Warn("caching content", "id", p.ID, "error", err)
		}
		respond(w, http.StatusOK, content, SourceStore, "")
	}
}

func contentKey(p storage.Posting) string {
	return "content:" + p.ID + ":" + p.UpdatedAt.UTC().Format(time.RFC3339Nano)
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		today := retention.Today(deps.Now())
		key := "stats:" + today.Format("2006-01-02")

		var st storage.Stats
		if deps.Cache.Get(r.Context(), key, &st) {
			respond(w, http.StatusOK, st, SourceCache, "")
			return
		}

		st, err := deps.Store.StatsAsOf(today)
		if err != nil {
			writeError(w, apperr.StoreUnavailable("computing stats", err))
			return
		}
		if err := deps.Cache.Set(r.Context(), key, st); err != nil {
			slog.Warn("caching stats", "error", err)
		}
		respond(w, http.StatusOK, st, SourceStore, "")
	}
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := deps.Cleaner.Status(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		respond(w, http.StatusOK, rep, SourceStore,
			fmt.Sprintf("%d postings, %d stale as of %s", rep.Total, rep.Stale, rep.Today))
	}
}

func handleSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := ingest.SyncPayload{
			Pages:    parseIntParam(r, "pages", deps.Sync.Pages, 100),
			Size:     parseIntParam(r, "size", deps.Sync.Size, 100),
			MaxItems: deps.Sync.MaxItems,
			Cleanup:  parseBoolParam(r, "cleanup"),
		}

		if parseBoolParam(r, "async") {
			enqueue(w, deps, ingest.NewSyncTask(payload))
			return
		}

		res, err := deps.Syncer.SyncAll(r.Context(), payload.Pages, payload.MaxItems, payload.Size)
		invalidate(r.Context(), deps)
		if err != nil {
			writeError(w, err)
			return
		}
		msg := fmt.Sprintf("synced %d postings from %d pages (%d new)", res.Stored, res.Pages, res.Created)
		if payload.Cleanup {
			cres, err := deps.Cleaner.Run(r.Context(), false)
			invalidate(r.Context(), deps)
			if err != nil {
				writeError(w, err)
				return
			}
			msg += fmt.Sprintf(", removed %d stale", cres.Deleted)
		}
		respond(w, http.StatusOK, res, SourceUpstream, msg)
	}
}

func handleCleanup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dryRun := parseBoolParam(r, "dryRun")

		if parseBoolParam(r, "async") {
			enqueue(w, deps, ingest.NewCleanupTask(ingest.CleanupPayload{DryRun: dryRun}))
			return
		}

		res, err := deps.Cleaner.Run(r.Context(), dryRun)
		if !dryRun {
			invalidate(r.Context(), deps)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		msg := fmt.Sprintf("deleted %d of %d stale postings", res.Deleted, res.Stale)
		if dryRun {
			msg = fmt.Sprintf("dry run: %d stale postings would be deleted", res.Stale)
		}
		respond(w, http.StatusOK, res, SourceStore, msg)
	}
}

func enqueue(w http.ResponseWriter, deps Deps, task storage.Task) {
	if err := deps.Store.EnqueueTask(task); err != nil {
		writeError(w, apperr.StoreUnavailable("enqueueing task", err))
		return
	}
	respond(w, http.StatusAccepted, TaskAccepted{TaskID: task.ID, Type: task.Type, Status: "queued"},
		SourceStore, fmt.Sprintf("%s task queued", task.Type))
}

func loadPosting(w http.ResponseWriter, deps Deps, id string) (storage.Posting, bool) {
	p, err := deps.Store.GetPosting(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, string(apperr.KindNotFound), "job %s not found", id)
		return storage.Posting{}, false
	}
	if err != nil {
		writeError(w, apperr.StoreUnavailable("loading posting "+id, err))
		return storage.Posting{}, false
	}
	return p, true
}

// invalidate drops cached stats after the store changed.
func invalidate(ctx context.Context, deps Deps) {
	key := "stats:" + retention.Today(deps.Now()).Format("2006-01-02")
	if err := deps.Cache.Delete(ctx, key); err != nil {
		slog.Warn("invalidating stats cache", "error", err)
	}
}
