package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/naraboard/internal/api"
	"github.com/kalambet/naraboard/internal/cache"
	"github.com/kalambet/naraboard/internal/cleanup"
	"github.com/kalambet/naraboard/internal/config"
	"github.com/kalambet/naraboard/internal/events"
	"github.com/kalambet/naraboard/internal/ingest"
	"github.com/kalambet/naraboard/internal/retention"
	"github.com/kalambet/naraboard/internal/storage"
	"github.com/kalambet/naraboard/internal/upstream"
)

// app wires the store, the upstream client and both pipelines from config.
type app struct {
	cfg     config.Config
	store   *storage.Store
	ingest  *ingest.Pipeline
	cleanup *cleanup.Pipeline
	cache   cache.Cache
	events  events.Publisher
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	return openApp(cfg)
}

func openApp(cfg config.Config) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &app{cfg: cfg, store: store, cache: cache.Noop{}, events: events.Noop{}}

	if cfg.Cache.RedisURL != "" {
		c, err := cache.NewRedis(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			slog.Warn("redis cache unavailable, continuing without cache", "error", err)
		} else {
			a.cache = c
		}
	}
	if cfg.Events.NATSURL != "" {
		p, err := events.NewNATS(cfg.Events.NATSURL)
		if err != nil {
			slog.Warn("nats unavailable, continuing without events", "error", err)
		} else {
			a.events = p
		}
	}

	client := upstream.New(upstream.Options{
		BaseURL:    cfg.Upstream.BaseURL,
		ServiceKey: cfg.Upstream.ServiceKey,
		Timeout:    cfg.Upstream.Timeout,
	})
	a.ingest = ingest.NewPipeline(client, store, a.events, ingest.Options{
		DownloadBase: cfg.Upstream.DownloadBaseURL,
		Throttle:     cfg.Ingest.Throttle,
		PDFFallback:  cfg.Ingest.PDFFallback,
	})
	a.cleanup = cleanup.New(store, a.events, cleanup.Options{
		Policy:      retention.Policy{Window: time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour},
		DeleteBatch: cfg.Cleanup.DeleteBatch,
	})
	return a, nil
}

func (a *app) syncDefaults() ingest.SyncPayload {
	return ingest.SyncPayload{
		Pages:    a.cfg.Ingest.MaxPages,
		Size:     a.cfg.Ingest.PageSize,
		MaxItems: a.cfg.Ingest.MaxItems,
	}
}

func (a *app) handlerDeps() api.Deps {
	return api.Deps{
		Store:          a.store,
		Syncer:         a.ingest,
		Cleaner:        a.cleanup,
		Cache:          a.cache,
		AdminToken:     a.cfg.Server.AdminToken,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		DefaultLimit:   a.cfg.API.DefaultLimit,
		MaxLimit:       a.cfg.API.MaxLimit,
		Sync:           a.syncDefaults(),
	}
}

func (a *app) mcpDeps() api.MCPDeps {
	return api.MCPDeps{Store: a.store, Cleaner: a.cleanup}
}

func (a *app) Close() {
	if err := a.events.Close(); err != nil {
		slog.Warn("closing events", "error", err)
	}
	if err := a.cache.Close(); err != nil {
		slog.Warn("closing cache", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}
