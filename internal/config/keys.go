package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	// secretName is the entry in secrets.json for secret keys.
	secretName string
	apply      func(cfg *Config, v any)
	extract    func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "NARABOARD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.bind", typ: kString, env: "NARABOARD_SERVER_BIND",
		apply:   func(cfg *Config, v any) { cfg.Server.Bind = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Bind },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "NARABOARD_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "server.admin_token", typ: kString, env: "NARABOARD_ADMIN_TOKEN",
		secret: true, secretName: "admin_token",
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "NARABOARD_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "NARABOARD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "upstream.base_url", typ: kString, env: "NARABOARD_UPSTREAM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Upstream.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Upstream.BaseURL },
	},
	{
		key: "upstream.service_key", typ: kString, env: "NARABOARD_SERVICE_KEY",
		secret: true, secretName: "service_key",
		apply:   func(cfg *Config, v any) { cfg.Upstream.ServiceKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Upstream.ServiceKey },
	},
	{
		key: "upstream.timeout", typ: kDuration, env: "NARABOARD_UPSTREAM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Upstream.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Upstream.Timeout },
	},
	{
		key: "upstream.download_base_url", typ: kString, env: "NARABOARD_DOWNLOAD_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Upstream.DownloadBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Upstream.DownloadBaseURL },
	},
	{
		key: "ingest.page_size", typ: kInt, env: "NARABOARD_INGEST_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Ingest.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.PageSize },
	},
	{
		key: "ingest.max_pages", typ: kInt, env: "NARABOARD_INGEST_MAX_PAGES",
		apply:   func(cfg *Config, v any) { cfg.Ingest.MaxPages = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.MaxPages },
	},
	{
		key: "ingest.max_items", typ: kInt, env: "NARABOARD_INGEST_MAX_ITEMS",
		apply:   func(cfg *Config, v any) { cfg.Ingest.MaxItems = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.MaxItems },
	},
	{
		key: "ingest.throttle", typ: kDuration, env: "NARABOARD_INGEST_THROTTLE",
		apply:   func(cfg *Config, v any) { cfg.Ingest.Throttle = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ingest.Throttle },
	},
	{
		key: "ingest.pdf_fallback", typ: kBool, env: "NARABOARD_INGEST_PDF_FALLBACK",
		apply:   func(cfg *Config, v any) { cfg.Ingest.PDFFallback = v.(bool) },
		extract: func(cfg Config) any { return cfg.Ingest.PDFFallback },
	},
	{
		key: "cleanup.retention_days", typ: kInt, env: "NARABOARD_RETENTION_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Cleanup.RetentionDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Cleanup.RetentionDays },
	},
	{
		key: "cleanup.delete_batch", typ: kInt, env: "NARABOARD_DELETE_BATCH",
		apply:   func(cfg *Config, v any) { cfg.Cleanup.DeleteBatch = v.(int) },
		extract: func(cfg Config) any { return cfg.Cleanup.DeleteBatch },
	},
	{
		key: "schedule.sync_interval", typ: kDuration, env: "NARABOARD_SYNC_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Schedule.SyncInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Schedule.SyncInterval },
	},
	{
		key: "schedule.cleanup_interval", typ: kDuration, env: "NARABOARD_CLEANUP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Schedule.CleanupInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Schedule.CleanupInterval },
	},
	{
		key: "cache.redis_url", typ: kString, env: "NARABOARD_REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisURL },
	},
	{
		key: "cache.ttl", typ: kDuration, env: "NARABOARD_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.TTL },
	},
	{
		key: "events.nats_url", typ: kString, env: "NARABOARD_NATS_URL",
		apply:   func(cfg *Config, v any) { cfg.Events.NATSURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.NATSURL },
	},
	{
		key: "api.default_limit", typ: kInt, env: "NARABOARD_API_DEFAULT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.API.DefaultLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.API.DefaultLimit },
	},
	{
		key: "api.max_limit", typ: kInt, env: "NARABOARD_API_MAX_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.API.MaxLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.API.MaxLimit },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applySecrets fills secrets still empty after env overrides from the store.
func applySecrets(cfg *Config, secrets secretStore) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := secrets.Get(s.secretName); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}
