package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Log      LogConfig
	Upstream UpstreamConfig
	Ingest   IngestConfig
	Cleanup  CleanupConfig
	Schedule ScheduleConfig
	Cache    CacheConfig
	Events   EventsConfig
	API      APIConfig
}

type ServerConfig struct {
	Port           int
	Bind           string
	AllowedOrigins string
	AdminToken     string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type UpstreamConfig struct {
	BaseURL         string
	ServiceKey      string
	Timeout         time.Duration
	DownloadBaseURL string
}

type IngestConfig struct {
	PageSize    int
	MaxPages    int
	MaxItems    int
	Throttle    time.Duration
	PDFFallback bool
}

type CleanupConfig struct {
	RetentionDays int
	DeleteBatch   int
}

type ScheduleConfig struct {
	SyncInterval    time.Duration
	CleanupInterval time.Duration
}

type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

type EventsConfig struct {
	NATSURL string
}

type APIConfig struct {
	DefaultLimit int
	MaxLimit     int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           8001,
			Bind:           "127.0.0.1",
			AllowedOrigins: "*",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Upstream: UpstreamConfig{
			BaseURL:         "http://openapi.mpm.go.kr/openapi/service/RetrievePblinsttEmpmnInfoService",
			Timeout:         15 * time.Second,
			DownloadBaseURL: "https://www.gojobs.go.kr",
		},
		Ingest: IngestConfig{
			PageSize: 20,
			MaxPages: 10,
			MaxItems: 500,
			Throttle: 500 * time.Millisecond,
		},
		Cleanup: CleanupConfig{
			RetentionDays: 30,
			DeleteBatch:   50,
		},
		Schedule: ScheduleConfig{
			SyncInterval:    time.Hour,
			CleanupInterval: 24 * time.Hour,
		},
		Cache: CacheConfig{
			TTL: 10 * time.Minute,
		},
		API: APIConfig{
			DefaultLimit: 20,
			MaxLimit:     100,
		},
	}
}

// DBPath is the SQLite database file inside the data directory.
func (c Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "naraboard.db")
}

// RequireServiceKey fails when no upstream service key is configured.
func (c Config) RequireServiceKey() error {
	if c.Upstream.ServiceKey == "" {
		return fmt.Errorf("missing required config: upstream service key. " +
			"Set it via environment variable NARABOARD_SERVICE_KEY or %s", secretsFilePath())
	}
	return nil
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/naraboard/config.json, then a .env file in the working
// directory, then NARABOARD_* environment variables. Secrets come from the
// environment or $XDG_DATA_HOME/naraboard/secrets.json.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()), secretsFile{path: secretsFilePath()})
}

// secretStore abstracts secret lookup for testing.
type secretStore interface {
	Get(name string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if cfg.Cleanup.RetentionDays <= 0 {
		return Config{}, fmt.Errorf("cleanup.retention_days must be positive, got %d", cfg.Cleanup.RetentionDays)
	}
	if cfg.API.DefaultLimit <= 0 || cfg.API.MaxLimit < cfg.API.DefaultLimit {
		return Config{}, fmt.Errorf("api limits invalid: default %d, max %d", cfg.API.DefaultLimit, cfg.API.MaxLimit)
	}
	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "naraboard-data"
		}
	}
	return filepath.Join(dir, "naraboard")
}
