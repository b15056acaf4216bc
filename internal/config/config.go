package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Tracker    TrackerConfig
	Notify     NotifyConfig
	Enrichment EnrichmentConfig
	App        AppConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StorageConfig selects and configures the redirect store.
// When DatabaseURL is set the PostgreSQL backend is used instead of the JSON file.
type StorageConfig struct {
	DataDir         string
	StoreFile       string
	ResultsDir      string
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MaxHitsPerSlug  int
}

// RedisConfig holds the connection string shared by the job queue,
// the rate limiter and the redirect cache. Empty disables all three.
type RedisConfig struct {
	URL           string
	ConsumerGroup string
	CacheTTL      time.Duration
}

// TrackerConfig holds the conversion and holding page settings
type TrackerConfig struct {
	PublicBase       string
	AppendAllowlist  []string
	HookToken        string
	InterstitialWait int
}

// NotifyConfig holds notification sink settings
type NotifyConfig struct {
	WebhookURL  string
	Timeout     time.Duration
	Workers     int
	QueueSize   int
	IPInfoToken string
	GeoIPDB     string
	GeoTimeout  time.Duration
}

// EnrichmentConfig holds settings for the external enrichment tool
type EnrichmentConfig struct {
	ToolDir     string
	ToolCommand string
	Timeout     time.Duration
	RetryDelay  time.Duration
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Environment        string
	LogLevel           string
	LogFormat          string
	RateLimitEnabled   bool
	RateLimitPerMinute int
	EnableMetrics      bool
}

var defaults = map[string]any{
	"SERVER_PORT":          "5000",
	"SERVER_READ_TIMEOUT":  "10s",
	"SERVER_WRITE_TIMEOUT": "10s",
	"SERVER_IDLE_TIMEOUT":  "120s",

	"DATA_DIR":             "tracker_data",
	"STORE_FILE":           "",
	"RESULTS_DIR":          "",
	"DATABASE_URL":         "",
	"DB_MAX_OPEN_CONNS":    10,
	"DB_MAX_IDLE_CONNS":    2,
	"DB_CONN_MAX_LIFETIME": "5m",
	"HITS_MAX_PER_SLUG":    0,

	"REDIS_URL":            "",
	"REDIS_CONSUMER_GROUP": "tracker_enrichment",
	"REDIS_CACHE_TTL":      "1h",

	"PUBLIC_BASE":        "http://localhost:5000",
	"APPEND_WHITELIST":   "github.com,example.com",
	"HOOK_TOKEN":         "",
	"INTERSTITIAL_DELAY": 5,

	"DISCORD_WEBHOOK":   "",
	"NOTIFY_TIMEOUT":    "8s",
	"NOTIFY_WORKERS":    4,
	"NOTIFY_QUEUE_SIZE": 256,
	"IPINFO_TOKEN":      "",
	"GEOIP_DB":          "",
	"GEO_TIMEOUT":       "6s",

	"ENRICH_TOOL_DIR":     filepath.Join(".tools", "sherlock"),
	"ENRICH_TOOL_COMMAND": "python3 sherlock {identifier} --output {output}",
	"ENRICH_TIMEOUT":      "600s",
	"ENRICH_RETRY_DELAY":  "30s",

	"APP_ENV":                        "development",
	"LOG_LEVEL":                      "info",
	"LOG_FORMAT":                     "json",
	"RATE_LIMIT_ENABLED":             true,
	"RATE_LIMIT_REQUESTS_PER_MINUTE": 60,
	"ENABLE_METRICS":                 true,
}

// Load reads configuration from environment variables, optionally seeded by a
// dotenv-style file. Real environment variables always win over the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", envFile, err)
		}
	}

	dataDir := v.GetString("DATA_DIR")
	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
		},
		Storage: StorageConfig{
			DataDir:         dataDir,
			StoreFile:       orDefault(v.GetString("STORE_FILE"), filepath.Join(dataDir, "store.json")),
			ResultsDir:      orDefault(v.GetString("RESULTS_DIR"), filepath.Join(dataDir, "results")),
			DatabaseURL:     v.GetString("DATABASE_URL"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			MaxHitsPerSlug:  v.GetInt("HITS_MAX_PER_SLUG"),
		},
		Redis: RedisConfig{
			URL:           v.GetString("REDIS_URL"),
			ConsumerGroup: v.GetString("REDIS_CONSUMER_GROUP"),
			CacheTTL:      v.GetDuration("REDIS_CACHE_TTL"),
		},
		Tracker: TrackerConfig{
			PublicBase:       strings.TrimRight(v.GetString("PUBLIC_BASE"), "/"),
			AppendAllowlist:  splitList(v.GetString("APPEND_WHITELIST")),
			HookToken:        v.GetString("HOOK_TOKEN"),
			InterstitialWait: v.GetInt("INTERSTITIAL_DELAY"),
		},
		Notify: NotifyConfig{
			WebhookURL:  v.GetString("DISCORD_WEBHOOK"),
			Timeout:     v.GetDuration("NOTIFY_TIMEOUT"),
			Workers:     v.GetInt("NOTIFY_WORKERS"),
			QueueSize:   v.GetInt("NOTIFY_QUEUE_SIZE"),
			IPInfoToken: v.GetString("IPINFO_TOKEN"),
			GeoIPDB:     v.GetString("GEOIP_DB"),
			GeoTimeout:  v.GetDuration("GEO_TIMEOUT"),
		},
		Enrichment: EnrichmentConfig{
			ToolDir:     v.GetString("ENRICH_TOOL_DIR"),
			ToolCommand: v.GetString("ENRICH_TOOL_COMMAND"),
			Timeout:     v.GetDuration("ENRICH_TIMEOUT"),
			RetryDelay:  v.GetDuration("ENRICH_RETRY_DELAY"),
		},
		App: AppConfig{
			Environment:        v.GetString("APP_ENV"),
			LogLevel:           v.GetString("LOG_LEVEL"),
			LogFormat:          v.GetString("LOG_FORMAT"),
			RateLimitEnabled:   v.GetBool("RATE_LIMIT_ENABLED"),
			RateLimitPerMinute: v.GetInt("RATE_LIMIT_REQUESTS_PER_MINUTE"),
			EnableMetrics:      v.GetBool("ENABLE_METRICS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("SERVER_PORT must not be empty")
	}
	if c.Tracker.PublicBase == "" {
		return errors.New("PUBLIC_BASE must not be empty")
	}
	if c.Tracker.InterstitialWait < 0 {
		return fmt.Errorf("INTERSTITIAL_DELAY must not be negative, got %d", c.Tracker.InterstitialWait)
	}
	if c.Storage.MaxHitsPerSlug < 0 {
		return fmt.Errorf("HITS_MAX_PER_SLUG must not be negative, got %d", c.Storage.MaxHitsPerSlug)
	}
	if c.Notify.Workers < 1 || c.Notify.QueueSize < 1 {
		return errors.New("NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be positive")
	}
	return nil
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
