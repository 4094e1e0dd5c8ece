package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// EngineConfig controls edit history and preview rendering.
type EngineConfig struct {
	HistoryCap int
	Redo       bool
	// Strict returns programmer errors to callers instead of logging them as no-ops.
	Strict        bool
	ThumbScale    float64
	ThumbMaxWidth int
	RenderWorkers int
}

// StorageConfig defines optional S3 persistence of compiled outputs.
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Password        string
	Prefix          string
}

// ResultsConfig defines where compiled results wait for download.
type ResultsConfig struct {
	RedisURL string
	TTL      time.Duration
}

// ServerConfig defines the HTTP surface.
type ServerConfig struct {
	Port           string
	MaxUploadMB    int
	SessionIdle    time.Duration
	FetchTimeout   time.Duration
	CompileTimeout time.Duration

	// AllowLocalSources lets source_ref name files on the server host.
	AllowLocalSources bool

	// MaxCompiles bounds concurrent compiles; extra requests get 429.
	MaxCompiles      int
	UploadBackoff    time.Duration
	UploadMaxBackoff time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Engine  EngineConfig
	Storage StorageConfig
	Results ResultsConfig
	Server  ServerConfig
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) Config {
	// missing .env files are normal outside development
	_ = godotenv.Load(files...)
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pageset.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pageset",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Engine = EngineConfig{
		HistoryCap:    parseInt(getEnv("HISTORY_CAP", "50"), 50),
		Redo:          parseBool(getEnv("HISTORY_REDO", "false")),
		Strict:        parseBool(getEnv("STRICT_ENGINE", "false")),
		ThumbScale:    parseFloat(getEnv("THUMB_SCALE", "0.5"), 0.5),
		ThumbMaxWidth: parseInt(getEnv("THUMB_MAX_WIDTH", "400"), 400),
		RenderWorkers: parseInt(getEnv("RENDER_WORKERS", "4"), 4),
	}
	if cfg.Engine.HistoryCap <= 0 {
		cfg.Engine.HistoryCap = 50
	}

	cfg.Storage = StorageConfig{
		Bucket:          getEnv("S3_BUCKET", ""),
		Region:          getEnv("AWS_REGION", ""),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		Password:        getEnv("ENCRYPTION_PASSWORD", ""),
		Prefix:          strings.Trim(getEnv("S3_PREFIX", "pageset"), "/"),
	}
	cfg.Storage.Enabled = cfg.Storage.Bucket != ""

	cfg.Results = ResultsConfig{
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		TTL:      parseDuration(getEnv("RESULT_TTL", "1h"), time.Hour),
	}

	cfg.Server = ServerConfig{
		Port:           getEnv("PORT", "8080"),
		MaxUploadMB:    parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100),
		SessionIdle:    parseDuration(getEnv("SESSION_IDLE_TIMEOUT", "30m"), 30*time.Minute),
		FetchTimeout:   parseDuration(getEnv("FETCH_TIMEOUT", "60s"), 60*time.Second),
		CompileTimeout: parseDuration(getEnv("COMPILE_TIMEOUT", "120s"), 120*time.Second),

		AllowLocalSources: parseBool(getEnv("ALLOW_LOCAL_SOURCES", "false")),
		MaxCompiles:       parseInt(getEnv("MAX_CONCURRENT_COMPILES", "4"), 4),
		UploadBackoff:     parseDuration(getEnv("UPLOAD_BACKOFF", "30s"), 30*time.Second),
		UploadMaxBackoff:  parseDuration(getEnv("UPLOAD_MAX_BACKOFF", "5m"), 5*time.Minute),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
