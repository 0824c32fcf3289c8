// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/cloneai/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Server: listen address, CORS origins, rate limiting
//   - Storage: PostgreSQL connection (see storage.go)
//   - Backend: external RAG backend base URL and credentials
//   - AI: provider, model, embedder for the fallback path
//   - Observability: OTLP trace export
//
// Sensitive values (passwords, API keys) are never logged.
// Validation lives in validation.go and returns sentinel errors so callers
// can check categories with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidBackendURL indicates the RAG backend URL is invalid.
	ErrInvalidBackendURL = errors.New("invalid backend URL")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidListenAddr indicates the HTTP listen address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidRetryPolicy indicates the retry settings are out of range.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// Sensitive fields must never be written to logs.
type Config struct {
	// HTTP server
	ListenAddr  string   `mapstructure:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst   int      `mapstructure:"rate_burst"`  // per-IP burst size (0 = default)

	// External RAG backend
	BackendURL     string        `mapstructure:"backend_url"`
	BackendAPIKey  string        `mapstructure:"backend_api_key"` // SENSITIVE
	BackendTimeout time.Duration `mapstructure:"backend_timeout"`

	// Retry policy for backend calls
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`

	// AI provider for the fallback completion path
	Provider      string `mapstructure:"provider"`       // "openai" (default) or "googleai"
	ModelName     string `mapstructure:"model_name"`     // e.g. "gpt-4o-mini", "gemini-2.5-flash"
	EmbedderModel string `mapstructure:"embedder_model"` // e.g. "text-embedding-3-small"

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint"` // empty disables trace export
	Environment  string `mapstructure:"environment"`
	ServiceName  string `mapstructure:"service_name"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json"`
	LogLevel string `mapstructure:"log_level"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/cloneai")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{".", "/etc/cloneai"})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL takes precedence over the discrete postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 0)

	v.SetDefault("backend_timeout", 30*time.Second)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay", time.Second)
	v.SetDefault("retry_max_delay", 10*time.Second)

	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("model_name", "gpt-4o-mini")
	v.SetDefault("embedder_model", "text-embedding-3-small")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "cloneai")
	v.SetDefault("postgres_db_name", "cloneai")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("environment", "dev")
	v.SetDefault("service_name", "cloneai")
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
}

// bindEnvVariables binds environment variables to configuration keys.
// CLONEAI_ prefixed variables map onto every key; the legacy names used by
// deployments (BACKEND_URL, BACKEND_API_URL, OPENAI_API_KEY) are bound
// explicitly.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("CLONEAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Both BACKEND_URL and BACKEND_API_URL are accepted; the former wins.
	_ = v.BindEnv("backend_url", "CLONEAI_BACKEND_URL", "BACKEND_URL", "BACKEND_API_URL")
	_ = v.BindEnv("backend_api_key", "CLONEAI_BACKEND_API_KEY", "BACKEND_API_KEY")
	_ = v.BindEnv("otlp_endpoint", "CLONEAI_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}
