// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/lmi/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - HTTP: listen address, CORS, rate limiting
//   - Storage: PostgreSQL connection (see storage.go)
//   - Groq: LLM generation (model, temperature, token budget)
//   - Embedding: HuggingFace Inference API model and chunking parameters
//   - RAG: retrieval depth and cache TTL
//   - Ingest: job source API credentials
//
// Security: sensitive values (API keys) are masked in MarshalJSON and never
// logged. Validation is fail-fast with sentinel errors usable via errors.Is.
package config

import (
	"encoding/json"
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

	// ErrMissingGroqKey indicates GROQ_API_KEY is not set.
	ErrMissingGroqKey = errors.New("missing Groq API key")

	// ErrMissingHuggingFaceKey indicates HUGGINGFACE_API_KEY is not set.
	ErrMissingHuggingFaceKey = errors.New("missing HuggingFace API key")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidChunking indicates the chunk size/overlap pair is unusable.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates the retrieval depth is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidEmbeddingDimension indicates the embedder produces vectors
	// incompatible with the pgvector schema.
	ErrInvalidEmbeddingDimension = errors.New("incompatible embedding dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// AppName identifies the service in health responses and logs.
	AppName = "lmi-agent"

	// AppVersion is the reported service version.
	AppVersion = "1.0.0"

	// EmbeddingDimension is the vector width of the pgvector schema.
	// sentence-transformers/all-MiniLM-L6-v2 and BAAI/bge-small-en-v1.5
	// both emit 384-dimensional vectors; see db/migrations.
	EmbeddingDimension = 384
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON. When
// adding new secrets, update MarshalJSON.
type Config struct {
	// HTTP server
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Storage (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Groq generation
	GroqAPIKey      string  `mapstructure:"groq_api_key" json:"groq_api_key"` // SENSITIVE
	GroqModel       string  `mapstructure:"groq_model" json:"groq_model"`
	GroqTemperature float32 `mapstructure:"groq_temperature" json:"groq_temperature"`
	GroqMaxTokens   int     `mapstructure:"groq_max_tokens" json:"groq_max_tokens"`

	// Embeddings
	HuggingFaceAPIKey string `mapstructure:"huggingface_api_key" json:"huggingface_api_key"` // SENSITIVE
	EmbeddingModel    string `mapstructure:"embedding_model" json:"embedding_model"`
	ChunkSize         int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap      int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// RAG
	RetrievalTopK int           `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`

	// Cache backend; empty RedisAddr selects the in-process cache.
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`

	// Ingest sources
	AdzunaAppID  string `mapstructure:"adzuna_app_id" json:"adzuna_app_id"`
	AdzunaAppKey string `mapstructure:"adzuna_app_key" json:"adzuna_app_key"` // SENSITIVE

	// Observability (optional OTLP trace export; empty disables tracing)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/lmi")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults + env cover everything.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults", "config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// HTTP defaults
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 0)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "lmi")
	v.SetDefault("postgres_password", "lmi_dev_password")
	v.SetDefault("postgres_db_name", "lmi")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Groq defaults
	v.SetDefault("groq_model", "llama-3.3-70b-versatile")
	v.SetDefault("groq_temperature", 0.3)
	v.SetDefault("groq_max_tokens", 2048)

	// Embedding defaults
	v.SetDefault("embedding_model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("chunk_size", 512)
	v.SetDefault("chunk_overlap", 100)

	// RAG defaults
	v.SetDefault("retrieval_top_k", 5)
	v.SetDefault("cache_ttl", 24*time.Hour)

	// Cache defaults
	v.SetDefault("redis_db", 0)

	// Observability defaults
	v.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly. Secrets are only
// ever read from the environment, never from the config file search path.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded key/env pairs cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("groq_api_key", "GROQ_API_KEY")
	mustBind("groq_model", "GROQ_MODEL")
	mustBind("huggingface_api_key", "HUGGINGFACE_API_KEY")
	mustBind("embedding_model", "EMBEDDING_MODEL")
	mustBind("chunk_size", "CHUNK_SIZE")
	mustBind("chunk_overlap", "CHUNK_OVERLAP")
	mustBind("retrieval_top_k", "RETRIEVAL_TOP_K")

	mustBind("redis_addr", "REDIS_ADDR")
	mustBind("redis_password", "REDIS_PASSWORD")

	mustBind("adzuna_app_id", "ADZUNA_APP_ID")
	mustBind("adzuna_app_key", "ADZUNA_APP_KEY")

	mustBind("listen_addr", "LMI_LISTEN_ADDR")
	mustBind("cors_origins", "LMI_CORS_ORIGINS")
	mustBind("trust_proxy", "LMI_TRUST_PROXY")
	mustBind("rate_burst", "LMI_RATE_BURST")
	mustBind("cache_ttl", "LMI_CACHE_TTL")

	mustBind("otlp_endpoint", "OTLP_ENDPOINT")
	mustBind("environment", "LMI_ENVIRONMENT")

	// NOTE: DATABASE_URL is handled separately in parseDatabaseURL because
	// it expands into multiple postgres_* fields.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are fully
// masked to prevent substring matching; longer secrets keep the first and
// last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + maskedValue + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields so a Config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(c)
	masked.PostgresPassword = maskSecret(c.PostgresPassword)
	masked.GroqAPIKey = maskSecret(c.GroqAPIKey)
	masked.HuggingFaceAPIKey = maskSecret(c.HuggingFaceAPIKey)
	masked.RedisPassword = maskSecret(c.RedisPassword)
	masked.AdzunaAppKey = maskSecret(c.AdzunaAppKey)
	return json.Marshal(masked)
}

// String implements fmt.Stringer with masked secrets.
func (c *Config) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "config{<marshal error>}"
	}
	return string(b)
}

// knownEmbeddingModels maps supported HuggingFace models to their output
// dimension. Models outside this table are allowed but must match
// EmbeddingDimension (validated at startup, enforced again per response).
var knownEmbeddingModels = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2":  384,
	"BAAI/bge-small-en-v1.5":                  384,
	"sentence-transformers/all-mpnet-base-v2": 768,
}

// embeddingModelDimension returns the known dimension for a model, or 0.
func embeddingModelDimension(model string) int {
	return knownEmbeddingModels[strings.TrimSpace(model)]
}
