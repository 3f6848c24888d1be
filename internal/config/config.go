package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-intake/internal/common"
)

// Config is the fully resolved application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Tables   TablesConfig   `mapstructure:"tables"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig picks the storage backend. URL wins over Path when it names
// a PostgreSQL database.
type DatabaseConfig struct {
	URL  string `mapstructure:"url"`
	Path string `mapstructure:"path"`
}

// TablesConfig points at the provider and keyword lookup tables.
type TablesConfig struct {
	Providers string `mapstructure:"providers"`
	Keywords  string `mapstructure:"keywords"`
}

// PipelineConfig tunes the confirmation gate.
type PipelineConfig struct {
	DefaultCurrency string   `mapstructure:"default_currency"`
	AllowedUsers    []string `mapstructure:"allowed_users"`
	Threshold       float64  `mapstructure:"threshold"`
}

// LLMConfig configures the extraction oracle transport.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	Temperature     float64       `mapstructure:"temperature"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
}

// IngestConfig points at the external recognition services.
type IngestConfig struct {
	OCRURL      string `mapstructure:"ocr_url"`
	ASRURL      string `mapstructure:"asr_url"`
	DocumentURL string `mapstructure:"document_url"`
	ArchiveDir  string `mapstructure:"archive_dir"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// NATSConfig configures event publishing. An empty URL disables it.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	dataDir := DataDir()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.url", "")
	v.SetDefault("database.path", filepath.Join(dataDir, "intake.db"))

	v.SetDefault("tables.providers", filepath.Join(ConfigDir(), "providers.csv"))
	v.SetDefault("tables.keywords", filepath.Join(ConfigDir(), "keywords.csv"))

	v.SetDefault("pipeline.threshold", 0.7)
	v.SetDefault("pipeline.default_currency", "MXN")
	v.SetDefault("pipeline.allowed_users", []string{})

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)
	v.SetDefault("llm.cache_ttl", 5*time.Minute)
	v.SetDefault("llm.rate_limit", 2.0)
	v.SetDefault("llm.breaker_failures", 5)
	v.SetDefault("llm.breaker_timeout", 30*time.Second)

	v.SetDefault("ingest.ocr_url", "")
	v.SetDefault("ingest.asr_url", "")
	v.SetDefault("ingest.document_url", "")
	v.SetDefault("ingest.archive_dir", "")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "intake")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Tables.Providers = ExpandPath(cfg.Tables.Providers)
	cfg.Tables.Keywords = ExpandPath(cfg.Tables.Keywords)
	cfg.Ingest.ArchiveDir = ExpandPath(cfg.Ingest.ArchiveDir)
	cfg.Pipeline.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.Pipeline.DefaultCurrency))
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))

	// Environment variables arrive as a single space or comma separated string.
	cfg.Pipeline.AllowedUsers = splitList(cfg.Pipeline.AllowedUsers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.Pipeline.Threshold < 0 || c.Pipeline.Threshold > 1 {
		return fmt.Errorf("%w: pipeline.threshold must be within [0,1], got %v", common.ErrInvalidConfig, c.Pipeline.Threshold)
	}
	if len(c.Pipeline.DefaultCurrency) != 3 {
		return fmt.Errorf("%w: pipeline.default_currency must be a 3-letter code, got %q", common.ErrInvalidConfig, c.Pipeline.DefaultCurrency)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("%w: unsupported llm.provider %q", common.ErrInvalidConfig, c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("%w: llm.max_retries cannot be negative", common.ErrInvalidConfig)
	}
	if c.LLM.RateLimit < 0 {
		return fmt.Errorf("%w: llm.rate_limit cannot be negative", common.ErrInvalidConfig)
	}
	if c.Database.URL == "" && c.Database.Path == "" {
		return fmt.Errorf("%w: database.url or database.path", common.ErrMissingConfig)
	}
	return nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

var envReplacer = strings.NewReplacer(".", "_")

// NewViper returns a viper instance with defaults registered and the
// INTAKE_ environment prefix bound.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
	return v
}
