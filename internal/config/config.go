package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Archive  ArchiveConfig  `yaml:"archive"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Vector   VectorConfig   `yaml:"vector"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`
}

// DatabaseConfig contains Postgres settings.
type DatabaseConfig struct {
	DSN string `yaml:"-"` // env-only, carries credentials
}

// PipelineConfig contains ingestion pipeline settings.
type PipelineConfig struct {
	StagingDir  string `yaml:"staging_dir"`
	Workers     int    `yaml:"workers"`
	QueueBuffer int    `yaml:"queue_buffer"`
}

// ArchiveConfig contains S3-compatible source-file archival settings.
// Archival is disabled when Bucket is empty.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool  `yaml:"use_ssl"`
}

// OpenAIConfig contains settings for the embedding and chat models.
type OpenAIConfig struct {
	APIKey         string `yaml:"-"` // env-only, never in YAML
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
}

// VectorConfig contains vector-index settings. Sync is disabled when URL
// is empty.
type VectorConfig struct {
	URL          string   `yaml:"url"`
	Collection   string   `yaml:"collection"`
	Dimensions   int      `yaml:"dimensions"`
	SyncInterval Duration `yaml:"sync_interval"`
	SearchLimit  int      `yaml:"search_limit"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("RIDELAKE_CONFIG_PATH", "config/ridelake.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			MaxUploadBytes:  256 << 20,
		},
		Database: DatabaseConfig{
			DSN: "postgres://localhost:5432/ridelake?sslmode=disable",
		},
		Pipeline: PipelineConfig{
			StagingDir:  "data/uploads",
			Workers:     4,
			QueueBuffer: 64,
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
		},
		Vector: VectorConfig{
			Collection:   "ride_cancellations",
			Dimensions:   1536,
			SyncInterval: Duration(2 * time.Minute),
			SearchLimit:  5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("RIDELAKE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RIDELAKE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("RIDELAKE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("RIDELAKE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database (DSN carries credentials, env-only)
	if v := os.Getenv("RIDELAKE_DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}

	// Pipeline
	if v := os.Getenv("RIDELAKE_STAGING_DIR"); v != "" {
		cfg.Pipeline.StagingDir = v
	}
	if v := os.Getenv("RIDELAKE_PIPELINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = n
		}
	}

	// Archive
	if v := os.Getenv("RIDELAKE_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("RIDELAKE_ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("RIDELAKE_ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("RIDELAKE_ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}

	// OpenAI (OPENAI_API_KEY is industry convention)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("RIDELAKE_EMBEDDING_MODEL"); v != "" {
		cfg.OpenAI.EmbeddingModel = v
	}
	if v := os.Getenv("RIDELAKE_CHAT_MODEL"); v != "" {
		cfg.OpenAI.ChatModel = v
	}

	// Vector index
	if v := os.Getenv("RIDELAKE_VECTOR_URL"); v != "" {
		cfg.Vector.URL = v
	}
	if v := os.Getenv("RIDELAKE_VECTOR_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Vector.SyncInterval = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("RIDELAKE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RIDELAKE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are coherent.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("RIDELAKE_DATABASE_URL is required")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Archive.Bucket != "" && c.Archive.Endpoint == "" {
		return fmt.Errorf("archive bucket configured without endpoint")
	}
	if c.Vector.URL != "" && c.Vector.Collection == "" {
		return fmt.Errorf("vector url configured without collection")
	}
	return nil
}

// getEnv returns the env var value or a default.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
