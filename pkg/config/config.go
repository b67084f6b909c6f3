package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/umputun/newsdigest/pkg/domain"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server" jsonschema:"description=Server configuration"`
	Database   DatabaseConfig   `yaml:"database" json:"database" jsonschema:"description=Database configuration"`
	Generator  GeneratorConfig  `yaml:"generator" json:"generator" jsonschema:"required,description=Digest generation service"`
	LLM        LLMConfig        `yaml:"llm" json:"llm" jsonschema:"description=LLM configuration for article re-verification"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction" jsonschema:"description=Rule-based extraction configuration"`
	Publish    PublishConfig    `yaml:"publish" json:"publish" jsonschema:"description=Update throttling for digest observers"`
	Freshness  FreshnessConfig  `yaml:"freshness" json:"freshness" jsonschema:"description=Freshness cutoff per requested time window"`
}

// ServerConfig holds http server settings
type ServerConfig struct {
	Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server read timeout"`
}

// DatabaseConfig holds sqlite settings
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:newsdigest.db?cache=shared&mode=rwc,description=Database connection string"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
}

// GeneratorConfig holds settings of the digest generation service producing the event stream
type GeneratorConfig struct {
	Endpoint      string        `yaml:"endpoint" json:"endpoint" jsonschema:"required,description=Generation endpoint accepting job requests and streaming events"`
	Token         string        `yaml:"token" json:"token" jsonschema:"description=Bearer token (can use environment variable)"`
	HeaderTimeout time.Duration `yaml:"header_timeout" json:"header_timeout" jsonschema:"default=30s,description=Max wait for response headers"`
	Silence       time.Duration `yaml:"silence" json:"silence" jsonschema:"default=2m,description=Max time without any stream data before the job fails"`
	ChunkSize     int           `yaml:"chunk_size" json:"chunk_size" jsonschema:"default=32768,minimum=1,description=Read buffer size"`
}

// LLMConfig holds settings of the OpenAI-compatible API used for re-verification
type LLMConfig struct {
	Endpoint     string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible API endpoint, re-verification disabled if empty"`
	APIKey       string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model        string        `yaml:"model" json:"model" jsonschema:"description=Model name (e.g. gpt-4o-mini or llama3)"`
	Temperature  float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.1,description=Temperature for response generation"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=300,description=Maximum tokens in response"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Request timeout"`
	SystemPrompt string        `yaml:"system_prompt" json:"system_prompt" jsonschema:"description=System prompt for the LLM (optional)"`
	UseJSONMode  bool          `yaml:"use_json_mode" json:"use_json_mode" jsonschema:"default=false,description=Use JSON response format (not all models support this)"`
	Workers      int           `yaml:"workers" json:"workers" jsonschema:"default=4,minimum=1,description=Maximum concurrent re-verifications"`
}

// Enabled reports whether re-verification is configured
func (c LLMConfig) Enabled() bool {
	return c.Endpoint != ""
}

// ExtractionConfig holds rule-based extraction settings
type ExtractionConfig struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Extraction timeout per article"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent" jsonschema:"description=User agent for HTTP requests, browser-like if empty"`
	MaxBodySize int64         `yaml:"max_body_size" json:"max_body_size" jsonschema:"default=5242880,description=Maximum page size in bytes"`
}

// PublishConfig holds update throttling settings
type PublishConfig struct {
	Interval    time.Duration `yaml:"interval" json:"interval" jsonschema:"default=200ms,description=Minimal interval between digest updates"`
	LogInterval time.Duration `yaml:"log_interval" json:"log_interval" jsonschema:"default=1s,description=Minimal interval between progress messages"`
	LogBurst    int           `yaml:"log_burst" json:"log_burst" jsonschema:"default=5,minimum=1,description=Progress messages allowed in a burst"`
}

// FreshnessConfig holds freshness cutoffs, window length plus a grace margin
type FreshnessConfig struct {
	Day       time.Duration `yaml:"day" json:"day" jsonschema:"default=30h,description=Cutoff for the 24h window"`
	ThreeDays time.Duration `yaml:"three_days" json:"three_days" jsonschema:"default=78h,description=Cutoff for the 3days window"`
	Week      time.Duration `yaml:"week" json:"week" jsonschema:"default=180h,description=Cutoff for the 1week window"`
	Month     time.Duration `yaml:"month" json:"month" jsonschema:"default=744h,description=Cutoff for the 1month window"`
}

// Cutoffs returns cutoffs keyed by time window
func (c FreshnessConfig) Cutoffs() map[domain.TimeWindow]time.Duration {
	return map[domain.TimeWindow]time.Duration{
		domain.Window24h:    c.Day,
		domain.Window3Days:  c.ThreeDays,
		domain.Window1Week:  c.Week,
		domain.Window1Month: c.Month,
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		return nil, fmt.Errorf("verify config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	// server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// database
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:newsdigest.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	// generator
	if cfg.Generator.HeaderTimeout == 0 {
		cfg.Generator.HeaderTimeout = 30 * time.Second
	}
	if cfg.Generator.Silence == 0 {
		cfg.Generator.Silence = 2 * time.Minute
	}
	if cfg.Generator.ChunkSize == 0 {
		cfg.Generator.ChunkSize = 32 * 1024
	}

	// llm
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 300
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.LLM.Workers == 0 {
		cfg.LLM.Workers = 4
	}

	// extraction
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 30 * time.Second
	}
	if cfg.Extraction.MaxBodySize == 0 {
		cfg.Extraction.MaxBodySize = 5 * 1024 * 1024
	}

	// publish
	if cfg.Publish.Interval == 0 {
		cfg.Publish.Interval = 200 * time.Millisecond
	}
	if cfg.Publish.LogInterval == 0 {
		cfg.Publish.LogInterval = time.Second
	}
	if cfg.Publish.LogBurst == 0 {
		cfg.Publish.LogBurst = 5
	}

	// freshness, empirically tuned margins
	if cfg.Freshness.Day == 0 {
		cfg.Freshness.Day = 30 * time.Hour
	}
	if cfg.Freshness.ThreeDays == 0 {
		cfg.Freshness.ThreeDays = 72*time.Hour + 6*time.Hour
	}
	if cfg.Freshness.Week == 0 {
		cfg.Freshness.Week = 168*time.Hour + 12*time.Hour
	}
	if cfg.Freshness.Month == 0 {
		cfg.Freshness.Month = 720*time.Hour + 24*time.Hour
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	if cfg.Generator.Endpoint == "" {
		return fmt.Errorf("generator.endpoint is required")
	}
	if cfg.Generator.Silence < time.Second {
		return fmt.Errorf("generator.silence must be at least 1 second")
	}
	if cfg.Generator.ChunkSize < 1 {
		return fmt.Errorf("generator.chunk_size must be positive")
	}

	if cfg.LLM.Enabled() && cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required when llm.endpoint is set")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if cfg.LLM.Workers < 1 {
		return fmt.Errorf("llm.workers must be at least 1")
	}

	if cfg.Extraction.Timeout < time.Second {
		return fmt.Errorf("extraction timeout must be at least 1 second")
	}

	if cfg.Publish.Interval <= 0 || cfg.Publish.LogInterval <= 0 {
		return fmt.Errorf("publish intervals must be positive")
	}
	if cfg.Publish.LogBurst < 1 {
		return fmt.Errorf("publish.log_burst must be at least 1")
	}

	for w, d := range cfg.Freshness.Cutoffs() {
		if d <= 0 {
			return fmt.Errorf("freshness cutoff for %s must be positive", w)
		}
	}

	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}
