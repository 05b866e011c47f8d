package memorypg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/memorypg/memorypg/compression"
	"github.com/memorypg/memorypg/tuning"
)

// Config holds the engine configuration. The zero value plus ApplyDefaults
// is a working configuration; an Anthropic client (or a custom LLM) is
// supplied separately via options because it cannot come from a file.
//
// Example:
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	store := storage.NewPostgresStore(pool)
//	engine, _ := memorypg.New(store, memorypg.DefaultConfig(),
//	    memorypg.WithAnthropicClient(&client),
//	)
type Config struct {
	// Compression thresholds. Any trigger firing schedules a compression
	// pass: active tokens at CompressMaxTokens, active messages at
	// CompressMaxMessages, or oldest message age at CompressMaxAge.
	CompressMaxTokens   int           `yaml:"compress_max_tokens"`
	CompressMaxMessages int           `yaml:"compress_max_messages"`
	CompressMaxAge      time.Duration `yaml:"-"`

	// TargetTokenRatio is the fraction of active tokens that should remain
	// after a size- or importance-driven compression (0.0-1.0).
	TargetTokenRatio float64 `yaml:"target_token_ratio"`

	// Summarizer settings for the compression LLM calls.
	SummarizerModel       string  `yaml:"summarizer_model"`
	SummarizerMaxTokens   int     `yaml:"summarizer_max_tokens"`
	SummarizerTemperature float64 `yaml:"summarizer_temperature"`

	// ContextMaxTokens is the default token budget for context queries;
	// ReservedTokens is held back from it for the response.
	ContextMaxTokens int `yaml:"context_max_tokens"`
	ReservedTokens   int `yaml:"reserved_tokens"`

	// Logging. LogFile enables the JSON file sink next to the stderr text
	// sink; LogLevel is debug, info, warn, or error.
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a Config with the default thresholds.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.CompressMaxTokens == 0 {
		c.CompressMaxTokens = tuning.DefaultCompressMaxTokens
	}
	if c.CompressMaxMessages == 0 {
		c.CompressMaxMessages = tuning.DefaultCompressMaxMessages
	}
	if c.CompressMaxAge == 0 {
		c.CompressMaxAge = tuning.DefaultCompressMaxAgeHours * time.Hour
	}
	if c.TargetTokenRatio == 0 {
		c.TargetTokenRatio = tuning.DefaultTargetTokenRatio
	}
	if c.SummarizerModel == "" {
		c.SummarizerModel = compression.DefaultSummarizerModel
	}
	if c.SummarizerMaxTokens == 0 {
		c.SummarizerMaxTokens = compression.DefaultSummarizerMaxTokens
	}
	if c.SummarizerTemperature == 0 {
		c.SummarizerTemperature = compression.DefaultSummarizerTemperature
	}
	if c.ContextMaxTokens == 0 {
		c.ContextMaxTokens = tuning.DefaultContextMaxTokens
	}
	if c.ReservedTokens == 0 {
		c.ReservedTokens = tuning.DefaultReservedTokens
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.compression().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ContextMaxTokens <= 0 {
		return fmt.Errorf("%w: context_max_tokens must be positive, got %d", ErrInvalidConfig, c.ContextMaxTokens)
	}
	if c.ReservedTokens < 0 || c.ReservedTokens >= c.ContextMaxTokens {
		return fmt.Errorf("%w: reserved_tokens must be in [0, context_max_tokens), got %d", ErrInvalidConfig, c.ReservedTokens)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

// compression maps the flat engine config onto the compression package's
// config.
func (c *Config) compression() *compression.Config {
	return &compression.Config{
		MaxTokens:             c.CompressMaxTokens,
		MaxMessages:           c.CompressMaxMessages,
		MaxAge:                c.CompressMaxAge,
		TargetTokenRatio:      c.TargetTokenRatio,
		SummarizerModel:       c.SummarizerModel,
		SummarizerMaxTokens:   c.SummarizerMaxTokens,
		SummarizerTemperature: c.SummarizerTemperature,
	}
}

// fileConfig mirrors Config for YAML decoding. Durations are written as Go
// duration strings ("168h"), which yaml.v3 cannot decode directly.
type fileConfig struct {
	Config         `yaml:",inline"`
	CompressMaxAge string `yaml:"compress_max_age"`
}

// LoadConfig reads a YAML config file, applies defaults to anything the
// file leaves unset, and validates the result.
func LoadConfig(path string) (Config, error) {
	var fc fileConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}

	cfg := fc.Config
	if fc.CompressMaxAge != "" {
		age, err := time.ParseDuration(fc.CompressMaxAge)
		if err != nil {
			return Config{}, fmt.Errorf("%w: compress_max_age %q: %v", ErrInvalidConfig, fc.CompressMaxAge, err)
		}
		cfg.CompressMaxAge = age
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
