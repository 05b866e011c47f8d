package compression

import (
	"fmt"
	"time"

	"github.com/memorypg/memorypg/tuning"
)

// StrategyName identifies a compression strategy.
type StrategyName string

const (
	// StrategyTime archives every message older than the age threshold.
	StrategyTime StrategyName = "time"

	// StrategySize archives oldest messages until the target token
	// reduction is reached.
	StrategySize StrategyName = "size"

	// StrategyImportance archives the lowest-scoring unprotected messages
	// toward the target token reduction.
	StrategyImportance StrategyName = "importance"
)

// Default summarizer settings.
const (
	DefaultSummarizerModel       = "claude-3-5-haiku-20241022"
	DefaultSummarizerMaxTokens   = 1024
	DefaultSummarizerTemperature = 0.3
)

// Config holds compression configuration.
type Config struct {
	// MaxTokens is the active-token count that triggers compression.
	// Default: 100000
	MaxTokens int

	// MaxMessages is the active-message count that triggers compression.
	// Default: 100
	MaxMessages int

	// MaxAge is the oldest-message age that triggers compression and
	// selects the time strategy.
	// Default: 168h (7 days)
	MaxAge time.Duration

	// TargetTokenRatio is the fraction of active tokens that should remain
	// after a size- or importance-driven compression (0.0-1.0).
	// Default: 0.5
	TargetTokenRatio float64

	// SummarizerModel is the model used for summarization.
	// Default: "claude-3-5-haiku-20241022"
	SummarizerModel string

	// SummarizerMaxTokens bounds the summarization response.
	// Default: 1024
	SummarizerMaxTokens int

	// SummarizerTemperature is the sampling temperature for summarization.
	// Default: 0.3
	SummarizerTemperature float64
}

// DefaultConfig returns a Config with the default thresholds.
func DefaultConfig() *Config {
	return &Config{
		MaxTokens:             tuning.DefaultCompressMaxTokens,
		MaxMessages:           tuning.DefaultCompressMaxMessages,
		MaxAge:                tuning.DefaultCompressMaxAgeHours * time.Hour,
		TargetTokenRatio:      tuning.DefaultTargetTokenRatio,
		SummarizerModel:       DefaultSummarizerModel,
		SummarizerMaxTokens:   DefaultSummarizerMaxTokens,
		SummarizerTemperature: DefaultSummarizerTemperature,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidConfig, c.MaxTokens)
	}
	if c.MaxMessages <= 0 {
		return fmt.Errorf("%w: max_messages must be positive, got %d", ErrInvalidConfig, c.MaxMessages)
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("%w: max_age must be positive, got %s", ErrInvalidConfig, c.MaxAge)
	}
	if c.TargetTokenRatio <= 0 || c.TargetTokenRatio >= 1 {
		return fmt.Errorf("%w: target_token_ratio must be in (0, 1), got %f", ErrInvalidConfig, c.TargetTokenRatio)
	}
	if c.SummarizerModel == "" {
		return fmt.Errorf("%w: summarizer_model is required", ErrInvalidConfig)
	}
	if c.SummarizerMaxTokens <= 0 {
		return fmt.Errorf("%w: summarizer_max_tokens must be positive, got %d", ErrInvalidConfig, c.SummarizerMaxTokens)
	}
	if c.SummarizerTemperature < 0 || c.SummarizerTemperature > 1 {
		return fmt.Errorf("%w: summarizer_temperature must be in [0, 1], got %f", ErrInvalidConfig, c.SummarizerTemperature)
	}
	return nil
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = tuning.DefaultCompressMaxTokens
	}
	if c.MaxMessages == 0 {
		c.MaxMessages = tuning.DefaultCompressMaxMessages
	}
	if c.MaxAge == 0 {
		c.MaxAge = tuning.DefaultCompressMaxAgeHours * time.Hour
	}
	if c.TargetTokenRatio == 0 {
		c.TargetTokenRatio = tuning.DefaultTargetTokenRatio
	}
	if c.SummarizerModel == "" {
		c.SummarizerModel = DefaultSummarizerModel
	}
	if c.SummarizerMaxTokens == 0 {
		c.SummarizerMaxTokens = DefaultSummarizerMaxTokens
	}
	if c.SummarizerTemperature == 0 {
		c.SummarizerTemperature = DefaultSummarizerTemperature
	}
}
