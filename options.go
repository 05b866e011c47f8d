package memorypg

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/memorypg/memorypg/compression"
)

// internalConfig holds the full engine configuration including collaborators
// that cannot come from a config file.
type internalConfig struct {
	cfg Config

	client *anthropic.Client
	llm    compression.LLM
	logger Logger

	autoCompress bool
	runSweeper   bool
}

func newInternalConfig(cfg Config) *internalConfig {
	return &internalConfig{
		cfg:          cfg,
		logger:       noopLogger{},
		autoCompress: true,
		runSweeper:   true,
	}
}

// Option is a functional option for configuring an Engine
type Option func(*internalConfig) error

// WithLogger sets the engine logger. It is passed down to the selection,
// compression, and knowledge layers.
func WithLogger(logger Logger) Option {
	return func(c *internalConfig) error {
		if logger == nil {
			return NewEngineError("WithLogger", ErrInvalidConfig).
				WithContext("reason", "logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithAnthropicClient sets the Anthropic client used for summarization.
func WithAnthropicClient(client *anthropic.Client) Option {
	return func(c *internalConfig) error {
		if client == nil {
			return NewEngineError("WithAnthropicClient", ErrInvalidConfig).
				WithContext("reason", "client must not be nil")
		}
		c.client = client
		return nil
	}
}

// WithLLM replaces the summarization backend entirely. Takes precedence
// over WithAnthropicClient.
func WithLLM(llm compression.LLM) Option {
	return func(c *internalConfig) error {
		if llm == nil {
			return NewEngineError("WithLLM", ErrInvalidConfig).
				WithContext("reason", "llm must not be nil")
		}
		c.llm = llm
		return nil
	}
}

// WithAutoCompression enables or disables the delayed compression check
// scheduled after each SaveMessage (default enabled).
func WithAutoCompression(enabled bool) Option {
	return func(c *internalConfig) error {
		c.autoCompress = enabled
		return nil
	}
}

// WithExpirySweep enables or disables the periodic expired-entry sweep
// (default enabled).
func WithExpirySweep(enabled bool) Option {
	return func(c *internalConfig) error {
		c.runSweeper = enabled
		return nil
	}
}

// WithSummarizerModel sets the model used for summarization during
// compression.
func WithSummarizerModel(model string) Option {
	return func(c *internalConfig) error {
		if model == "" {
			return NewEngineError("WithSummarizerModel", ErrInvalidConfig).
				WithContext("reason", "model must not be empty")
		}
		c.cfg.SummarizerModel = model
		return nil
	}
}

// WithTargetTokenRatio sets the fraction of active tokens remaining after a
// size- or importance-driven compression (0.0-1.0 exclusive).
func WithTargetTokenRatio(ratio float64) Option {
	return func(c *internalConfig) error {
		if ratio <= 0 || ratio >= 1 {
			return NewEngineError("WithTargetTokenRatio", ErrInvalidConfig).
				WithContext("ratio", ratio).
				WithContext("reason", "ratio must be between 0 and 1")
		}
		c.cfg.TargetTokenRatio = ratio
		return nil
	}
}

// WithContextBudget sets the default context token budget and the tokens
// reserved from it for the response.
func WithContextBudget(maxTokens, reservedTokens int) Option {
	return func(c *internalConfig) error {
		if maxTokens <= 0 {
			return NewEngineError("WithContextBudget", ErrInvalidConfig).
				WithContext("max_tokens", maxTokens).
				WithContext("reason", "max_tokens must be positive")
		}
		if reservedTokens < 0 || reservedTokens >= maxTokens {
			return NewEngineError("WithContextBudget", ErrInvalidConfig).
				WithContext("reserved_tokens", reservedTokens).
				WithContext("reason", "reserved_tokens must be in [0, max_tokens)")
		}
		c.cfg.ContextMaxTokens = maxTokens
		c.cfg.ReservedTokens = reservedTokens
		return nil
	}
}
