package compression

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// LLM is the remote summarization collaborator: one prompt in, one text
// completion out. Implementations may fail; callers never retry
// automatically.
type LLM interface {
	Complete(ctx context.Context, model, prompt string, temperature float64) (string, error)
}

// AnthropicLLM implements LLM over the Anthropic streaming API.
type AnthropicLLM struct {
	client    *anthropic.Client
	maxTokens int
}

// NewAnthropicLLM creates an AnthropicLLM with the given client and
// response token cap.
func NewAnthropicLLM(client *anthropic.Client, maxTokens int) *AnthropicLLM {
	if maxTokens <= 0 {
		maxTokens = DefaultSummarizerMaxTokens
	}
	return &AnthropicLLM{client: client, maxTokens: maxTokens}
}

// Complete streams a completion for the prompt and returns the accumulated
// text.
func (a *AnthropicLLM) Complete(ctx context.Context, model, prompt string, temperature float64) (string, error) {
	stream := a.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(a.maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("%w: failed to accumulate stream: %v", ErrSummarizationFailed, err)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	var out strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("%w: empty response", ErrSummarizationFailed)
	}
	return out.String(), nil
}
