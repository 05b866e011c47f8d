package compression

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/memorypg/memorypg/tokens"
	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

// SummaryOutput is the parsed result of one summarization call.
type SummaryOutput struct {
	Summary   string
	KeyPoints []string

	// Model is the model that produced the summary.
	Model string
	// CostTokens is the estimated prompt + response token cost.
	CostTokens int
	// Fallback reports that the model's output was not the requested JSON
	// and the degraded extraction path produced the summary.
	Fallback bool
}

// Summarizer turns a message slice into a {summary, keyPoints} pair via the
// remote LLM. A malformed model response degrades to text extraction rather
// than failing; only a failed remote call is an error.
type Summarizer struct {
	llm         LLM
	model       string
	temperature float64
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(llm LLM, model string, temperature float64) *Summarizer {
	if model == "" {
		model = DefaultSummarizerModel
	}
	return &Summarizer{llm: llm, model: model, temperature: temperature}
}

// Summarize generates a summary of the given messages. The prompt language
// follows the conversation's dominant language.
func (s *Summarizer) Summarize(ctx context.Context, msgs []*types.Message) (*SummaryOutput, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessagesToCompress
	}

	prompt := BuildSummaryPrompt(msgs)
	response, err := s.llm.Complete(ctx, s.model, prompt, s.temperature)
	if err != nil {
		return nil, WrapError("Summarize", err)
	}

	out := parseSummaryResponse(response)
	out.Model = s.model
	out.CostTokens = tokens.EstimateText(prompt) + tokens.EstimateText(response)
	return out, nil
}

// parseSummaryResponse extracts {summary, keyPoints[]} from the model
// output. It tolerates markdown fences and surrounding prose by parsing the
// outermost JSON object; anything less structured goes through the
// truncation + bullet fallback.
func parseSummaryResponse(response string) *SummaryOutput {
	if raw := extractJSONObject(response); raw != "" {
		parsed := gjson.Parse(raw)
		summary := parsed.Get("summary").String()
		if summary != "" {
			out := &SummaryOutput{Summary: summary}
			for _, point := range parsed.Get("keyPoints").Array() {
				if p := strings.TrimSpace(point.String()); p != "" {
					out.KeyPoints = append(out.KeyPoints, p)
				}
			}
			return out
		}
	}

	return &SummaryOutput{
		Summary:   truncateSummary(response),
		KeyPoints: extractBulletLines(response),
		Fallback:  true,
	}
}

// extractJSONObject returns the outermost {...} region of the text, or ""
// when there is none.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func truncateSummary(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= tuning.FallbackSummaryMaxChars {
		return text
	}
	return string(runes[:tuning.FallbackSummaryMaxChars-3]) + "..."
}

// extractBulletLines pulls list-style lines out of free-form model output.
func extractBulletLines(text string) []string {
	var points []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(trimmed, prefix) {
				if p := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)); p != "" {
					points = append(points, p)
				}
				break
			}
		}
		if len(points) >= tuning.FallbackMaxKeyPoints {
			break
		}
	}
	return points
}
