// Package tokens provides the shared token-estimation heuristic used by
// context selection and conversation compression.
//
// The estimator is deliberately not a tokenizer. It is a fixed character
// heuristic: CJK characters count tuning.TokensPerCJKChar each, all other
// characters tuning.TokensPerOtherChar each, plus a small per-message
// framing overhead. The ratios are fixed so estimates are reproducible.
package tokens

import (
	"unicode"

	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

// cjkRanges covers Han, Hiragana, Katakana, and Hangul.
var cjkRanges = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
}

func isCJK(r rune) bool {
	return unicode.In(r, cjkRanges...)
}

// EstimateText estimates tokens for a string. Non-empty input always yields
// at least one token.
func EstimateText(s string) int {
	if s == "" {
		return 0
	}
	var weight float64
	for _, r := range s {
		if isCJK(r) {
			weight += tuning.TokensPerCJKChar
		} else {
			weight += tuning.TokensPerOtherChar
		}
	}
	n := int(weight)
	if n < 1 {
		n = 1
	}
	return n
}

// CJKFraction returns the fraction of characters that are CJK.
func CJKFraction(s string) float64 {
	total := 0
	cjk := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isCJK(r) {
			cjk++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(cjk) / float64(total)
}

// DominantLanguage detects the instruction-template language for a text:
// "zh" when the CJK fraction exceeds tuning.CJKDominantFraction, else "en".
func DominantLanguage(s string) string {
	if CJKFraction(s) > tuning.CJKDominantFraction {
		return "zh"
	}
	return "en"
}

// defaultEntryTokens maps each entry type to its fallback estimate, used
// when the entry carries no text to estimate from.
var defaultEntryTokens = map[types.ContextType]int{
	types.TypeFile:            tuning.DefaultTokensFile,
	types.TypeFileStructure:   tuning.DefaultTokensFileStructure,
	types.TypeSymbol:          tuning.DefaultTokensSymbol,
	types.TypeSymbolReference: tuning.DefaultTokensSymbolReference,
	types.TypeSelection:       tuning.DefaultTokensSelection,
	types.TypeDiagnostics:     tuning.DefaultTokensDiagnostics,
	types.TypeDependency:      tuning.DefaultTokensDependency,
	types.TypeProjectMeta:     tuning.DefaultTokensProjectMeta,
	types.TypeUserMessage:     tuning.DefaultTokensUserMessage,
	types.TypeToolResult:      tuning.DefaultTokensToolResult,
	types.TypeFolder:          tuning.DefaultTokensFolder,
}

// DefaultEntryTokens returns the per-type fallback estimate.
func DefaultEntryTokens(t types.ContextType) int {
	if n, ok := defaultEntryTokens[t]; ok {
		return n
	}
	return tuning.DefaultTokensUserMessage
}

// EstimateEntry estimates tokens for a context entry: its flattened content
// when present, otherwise the per-type default.
func EstimateEntry(e *types.ContextEntry) int {
	if text := e.Content.FlattenText(); text != "" {
		return EstimateText(text)
	}
	return DefaultEntryTokens(e.Type)
}

// EstimateMessage estimates tokens for a message including tool-call
// payloads and framing overhead.
func EstimateMessage(m *types.Message) int {
	total := EstimateText(m.Content)
	for _, tc := range m.ToolCalls {
		total += EstimateText(string(tc.Input))
		total += EstimateText(tc.Output)
	}
	return total + tuning.MessageTokenOverhead
}

// MessageTokens returns the message's recorded token count, estimating when
// the message was stored without one.
func MessageTokens(m *types.Message) int {
	if m.Tokens > 0 {
		return m.Tokens
	}
	return EstimateMessage(m)
}

// SumActive totals tokens across non-archived, non-deleted messages.
func SumActive(messages []*types.Message) int {
	total := 0
	for _, m := range messages {
		if m.Active() {
			total += MessageTokens(m)
		}
	}
	return total
}
