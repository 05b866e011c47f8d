// Package knowledge mines long-term memories out of conversations and
// retrieves them later with a composite relevance ranking.
package knowledge

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

// ExtractedKnowledge is one candidate memory mined from a conversation,
// not yet persisted.
type ExtractedKnowledge struct {
	Type          types.MemoryType
	Key           string
	Value         types.MemoryValue
	Confidence    float64
	WorkspacePath string
	SessionID     string
}

var (
	// filePathPattern matches file mentions across common syntaxes:
	// relative, absolute, and bare names with a code extension.
	filePathPattern = regexp.MustCompile(
		`(?:\.{0,2}/)?(?:[\w.-]+/)*[\w.-]+\.(?:go|ts|tsx|js|jsx|py|rs|java|rb|c|h|cpp|vue|sql|sh|ya?ml|toml|json|md)\b`)

	// decisionPattern flags sentences that record a choice.
	decisionPattern = regexp.MustCompile(
		`(?i)\b(?:we (?:decided|agreed|chose|will use)|decided to|let's use|going with|settled on)\b|决定|选择了|就用`)

	// codePatterns pick up definitions and imports worth remembering.
	codePatterns = []struct {
		kind string
		re   *regexp.Regexp
	}{
		{"import", regexp.MustCompile(`(?m)^\s*import\s+(?:\(|"?([\w./@-]+)"?|\{[^}]*\}\s+from\s+['"]([\w./@-]+)['"])`)},
		{"function", regexp.MustCompile(`(?m)^\s*(?:func|function|def)\s+(\w+)`)},
		{"class", regexp.MustCompile(`(?m)^\s*(?:export\s+)?class\s+(\w+)`)},
		{"type", regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:type|interface|struct)\s+(\w+)`)},
		{"export", regexp.MustCompile(`(?m)^\s*export\s+(?:const|let|var|default)\s+(\w+)`)},
	}

	sentenceSplit = regexp.MustCompile(`[.!?。！？\n]+`)
)

// Extractor mines knowledge candidates from messages and sessions. It is
// stateless and safe for concurrent use.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractFromMessages mines a conversation for project context, decisions,
// code patterns, and question/answer pairs. Duplicate keys within one pass
// are collapsed.
func (e *Extractor) ExtractFromMessages(msgs []*types.Message, workspacePath, sessionID string) []*ExtractedKnowledge {
	var out []*ExtractedKnowledge
	seen := make(map[string]bool)

	add := func(k *ExtractedKnowledge) {
		if seen[k.Key] {
			return
		}
		seen[k.Key] = true
		k.WorkspacePath = workspacePath
		k.SessionID = sessionID
		out = append(out, k)
	}

	for i, msg := range msgs {
		for _, k := range e.extractFilePaths(msg.Content) {
			add(k)
		}
		for _, k := range e.extractDecisions(msg.Content) {
			add(k)
		}
		for _, k := range e.extractCodePatterns(msg.Content) {
			add(k)
		}
		if k := e.extractFAQ(msgs, i); k != nil {
			add(k)
		}
	}
	return out
}

func (e *Extractor) extractFilePaths(content string) []*ExtractedKnowledge {
	var out []*ExtractedKnowledge
	for _, path := range filePathPattern.FindAllString(content, -1) {
		out = append(out, &ExtractedKnowledge{
			Type:       types.MemoryProjectContext,
			Key:        "file:" + path,
			Value:      types.ProjectContextValue{Path: path, Mentions: 1},
			Confidence: tuning.ConfidenceProjectContext,
		})
	}
	return out
}

func (e *Extractor) extractDecisions(content string) []*ExtractedKnowledge {
	var out []*ExtractedKnowledge
	for _, sentence := range sentenceSplit.Split(content, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || !decisionPattern.MatchString(sentence) {
			continue
		}
		out = append(out, &ExtractedKnowledge{
			Type:       types.MemoryKeyDecision,
			Key:        "decision:" + normalizeKey(sentence),
			Value:      types.KeyDecisionValue{Decision: sentence},
			Confidence: tuning.ConfidenceKeyDecision,
		})
	}
	return out
}

func (e *Extractor) extractCodePatterns(content string) []*ExtractedKnowledge {
	var out []*ExtractedKnowledge
	for _, cp := range codePatterns {
		for _, match := range cp.re.FindAllStringSubmatch(content, -1) {
			name := ""
			for _, group := range match[1:] {
				if group != "" {
					name = group
					break
				}
			}
			if name == "" {
				continue
			}
			out = append(out, &ExtractedKnowledge{
				Type:       types.MemoryCodePattern,
				Key:        fmt.Sprintf("pattern:%s:%s", cp.kind, name),
				Value:      types.CodePatternValue{Pattern: name, Kind: cp.kind, Snippet: strings.TrimSpace(match[0])},
				Confidence: tuning.ConfidenceCodePattern,
			})
		}
	}
	return out
}

// extractFAQ pairs a user question with the immediately following
// assistant answer.
func (e *Extractor) extractFAQ(msgs []*types.Message, i int) *ExtractedKnowledge {
	msg := msgs[i]
	if msg.Role != types.RoleUser || !isQuestion(msg.Content) {
		return nil
	}
	if i+1 >= len(msgs) || msgs[i+1].Role != types.RoleAssistant {
		return nil
	}
	answer := strings.TrimSpace(msgs[i+1].Content)
	if answer == "" {
		return nil
	}

	question := strings.TrimSpace(msg.Content)
	return &ExtractedKnowledge{
		Type:       types.MemoryFAQ,
		Key:        "faq:" + normalizeKey(question),
		Value:      types.FAQValue{Question: question, Answer: answer},
		Confidence: tuning.ConfidenceFAQ,
	}
}

// ExtractUserPreference aggregates usage habits across sessions: which
// engine the user favors, when they work, and where. Returns nil when
// there is nothing to aggregate.
func (e *Extractor) ExtractUserPreference(sessions []*types.Session) *ExtractedKnowledge {
	if len(sessions) == 0 {
		return nil
	}

	engineUsage := make(map[string]int)
	hourCounts := make(map[int]int)
	dayCounts := make(map[string]int)
	workspaceCounts := make(map[string]int)

	for _, sess := range sessions {
		if sess.EngineID != "" {
			engineUsage[sess.EngineID]++
		}
		hourCounts[sess.CreatedAt.Hour()]++
		dayCounts[sess.CreatedAt.Weekday().String()]++
		if sess.WorkspacePath != "" {
			workspaceCounts[sess.WorkspacePath]++
		}
	}

	return &ExtractedKnowledge{
		Type: types.MemoryUserPreference,
		Key:  "preference:usage",
		Value: types.UserPreferenceValue{
			PreferredEngine: maxCountKeyStr(engineUsage),
			EngineUsage:     engineUsage,
			PeakHour:        maxCountKeyInt(hourCounts),
			PeakDay:         maxCountKeyStr(dayCounts),
			WorkspaceCounts: workspaceCounts,
		},
		Confidence: tuning.ConfidenceUserPreference,
	}
}

func isQuestion(content string) bool {
	trimmed := strings.TrimSpace(content)
	if strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "？") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"how ", "why ", "what ", "when ", "where ", "which ", "can ", "does ", "is ", "are "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// normalizeKey lowercases and squashes a sentence into a stable dedup key.
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > 80 {
		runes = runes[:80]
	}
	return string(runes)
}

func maxCountKeyStr(counts map[string]int) string {
	best, bestCount := "", -1
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

func maxCountKeyInt(counts map[int]int) int {
	best, bestCount := 0, -1
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}
