// Package scoring rates conversation messages for long-term importance.
// Scores drive which messages survive importance-based compression.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

// Level buckets a total score.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Breakdown carries the unweighted per-dimension scores, each in [0, 100].
type Breakdown struct {
	Content     int `json:"content"`
	Role        int `json:"role"`
	Time        int `json:"time"`
	Length      int `json:"length"`
	Tools       int `json:"tools"`
	Interaction int `json:"interaction"`
}

// Score is the result of rating one message.
type Score struct {
	Total     int       `json:"total"` // 0-100
	Breakdown Breakdown `json:"breakdown"`
	Level     Level     `json:"level"`
}

// Scorer rates messages. It is stateless: the score is a pure function of
// the message and the reference time.
type Scorer struct {
	// HighThreshold and MediumThreshold bound the level buckets.
	HighThreshold   int
	MediumThreshold int
}

// NewScorer creates a Scorer with the default level thresholds.
func NewScorer() *Scorer {
	return &Scorer{
		HighThreshold:   tuning.ScoreLevelHigh,
		MediumThreshold: tuning.ScoreLevelMedium,
	}
}

// Score rates the message relative to now.
func (s *Scorer) Score(msg *types.Message, now time.Time) Score {
	b := Breakdown{
		Content:     contentScore(msg.Content),
		Role:        roleScore(msg),
		Time:        timeScore(msg.Age(now)),
		Length:      lengthScore(len([]rune(msg.Content))),
		Tools:       toolScore(msg.ToolCalls),
		Interaction: interactionScore(msg),
	}

	total := int(math.Round(
		float64(b.Content)*tuning.WeightContent +
			float64(b.Role)*tuning.WeightRole +
			float64(b.Time)*tuning.WeightTime +
			float64(b.Length)*tuning.WeightLength +
			float64(b.Tools)*tuning.WeightTools +
			float64(b.Interaction)*tuning.WeightInteraction))

	return Score{Total: total, Breakdown: b, Level: s.level(total)}
}

func (s *Scorer) level(total int) Level {
	switch {
	case total >= s.HighThreshold:
		return LevelHigh
	case total >= s.MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// errorFixKeywords flag content discussing failures and their resolution,
// in English and Chinese.
var errorFixKeywords = []string{
	"error", "fail", "bug", "fix", "exception", "panic", "crash",
	"issue", "broken", "solve", "resolve",
	"错误", "失败", "修复", "问题", "解决", "异常", "崩溃",
}

// definitionMarkers flag content introducing types or functions.
var definitionMarkers = []string{
	"func ", "type ", "interface ", "struct ",
	"class ", "def ", "function ", "export ",
}

func contentScore(content string) int {
	if content == "" {
		return 0
	}
	lower := strings.ToLower(content)

	score := 0
	for _, kw := range errorFixKeywords {
		if strings.Contains(lower, kw) {
			score += tuning.ContentScorePerKeyword
		}
	}
	for _, marker := range definitionMarkers {
		if strings.Contains(lower, marker) {
			score += tuning.ContentScorePerDefine
			break
		}
	}

	structure := AnalyzeStructure(content)
	score += structure.CodeBlocks * tuning.ContentScorePerCodeBlock
	score += structure.Headings * tuning.ContentScorePerHeading

	return clamp(score)
}

func roleScore(msg *types.Message) int {
	switch msg.Role {
	case types.RoleUser:
		return tuning.RoleScoreUser
	case types.RoleAssistant:
		return tuning.RoleScoreAssistant
	case types.RoleSystem:
		return tuning.RoleScoreSystem
	case types.RoleTool:
		if len(msg.ToolCalls) > 1 {
			return tuning.RoleScoreToolGroup
		}
		return tuning.RoleScoreTool
	default:
		return 0
	}
}

func timeScore(age time.Duration) int {
	switch {
	case age <= time.Hour:
		return tuning.TimeScoreFresh
	case age <= 24*time.Hour:
		return tuning.TimeScoreDay
	case age <= 7*24*time.Hour:
		return tuning.TimeScoreWeek
	case age <= 30*24*time.Hour:
		return tuning.TimeScoreMonth
	case age <= 90*24*time.Hour:
		return tuning.TimeScoreQuarter
	default:
		return tuning.TimeScoreFloor
	}
}

// lengthScore is a bell curve peaking between LengthPeakMin and
// LengthPeakMax characters. Very short and very long messages score lowest.
func lengthScore(chars int) int {
	switch {
	case chars >= tuning.LengthPeakMin && chars <= tuning.LengthPeakMax:
		return tuning.LengthScorePeak
	case chars >= tuning.LengthLow && chars <= tuning.LengthHigh:
		return tuning.LengthScoreShoulder
	default:
		return tuning.LengthScoreTail
	}
}

func toolScore(calls []types.ToolCall) int {
	if len(calls) == 0 {
		return 0
	}

	score := len(calls) * tuning.ToolScorePerCall
	distinct := make(map[string]bool, len(calls))
	hasError := false
	for _, call := range calls {
		distinct[call.Name] = true
		if call.IsError {
			hasError = true
		}
	}
	score += len(distinct) * tuning.ToolScorePerDistinct
	if hasError {
		// Failed tool runs carry debugging context worth keeping.
		score += tuning.ToolScoreErrorBias
	}
	return clamp(score)
}

var (
	questionWords = []string{"how", "why", "what", "when", "where", "which", "can i", "could", "should i",
		"怎么", "如何", "为什么", "什么", "哪"}
	commandWords = []string{"please", "run", "add", "create", "implement", "fix", "update", "remove", "write", "refactor",
		"请", "执行", "添加", "创建", "实现", "修改"}
	feedbackWords = []string{"thanks", "thank you", "great", "perfect", "wrong", "not working", "doesn't work", "still fails",
		"谢谢", "很好", "不对", "不行"}
	answerWords = []string{"you can", "you should", "here is", "here's", "the answer", "to do this",
		"你可以", "可以通过"}
	explanationWords = []string{"because", "therefore", "this means", "the reason", "due to",
		"因为", "所以", "原因"}
)

func interactionScore(msg *types.Message) int {
	lower := strings.ToLower(msg.Content)

	switch msg.Role {
	case types.RoleUser:
		if strings.Contains(lower, "?") || strings.Contains(lower, "？") || containsAny(lower, questionWords) {
			return tuning.InteractionScoreQuestion
		}
		if containsAny(lower, commandWords) {
			return tuning.InteractionScoreCommand
		}
		if containsAny(lower, feedbackWords) {
			return tuning.InteractionScoreFeedback
		}
	case types.RoleAssistant:
		if containsAny(lower, answerWords) {
			return tuning.InteractionScoreAnswer
		}
		if containsAny(lower, explanationWords) {
			return tuning.InteractionScoreExplanation
		}
	}
	return 0
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func clamp(score int) int {
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}
