// Package tuning centralizes every heuristic constant used by memorypg:
// token-estimation ratios, importance-scoring weights and breakpoints,
// retrieval ranking weights, and compression trigger defaults.
//
// Algorithm code never hard-codes a magic number; tuning a heuristic means
// editing this package and nothing else.
package tuning

import "time"

// Token estimation.
//
// The estimator is a fixed character heuristic, not a tokenizer. The ratios
// below are part of the public contract: estimates must be reproducible
// across processes and versions.
const (
	// TokensPerCJKChar is the token weight of one CJK character
	// (Han, Hiragana, Katakana, Hangul).
	TokensPerCJKChar = 2.0

	// TokensPerOtherChar is the token weight of every non-CJK character.
	TokensPerOtherChar = 0.25

	// CJKDominantFraction is the CJK character fraction above which a text
	// is treated as Chinese for prompt-template selection.
	CJKDominantFraction = 0.30

	// MessageTokenOverhead is the fixed per-message framing overhead.
	MessageTokenOverhead = 4
)

// Default per-type token estimates, used when an entry carries no content
// text to estimate from.
const (
	DefaultTokensFile            = 500
	DefaultTokensFileStructure   = 200
	DefaultTokensSymbol          = 80
	DefaultTokensSymbolReference = 60
	DefaultTokensSelection       = 150
	DefaultTokensDiagnostics     = 120
	DefaultTokensDependency      = 100
	DefaultTokensProjectMeta     = 150
	DefaultTokensUserMessage     = 200
	DefaultTokensToolResult      = 300
	DefaultTokensFolder          = 100
)

// Context entry priorities (0-5) by source.
const (
	PriorityUserSelection   = 5
	PriorityIDE             = 4
	PriorityDiagnostics     = 4
	PriorityProject         = 3
	PriorityWorkspace       = 2
	PrioritySemanticRelated = 2
	PriorityHistory         = 1

	// MaxPriority is the upper bound of the priority scale.
	MaxPriority = 5

	// CurrentFileBoost is added to entries matching the query's current file.
	CurrentFileBoost = 2

	// MentionedFileBoost is added to entries matching a mentioned file.
	MentionedFileBoost = 1

	// DefaultContextMaxTokens bounds a context query when the caller does
	// not set a budget.
	DefaultContextMaxTokens = 8_000

	// DefaultReservedTokens is held back from the budget for the system
	// prompt and response headroom.
	DefaultReservedTokens = 500
)

// Importance scoring. The six dimension weights sum to 1.0; each dimension
// is capped at 100 before weighting so the total stays in [0, 100].
const (
	WeightContent     = 0.40
	WeightRole        = 0.15
	WeightTime        = 0.15
	WeightLength      = 0.10
	WeightTools       = 0.10
	WeightInteraction = 0.10

	// Level thresholds (defaults; configurable on the scorer).
	ScoreLevelHigh   = 70
	ScoreLevelMedium = 40
)

// Role dimension scores, fixed ranking user > assistant > system > tool.
const (
	RoleScoreUser      = 100
	RoleScoreAssistant = 80
	RoleScoreSystem    = 60
	RoleScoreTool      = 40
	RoleScoreToolGroup = 20
)

// Time-decay steps for the time dimension.
const (
	TimeScoreFresh   = 100 // within 1 hour
	TimeScoreDay     = 80  // within 24 hours
	TimeScoreWeek    = 60  // within 7 days
	TimeScoreMonth   = 40  // within 30 days
	TimeScoreQuarter = 30  // within 90 days
	TimeScoreFloor   = 20  // beyond 90 days
)

// Length dimension bell curve, in characters.
const (
	LengthPeakMin = 500
	LengthPeakMax = 2000
	LengthLow     = 100
	LengthHigh    = 5000

	LengthScorePeak     = 100
	LengthScoreShoulder = 70
	LengthScoreTail     = 40
)

// Content dimension sub-scores.
const (
	ContentScorePerKeyword   = 15
	ContentScorePerCodeBlock = 20
	ContentScorePerHeading   = 5
	ContentScorePerDefine    = 15
)

// Tool dimension sub-scores.
const (
	ToolScorePerCall     = 25
	ToolScorePerDistinct = 15
	ToolScoreErrorBias   = 20
)

// Interaction dimension sub-scores.
const (
	InteractionScoreQuestion    = 60
	InteractionScoreCommand     = 50
	InteractionScoreFeedback    = 40
	InteractionScoreAnswer      = 50
	InteractionScoreExplanation = 40
)

// Compression scheduling defaults.
const (
	DefaultCompressMaxTokens   = 100_000
	DefaultCompressMaxMessages = 100
	DefaultCompressMaxAgeHours = 168 // 7 days

	// DefaultTargetTokenRatio is the fraction of active tokens that should
	// remain after a size- or importance-driven compression. Strategies
	// archive oldest/lowest-scoring messages until at least
	// total*(1-ratio) tokens have been removed.
	DefaultTargetTokenRatio = 0.5

	// ProtectedScoreThreshold: messages scoring strictly above this are
	// never archived by the importance strategy.
	ProtectedScoreThreshold = 70

	// DefaultImportanceScore is assumed for messages never scored.
	DefaultImportanceScore = 50

	// SummaryTokenWeight inflates the summary's token estimate when
	// computing post-compression totals, covering framing overhead when the
	// summary is re-injected into prompts.
	SummaryTokenWeight = 1.5

	// FallbackSummaryMaxChars bounds the truncated summary used when the
	// model's output is not the requested JSON.
	FallbackSummaryMaxChars = 300

	// FallbackMaxKeyPoints bounds bullet-line extraction in the same
	// degraded path.
	FallbackMaxKeyPoints = 8
)

// Background task cadence.
const (
	// DelayedCompressionDelay is the debounce window for fire-and-forget
	// compression triggers.
	DelayedCompressionDelay = 1 * time.Second

	// ExpirySweepInterval is how often expired context entries are removed.
	ExpirySweepInterval = 5 * time.Minute
)

// Knowledge extraction confidences by knowledge type.
const (
	ConfidenceProjectContext = 0.9
	ConfidenceKeyDecision    = 0.7
	ConfidenceCodePattern    = 0.6
	ConfidenceFAQ            = 0.8
	ConfidenceUserPreference = 0.7
)

// Memory retrieval ranking weights.
const (
	RankExactKeyMatch  = 50 // query is a substring of the key
	RankPerWordKeyHit  = 10 // each query word found in the key
	RankValueMatch     = 30 // query is a substring of the value
	RankHitCountFactor = 2  // hitCount * factor, capped below
	RankHitCountCap    = 20
	RankConfidence     = 10 // confidence * factor
	RankRecentWeek     = 10 // last hit within 7 days
	RankRecentMonth    = 5  // last hit within 30 days
)

// Reminder thresholds.
const (
	RemindMinHits       = 5
	RemindRecencyDays   = 30
	RemindHighHitFloor  = 10
	RemindRecentWindow  = RemindRecencyDays * 24 * time.Hour
	RetrievalWeekWindow = 7 * 24 * time.Hour
)
