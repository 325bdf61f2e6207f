package domain

// Label is the binary risk verdict.
type Label string

const (
	LabelSafe  Label = "SAFE"
	LabelFraud Label = "FRAUD"
)

// Risk levels shown next to the verdict.
const (
	RiskLevelHigh = "HIGH RISK"
	RiskLevelLow  = "LOW RISK"
)

// ScoreSource names the strategy that produced the pre-overlay probability.
type ScoreSource string

const (
	SourceModelProbability ScoreSource = "model_probability"
	SourceModelDecision    ScoreSource = "model_decision"
	SourceFallback         ScoreSource = "fallback"
)

// ScoreResult is the outcome of one evaluation. It carries no identifiers or
// timestamps so that identical inputs produce identical results.
type ScoreResult struct {
	Probability        float64     `json:"probability"`
	ProbabilityDisplay string      `json:"probabilityDisplay"`
	Label              Label       `json:"label"`
	RiskLevel          string      `json:"riskLevel"`
	Recommendation     string      `json:"recommendation"`
	Source             ScoreSource `json:"source"`

	// BaseProbability is the strategy output before any floor was applied.
	BaseProbability float64 `json:"baseProbability"`

	// AppliedRules lists the floor rules that raised the probability, in order.
	AppliedRules []string `json:"appliedRules,omitempty"`

	// FallbackRule is the decision-list entry that matched when Source is fallback.
	FallbackRule string `json:"fallbackRule,omitempty"`

	Features DerivedFeatures `json:"features"`
}
