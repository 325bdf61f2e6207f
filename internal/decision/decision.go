// Package decision turns a final fraud probability into a verdict.
package decision

import (
	"fmt"

	"github.com/opensource-finance/securescan/internal/domain"
)

// DefaultThreshold is the classification boundary. A probability strictly
// above it is FRAUD.
const DefaultThreshold = 0.5

// Processor maps probabilities onto labels and recommendations.
type Processor struct {
	// Threshold above which a transaction is labelled FRAUD
	Threshold float64

	FraudRecommendation string
	SafeRecommendation  string
}

// NewProcessor creates a processor with default settings.
func NewProcessor() *Processor {
	cfg := domain.DefaultConfig().Scoring
	return &Processor{
		Threshold:           DefaultThreshold,
		FraudRecommendation: cfg.FraudRecommendation,
		SafeRecommendation:  cfg.SafeRecommendation,
	}
}

// NewProcessorFromConfig creates a processor from scoring configuration.
func NewProcessorFromConfig(cfg domain.ScoringConfig) *Processor {
	p := NewProcessor()
	p.Threshold = cfg.Threshold
	if cfg.FraudRecommendation != "" {
		p.FraudRecommendation = cfg.FraudRecommendation
	}
	if cfg.SafeRecommendation != "" {
		p.SafeRecommendation = cfg.SafeRecommendation
	}
	return p
}

// Decision is the verdict for one probability.
type Decision struct {
	Label          domain.Label
	RiskLevel      string
	Recommendation string
}

// Classify labels probability p. Label and recommendation always agree.
func (p *Processor) Classify(prob float64) Decision {
	if prob > p.Threshold {
		return Decision{
			Label:          domain.LabelFraud,
			RiskLevel:      domain.RiskLevelHigh,
			Recommendation: p.FraudRecommendation,
		}
	}
	return Decision{
		Label:          domain.LabelSafe,
		RiskLevel:      domain.RiskLevelLow,
		Recommendation: p.SafeRecommendation,
	}
}

// ShouldAlert returns true if the result should trigger an alert.
func ShouldAlert(result *domain.ScoreResult) bool {
	return result.Label == domain.LabelFraud
}

// FormatProbability renders a probability as a percentage with one decimal.
func FormatProbability(prob float64) string {
	return fmt.Sprintf("%.1f%%", prob*100)
}
