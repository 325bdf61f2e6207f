package scoring

import (
	"context"

	"github.com/opensource-finance/securescan/internal/domain"
	"github.com/opensource-finance/securescan/internal/model"
	"github.com/opensource-finance/securescan/internal/rules"
)

// Input is everything a strategy may look at for one transaction.
type Input struct {
	Transaction *domain.Transaction
	Features    domain.DerivedFeatures
	Record      model.Record
	Vars        map[string]any
}

// Outcome is a pre-overlay probability and the rule that produced it, if any.
type Outcome struct {
	Probability float64
	Rule        string
}

// Strategy produces a pre-overlay probability or a typed failure.
type Strategy interface {
	Source() domain.ScoreSource
	Score(ctx context.Context, in *Input) (Outcome, error)
}

// ModelProbability asks the model for the fraud-class probability.
type ModelProbability struct {
	Loader *model.Loader
}

func (s ModelProbability) Source() domain.ScoreSource { return domain.SourceModelProbability }

func (s ModelProbability) Score(ctx context.Context, in *Input) (Outcome, error) {
	m, err := s.Loader.Load(ctx)
	if err != nil {
		return Outcome{}, err
	}
	p, err := m.Probability(ctx, in.Record)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Probability: p}, nil
}

// ModelDecision maps the model's binary decision onto fixed probabilities.
type ModelDecision struct {
	Loader           *model.Loader
	FraudProbability float64
	SafeProbability  float64
}

func (s ModelDecision) Source() domain.ScoreSource { return domain.SourceModelDecision }

func (s ModelDecision) Score(ctx context.Context, in *Input) (Outcome, error) {
	m, err := s.Loader.Load(ctx)
	if err != nil {
		return Outcome{}, err
	}
	d, err := m.Decision(ctx, in.Record)
	if err != nil {
		return Outcome{}, err
	}
	if d == 1 {
		return Outcome{Probability: s.FraudProbability}, nil
	}
	return Outcome{Probability: s.SafeProbability}, nil
}

// Fallback walks the deterministic decision list. It never fails.
type Fallback struct {
	Rules *rules.Engine
}

func (s Fallback) Source() domain.ScoreSource { return domain.SourceFallback }

func (s Fallback) Score(_ context.Context, in *Input) (Outcome, error) {
	p, rule := s.Rules.Fallback(in.Vars)
	return Outcome{Probability: p, Rule: rule}, nil
}
