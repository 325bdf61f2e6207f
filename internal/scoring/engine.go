// Package scoring runs the fraud risk pipeline: parse, derive features,
// score through an ordered strategy chain, apply rule floors and classify.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/securescan/internal/decision"
	"github.com/opensource-finance/securescan/internal/domain"
	"github.com/opensource-finance/securescan/internal/features"
	"github.com/opensource-finance/securescan/internal/model"
	"github.com/opensource-finance/securescan/internal/parser"
	"github.com/opensource-finance/securescan/internal/rules"
)

var tracer = otel.Tracer("securescan-scoring")

// Engine evaluates one transaction at a time. It holds no per-call state and
// is safe for concurrent use.
type Engine struct {
	deriver    *features.Deriver
	loader     *model.Loader
	rules      *rules.Engine
	classifier *decision.Processor
	strategies []Strategy
}

// NewEngine wires the pipeline. loader may be nil, meaning no model.
func NewEngine(cfg *domain.Config, loader *model.Loader, ruleEngine *rules.Engine) (*Engine, error) {
	if cfg == nil {
		cfg = domain.DefaultConfig()
	}
	if loader == nil {
		loader = model.NewLoader(nil)
	}
	if ruleEngine == nil {
		var err error
		ruleEngine, err = rules.NewEngine(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create rule engine: %w", err)
		}
	}

	return &Engine{
		deriver:    features.NewDeriver(cfg.Features),
		loader:     loader,
		rules:      ruleEngine,
		classifier: decision.NewProcessorFromConfig(cfg.Scoring),
		strategies: []Strategy{
			ModelProbability{Loader: loader},
			ModelDecision{
				Loader:           loader,
				FraudProbability: cfg.Model.DecisionFraudProbability,
				SafeProbability:  cfg.Model.DecisionSafeProbability,
			},
			Fallback{Rules: ruleEngine},
		},
	}, nil
}

// Evaluate validates the six raw fields and scores the transaction. A
// validation failure returns a nil result and an error matching
// domain.ErrValidation. Model failures never reach the caller.
func (e *Engine) Evaluate(ctx context.Context, raw domain.RawTransaction) (*domain.ScoreResult, error) {
	tx, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	return e.EvaluateTransaction(ctx, tx)
}

// EvaluateTransaction scores an already validated transaction.
func (e *Engine) EvaluateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.ScoreResult, error) {
	ctx, span := tracer.Start(ctx, "scoring.Evaluate")
	defer span.End()

	f := e.deriver.Derive(tx)
	in := &Input{
		Transaction: tx,
		Features:    f,
		Record:      model.RecordFrom(tx),
		Vars:        rules.Activation(tx, f),
	}

	var (
		outcome Outcome
		source  domain.ScoreSource
		scored  bool
	)
	for _, s := range e.strategies {
		out, err := s.Score(ctx, in)
		if err != nil {
			logStrategyFailure(ctx, s.Source(), err)
			continue
		}
		outcome, source, scored = out, s.Source(), true
		break
	}
	if !scored {
		err := errors.New("no scoring strategy produced a probability")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	final, applied := e.rules.ApplyFloors(outcome.Probability, in.Vars)
	d := e.classifier.Classify(final)

	span.SetAttributes(
		attribute.String("score.source", string(source)),
		attribute.Float64("score.probability", final),
		attribute.String("score.label", string(d.Label)),
	)

	return &domain.ScoreResult{
		Probability:        final,
		ProbabilityDisplay: decision.FormatProbability(final),
		Label:              d.Label,
		RiskLevel:          d.RiskLevel,
		Recommendation:     d.Recommendation,
		Source:             source,
		BaseProbability:    outcome.Probability,
		AppliedRules:       applied,
		FallbackRule:       outcome.Rule,
		Features:           f,
	}, nil
}

// logStrategyFailure logs inference failures at debug level. An unavailable
// model or a missing capability is skipped silently.
func logStrategyFailure(ctx context.Context, source domain.ScoreSource, err error) {
	if errors.Is(err, domain.ErrModelUnavailable) || errors.Is(err, domain.ErrCapabilityMissing) {
		return
	}
	slog.DebugContext(ctx, "scoring strategy failed", "source", source, "error", err)
}

// ReloadRules swaps the overlay and fallback rule lists.
func (e *Engine) ReloadRules(floors, fallbacks []*domain.RuleConfig) error {
	return e.rules.ReloadRules(floors, fallbacks)
}

// LoadStoredRules replaces the rule lists with the rule sets stored in repo.
// A kind with no stored rules keeps the built-in set.
func (e *Engine) LoadStoredRules(ctx context.Context, repo domain.Repository) (floors, fallbacks int, err error) {
	storedFloors, err := repo.ListRuleConfigs(ctx, domain.RuleKindFloor)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list floor rules: %w", err)
	}
	storedFallbacks, err := repo.ListRuleConfigs(ctx, domain.RuleKindFallback)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list fallback rules: %w", err)
	}

	if err := e.rules.ReloadRules(storedFloors, storedFallbacks); err != nil {
		return 0, 0, fmt.Errorf("failed to load stored rules: %w", err)
	}
	return len(storedFloors), len(storedFallbacks), nil
}

// ValidateRule checks a rule against the engine's rule environment.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	return e.rules.ValidateRule(cfg)
}

// Rules returns the active rules of one kind.
func (e *Engine) Rules(kind domain.RuleKind) []*domain.RuleConfig {
	return e.rules.GetLoadedRules(kind)
}

// Generation changes whenever the rule lists change. Memoized verdicts
// from an older generation are stale.
func (e *Engine) Generation() uint64 {
	return e.rules.Generation()
}

// ModelStatus reports whether a model is loaded.
func (e *Engine) ModelStatus(ctx context.Context) model.Status {
	return e.loader.Status(ctx)
}

// Close releases the rule engine.
func (e *Engine) Close() error {
	return e.rules.Close()
}
