// Package rules provides the CEL-Go based rule overlay and fallback scorer.
package rules

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/securescan/internal/domain"
)

// DefaultRuleID is reported as the fallback rule when no decision-list entry matched.
const DefaultRuleID = "default"

// Engine holds the two ordered rule lists: probability floors and the
// fallback decision list. Evaluation is read-only; ReloadRules swaps the
// lists atomically.
type Engine struct {
	mu        sync.RWMutex
	env       *cel.Env
	floors    []*CompiledRule
	fallbacks []*CompiledRule

	defaultProbability float64
	builtinFloors      []*domain.RuleConfig
	builtinFallbacks   []*domain.RuleConfig

	generation atomic.Uint64
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEnv creates the CEL environment shared by rules and CEL models.
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("old_balance_orig", cel.DoubleType),
		cel.Variable("new_balance_orig", cel.DoubleType),
		cel.Variable("old_balance_dest", cel.DoubleType),
		cel.Variable("new_balance_dest", cel.DoubleType),
		cel.Variable("sender_delta", cel.DoubleType),
		cel.Variable("receiver_delta", cel.DoubleType),
		// Derived suspicious-pattern flags
		cel.Variable("suspicious_cash_out", cel.BoolType),
		cel.Variable("suspicious_transfer", cel.BoolType),
		cel.Variable("large_amount", cel.BoolType),
		cel.Variable("full_withdrawal", cel.BoolType),
		cel.Variable("zero_receiver", cel.BoolType),
		cel.Variable("receiver_unchanged_nonzero", cel.BoolType),
		cel.Variable("amount_mismatch", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// Activation builds the CEL variables for one transaction.
func Activation(tx *domain.Transaction, f domain.DerivedFeatures) map[string]any {
	vars := map[string]any{
		"tx_type":          string(tx.Type),
		"amount":           tx.Amount.InexactFloat64(),
		"old_balance_orig": tx.SenderBalanceBefore.InexactFloat64(),
		"new_balance_orig": tx.SenderBalanceAfter.InexactFloat64(),
		"old_balance_dest": tx.ReceiverBalanceBefore.InexactFloat64(),
		"new_balance_dest": tx.ReceiverBalanceAfter.InexactFloat64(),
		"sender_delta":     f.SenderDelta.InexactFloat64(),
		"receiver_delta":   f.ReceiverDelta.InexactFloat64(),
	}
	for name, v := range f.Flags() {
		vars[name] = v
	}
	return vars
}

// NewEngine creates an engine loaded with the built-in rule sets rendered
// from cfg.
func NewEngine(cfg *domain.Config) (*Engine, error) {
	if cfg == nil {
		cfg = domain.DefaultConfig()
	}

	env, err := NewEnv()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		env:                env,
		defaultProbability: cfg.Fallback.DefaultProbability,
		builtinFloors:      DefaultFloorRules(cfg.Overlay),
		builtinFallbacks:   DefaultFallbackRules(cfg.Fallback),
	}

	if err := e.ReloadRules(nil, nil); err != nil {
		return nil, fmt.Errorf("failed to load built-in rules: %w", err)
	}
	return e, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if err := e.checkReserved(cfg); err != nil {
		return err
	}
	_, err := e.compileRule(cfg)
	return err
}

// ReloadRules installs new rule lists. Floors are layered after the built-in
// floors, which always stay active and are tuned through config only.
// Fallbacks replace the built-in decision list; an empty list restores it.
// If any rule fails to compile, nothing changes.
func (e *Engine) ReloadRules(floors, fallbacks []*domain.RuleConfig) error {
	if len(fallbacks) == 0 {
		fallbacks = e.builtinFallbacks
	}

	for _, cfg := range floors {
		if err := e.checkReserved(cfg); err != nil {
			return err
		}
	}

	builtin, err := e.compileSet(domain.RuleKindFloor, e.builtinFloors)
	if err != nil {
		return err
	}
	stored, err := e.compileSet(domain.RuleKindFloor, floors)
	if err != nil {
		return err
	}
	newFloors := append(builtin, stored...)

	newFallbacks, err := e.compileSet(domain.RuleKindFallback, fallbacks)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.floors = newFloors
	e.fallbacks = newFallbacks
	e.mu.Unlock()

	e.generation.Add(1)
	return nil
}

// Generation increases every time the rule lists change.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

// GetLoadedRules returns the active rule configurations of one kind, in order.
func (e *Engine) GetLoadedRules(kind domain.RuleKind) []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	src := e.floors
	if kind == domain.RuleKindFallback {
		src = e.fallbacks
	}

	rules := make([]*domain.RuleConfig, 0, len(src))
	for _, compiled := range src {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// RulesCount returns the number of loaded rules across both lists.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.floors) + len(e.fallbacks)
}

// ApplyFloors raises prob to every matching floor and clamps the result to
// [0,1]. The result is never below prob. It also returns the IDs of the
// floors that raised the value, in rule order.
func (e *Engine) ApplyFloors(prob float64, vars map[string]any) (float64, []string) {
	e.mu.RLock()
	floors := e.floors
	e.mu.RUnlock()

	var applied []string
	for _, rule := range floors {
		if !e.matches(rule, vars) {
			continue
		}
		if rule.Config.Value > prob {
			prob = rule.Config.Value
			applied = append(applied, rule.Config.ID)
		}
	}

	return clamp(prob), applied
}

// Fallback walks the decision list and returns the probability of the first
// matching rule, or the default probability when none matches.
func (e *Engine) Fallback(vars map[string]any) (float64, string) {
	e.mu.RLock()
	fallbacks := e.fallbacks
	e.mu.RUnlock()

	for _, rule := range fallbacks {
		if e.matches(rule, vars) {
			return rule.Config.Value, rule.Config.ID
		}
	}
	return e.defaultProbability, DefaultRuleID
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.floors = nil
	e.fallbacks = nil
	return nil
}

// matches evaluates a rule predicate. Evaluation errors count as no match.
func (e *Engine) matches(rule *CompiledRule, vars map[string]any) bool {
	out, _, err := rule.Program.Eval(vars)
	if err != nil {
		slog.Warn("rule evaluation failed", "rule_id", rule.Config.ID, "error", err)
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// checkReserved rejects floor rules that reuse a built-in floor ID.
func (e *Engine) checkReserved(cfg *domain.RuleConfig) error {
	if cfg == nil || cfg.Kind != domain.RuleKindFloor {
		return nil
	}
	for _, b := range e.builtinFloors {
		if b.ID == cfg.ID {
			return fmt.Errorf("rule %s: id is reserved for a built-in floor", cfg.ID)
		}
	}
	return nil
}

func (e *Engine) compileSet(kind domain.RuleKind, configs []*domain.RuleConfig) ([]*CompiledRule, error) {
	ordered := make([]*domain.RuleConfig, 0, len(configs))
	for _, cfg := range configs {
		if cfg == nil || !cfg.Enabled {
			continue
		}
		if cfg.Kind != kind {
			return nil, fmt.Errorf("rule %s: expected kind %s, got %s", cfg.ID, kind, cfg.Kind)
		}
		ordered = append(ordered, cfg)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	compiled := make([]*CompiledRule, 0, len(ordered))
	for _, cfg := range ordered {
		rule, err := e.compileRule(cfg)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, rule)
	}
	return compiled, nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rule config is required")
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	if cfg.Kind != domain.RuleKindFloor && cfg.Kind != domain.RuleKindFallback {
		return nil, fmt.Errorf("rule %s: unsupported kind %q", cfg.ID, cfg.Kind)
	}
	if math.IsNaN(cfg.Value) || cfg.Value < 0 || cfg.Value > 1 {
		return nil, fmt.Errorf("rule %s: value must be within [0,1], got %v", cfg.ID, cfg.Value)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

func clamp(p float64) float64 {
	return math.Min(1, math.Max(0, p))
}
