package rules

import (
	"reflect"
	"testing"

	"github.com/opensource-finance/securescan/internal/domain"
	"github.com/opensource-finance/securescan/internal/features"
	"github.com/opensource-finance/securescan/internal/parser"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(domain.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func varsFor(t *testing.T, typ, amount, sb, sa, rb, ra string) map[string]any {
	t.Helper()
	tx, err := parser.Parse(domain.RawTransaction{
		Type:                  typ,
		Amount:                amount,
		SenderBalanceBefore:   sb,
		SenderBalanceAfter:    sa,
		ReceiverBalanceBefore: rb,
		ReceiverBalanceAfter:  ra,
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	f := features.NewDeriver(domain.DefaultConfig().Features).Derive(tx)
	return Activation(tx, f)
}

func TestEngineCreation(t *testing.T) {
	engine := newTestEngine(t)

	if got := len(engine.GetLoadedRules(domain.RuleKindFloor)); got != 4 {
		t.Errorf("expected 4 floor rules, got %d", got)
	}
	if got := len(engine.GetLoadedRules(domain.RuleKindFallback)); got != 3 {
		t.Errorf("expected 3 fallback rules, got %d", got)
	}
	if engine.RulesCount() != 7 {
		t.Errorf("expected 7 rules, got %d", engine.RulesCount())
	}
	if engine.Generation() != 1 {
		t.Errorf("expected generation 1, got %d", engine.Generation())
	}
}

func TestBuiltinExpressions(t *testing.T) {
	floors := DefaultFloorRules(domain.DefaultConfig().Overlay)
	if floors[3].Expression != "full_withdrawal && amount > 5000.0" {
		t.Errorf("unexpected expression %q", floors[3].Expression)
	}

	fallbacks := DefaultFallbackRules(domain.DefaultConfig().Fallback)
	if fallbacks[0].Expression != `tx_type == "TRANSFER" && amount > 4000.0` {
		t.Errorf("unexpected expression %q", fallbacks[0].Expression)
	}
	if fallbacks[2].Expression != "amount > 8000.0" {
		t.Errorf("unexpected expression %q", fallbacks[2].Expression)
	}

	if got := celDouble(1234.5); got != "1234.5" {
		t.Errorf("expected 1234.5, got %s", got)
	}
}

func TestApplyFloors(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("SuspiciousCashOut", func(t *testing.T) {
		vars := varsFor(t, "CASH_OUT", "2500", "3000", "500", "500", "500")
		got, applied := engine.ApplyFloors(0.05, vars)
		if got != 0.80 {
			t.Errorf("expected 0.80, got %v", got)
		}
		// the full-withdrawal floor needs amount > 5000
		if !reflect.DeepEqual(applied, []string{RuleSuspiciousCashOut}) {
			t.Errorf("unexpected applied rules %v", applied)
		}
	})

	t.Run("SuspiciousTransfer", func(t *testing.T) {
		vars := varsFor(t, "TRANSFER", "700", "1000", "300", "250", "250")
		got, _ := engine.ApplyFloors(0.2, vars)
		if got != 0.90 {
			t.Errorf("expected 0.90, got %v", got)
		}
	})

	t.Run("MaximumGoverns", func(t *testing.T) {
		// suspicious cash out (0.80), mismatch (0.70) and full withdrawal (0.60)
		vars := varsFor(t, "CASH_OUT", "6000", "20000", "500", "700", "700")
		got, applied := engine.ApplyFloors(0.1, vars)
		if got != 0.80 {
			t.Errorf("expected 0.80, got %v", got)
		}
		if !reflect.DeepEqual(applied, []string{RuleSuspiciousCashOut}) {
			t.Errorf("unexpected applied rules %v", applied)
		}
	})

	t.Run("FloorsInOrder", func(t *testing.T) {
		vars := varsFor(t, "CASH_OUT", "6000", "6500", "500", "0", "0")
		got, applied := engine.ApplyFloors(0.1, vars)
		if got != 0.60 {
			t.Errorf("expected 0.60, got %v", got)
		}
		if !reflect.DeepEqual(applied, []string{RuleFullWithdrawal}) {
			t.Errorf("unexpected applied rules %v", applied)
		}
	})

	t.Run("NeverLowers", func(t *testing.T) {
		vars := varsFor(t, "CASH_OUT", "2500", "3000", "500", "500", "500")
		for _, base := range []float64{0, 0.3, 0.79, 0.8, 0.95, 1} {
			got, _ := engine.ApplyFloors(base, vars)
			if got < base {
				t.Errorf("floor lowered %v to %v", base, got)
			}
		}
	})

	t.Run("NoFlags", func(t *testing.T) {
		vars := varsFor(t, "PAYMENT", "1,200.00", "10,000.00", "8,800.00", "5,000.00", "6,200.00")
		got, applied := engine.ApplyFloors(0.12, vars)
		if got != 0.12 || len(applied) != 0 {
			t.Errorf("expected untouched 0.12, got %v %v", got, applied)
		}
	})

	t.Run("Clamped", func(t *testing.T) {
		vars := varsFor(t, "PAYMENT", "1", "1", "0", "0", "1")
		if got, _ := engine.ApplyFloors(1.4, vars); got != 1 {
			t.Errorf("expected 1, got %v", got)
		}
		if got, _ := engine.ApplyFloors(-0.2, vars); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})
}

func TestFallback(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name     string
		vars     map[string]any
		wantProb float64
		wantRule string
	}{
		{
			name:     "LargeTransfer",
			vars:     varsFor(t, "TRANSFER", "5000.00", "8000.00", "3000.00", "0.00", "0.00"),
			wantProb: 0.87,
			wantRule: RuleLargeTransfer,
		},
		{
			name:     "TransferAtBoundary",
			vars:     varsFor(t, "TRANSFER", "4000", "8000", "4000", "10", "4010"),
			wantProb: 0.12,
			wantRule: DefaultRuleID,
		},
		{
			name:     "CashOutEmptyReceiver",
			vars:     varsFor(t, "CASH_OUT", "100", "1000", "900", "0", "0"),
			wantProb: 0.76,
			wantRule: RuleCashOutDrained,
		},
		{
			name:     "FirstMatchWins",
			vars:     varsFor(t, "CASH_OUT", "9000", "9000", "0", "0", "0"),
			wantProb: 0.76,
			wantRule: RuleCashOutDrained,
		},
		{
			name:     "LargeAmount",
			vars:     varsFor(t, "PAYMENT", "8000.01", "9000", "999.99", "0", "8000.01"),
			wantProb: 0.65,
			wantRule: RuleLargeAmount,
		},
		{
			name:     "AmountExactly8000",
			vars:     varsFor(t, "PAYMENT", "8000.00", "9000.00", "1000.00", "0.00", "8000.00"),
			wantProb: 0.12,
			wantRule: DefaultRuleID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prob, rule := engine.Fallback(tt.vars)
			if prob != tt.wantProb {
				t.Errorf("expected %v, got %v", tt.wantProb, prob)
			}
			if rule != tt.wantRule {
				t.Errorf("expected rule %s, got %s", tt.wantRule, rule)
			}
		})
	}
}

func TestValidateRule(t *testing.T) {
	engine := newTestEngine(t)

	valid := &domain.RuleConfig{
		ID:         "big-debit",
		Kind:       domain.RuleKindFloor,
		Expression: `tx_type == "DEBIT" && amount > 20000.0`,
		Value:      0.75,
		Enabled:    true,
	}
	if err := engine.ValidateRule(valid); err != nil {
		t.Errorf("expected valid rule, got %v", err)
	}

	invalid := map[string]*domain.RuleConfig{
		"Nil":          nil,
		"MissingID":    {Kind: domain.RuleKindFloor, Expression: "large_amount", Value: 0.5},
		"UnknownKind":  {ID: "x", Kind: "weight", Expression: "large_amount", Value: 0.5},
		"BadSyntax":    {ID: "x", Kind: domain.RuleKindFloor, Expression: "this is not valid CEL !!!", Value: 0.5},
		"NotBool":      {ID: "x", Kind: domain.RuleKindFloor, Expression: "amount * 2.0", Value: 0.5},
		"UnknownVar":   {ID: "x", Kind: domain.RuleKindFloor, Expression: "velocity_count > 10", Value: 0.5},
		"ValueTooHigh": {ID: "x", Kind: domain.RuleKindFallback, Expression: "large_amount", Value: 1.5},
		"NegativeVal":  {ID: "x", Kind: domain.RuleKindFallback, Expression: "large_amount", Value: -0.1},
	}
	for name, cfg := range invalid {
		t.Run(name, func(t *testing.T) {
			if err := engine.ValidateRule(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if engine.Generation() != 1 {
		t.Error("validation must not change loaded rules")
	}
}

func TestReloadRules(t *testing.T) {
	engine := newTestEngine(t)

	floors := []*domain.RuleConfig{
		{ID: "second", Kind: domain.RuleKindFloor, Expression: "large_amount", Value: 0.55, Position: 2, Enabled: true},
		{ID: "first", Kind: domain.RuleKindFloor, Expression: "zero_receiver", Value: 0.3, Position: 1, Enabled: true},
		{ID: "disabled", Kind: domain.RuleKindFloor, Expression: "true", Value: 1, Position: 0, Enabled: false},
	}
	fallbacks := []*domain.RuleConfig{
		{ID: "any-debit", Kind: domain.RuleKindFallback, Expression: `tx_type == "DEBIT"`, Value: 0.4, Position: 1, Enabled: true},
	}

	if err := engine.ReloadRules(floors, fallbacks); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if engine.Generation() != 2 {
		t.Errorf("expected generation 2, got %d", engine.Generation())
	}

	loaded := engine.GetLoadedRules(domain.RuleKindFloor)
	if len(loaded) != 6 {
		t.Fatalf("expected built-in floors plus 2 stored, got %d", len(loaded))
	}
	if loaded[0].ID != RuleSuspiciousCashOut || loaded[4].ID != "first" || loaded[5].ID != "second" {
		t.Fatalf("expected built-ins first then stored rules by position, got %s %s %s", loaded[0].ID, loaded[4].ID, loaded[5].ID)
	}

	vars := varsFor(t, "DEBIT", "15000", "15000", "0", "0", "0")
	got, applied := engine.ApplyFloors(0.1, vars)
	if got != 0.55 {
		t.Errorf("expected 0.55, got %v", got)
	}
	if !reflect.DeepEqual(applied, []string{"first", "second"}) {
		t.Errorf("unexpected applied rules %v", applied)
	}
	if prob, rule := engine.Fallback(vars); prob != 0.4 || rule != "any-debit" {
		t.Errorf("expected any-debit 0.4, got %s %v", rule, prob)
	}

	t.Run("FailedReloadKeepsRules", func(t *testing.T) {
		bad := []*domain.RuleConfig{
			{ID: "bad", Kind: domain.RuleKindFloor, Expression: "amount +", Value: 0.5, Enabled: true},
		}
		if err := engine.ReloadRules(bad, nil); err == nil {
			t.Fatal("expected compile error")
		}
		if engine.Generation() != 2 {
			t.Errorf("generation changed on failed reload")
		}
		if got := engine.GetLoadedRules(domain.RuleKindFloor)[4].ID; got != "first" {
			t.Errorf("expected previous rules, got %s", got)
		}
	})

	t.Run("BuiltinFloorsStayActive", func(t *testing.T) {
		vars := varsFor(t, "CASH_OUT", "2500", "3000", "500", "500", "500")
		got, applied := engine.ApplyFloors(0.1, vars)
		if got != 0.80 {
			t.Errorf("expected suspicious cash out floor 0.80, got %v", got)
		}
		if len(applied) == 0 || applied[0] != RuleSuspiciousCashOut {
			t.Errorf("unexpected applied rules %v", applied)
		}
	})

	t.Run("BuiltinFloorIDReserved", func(t *testing.T) {
		override := []*domain.RuleConfig{
			{ID: RuleSuspiciousCashOut, Kind: domain.RuleKindFloor, Expression: "suspicious_cash_out", Value: 0.1, Enabled: true},
		}
		if err := engine.ReloadRules(override, nil); err == nil {
			t.Error("expected reserved id error")
		}
		if err := engine.ValidateRule(override[0]); err == nil {
			t.Error("expected ValidateRule to reject reserved id")
		}
		if engine.Generation() != 2 {
			t.Errorf("generation changed on rejected reload")
		}
	})

	t.Run("WrongKindRejected", func(t *testing.T) {
		if err := engine.ReloadRules(fallbacks, nil); err == nil {
			t.Error("expected kind mismatch error")
		}
	})

	t.Run("EmptyRestoresBuiltins", func(t *testing.T) {
		if err := engine.ReloadRules(nil, nil); err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if engine.RulesCount() != 7 {
			t.Errorf("expected built-in rules, got %d", engine.RulesCount())
		}
	})
}

func TestConfiguredConstants(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Overlay.SuspiciousCashOutFloor = 0.95
	cfg.Fallback.DefaultProbability = 0.2

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	vars := varsFor(t, "CASH_OUT", "2500", "3000", "500", "500", "500")
	if got, _ := engine.ApplyFloors(0, vars); got != 0.95 {
		t.Errorf("expected configured floor 0.95, got %v", got)
	}

	vars = varsFor(t, "PAYMENT", "10", "100", "90", "0", "10")
	if got, _ := engine.Fallback(vars); got != 0.2 {
		t.Errorf("expected configured default 0.2, got %v", got)
	}
}
