package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/securescan/internal/domain"
)

// Built-in rule IDs.
const (
	RuleSuspiciousCashOut  = "suspicious-cash-out"
	RuleSuspiciousTransfer = "suspicious-transfer"
	RuleAmountMismatch     = "amount-mismatch"
	RuleFullWithdrawal     = "full-withdrawal"

	RuleLargeTransfer  = "large-transfer"
	RuleCashOutDrained = "cash-out-empty-receiver"
	RuleLargeAmount    = "large-amount"
)

// DefaultFloorRules returns the overlay floors, in evaluation order.
func DefaultFloorRules(cfg domain.OverlayConfig) []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          RuleSuspiciousCashOut,
			Kind:        domain.RuleKindFloor,
			Name:        "Suspicious cash out",
			Description: "Cash out where the receiver balance did not move although it was non-zero",
			Expression:  "suspicious_cash_out",
			Value:       cfg.SuspiciousCashOutFloor,
			Position:    1,
			Enabled:     true,
		},
		{
			ID:          RuleSuspiciousTransfer,
			Kind:        domain.RuleKindFloor,
			Name:        "Suspicious transfer",
			Description: "Transfer where the receiver balance did not move although it was non-zero",
			Expression:  "suspicious_transfer",
			Value:       cfg.SuspiciousTransferFloor,
			Position:    2,
			Enabled:     true,
		},
		{
			ID:          RuleAmountMismatch,
			Kind:        domain.RuleKindFloor,
			Name:        "Amount mismatch",
			Description: "Stated amount differs from what left the sender",
			Expression:  "amount_mismatch",
			Value:       cfg.AmountMismatchFloor,
			Position:    3,
			Enabled:     true,
		},
		{
			ID:          RuleFullWithdrawal,
			Kind:        domain.RuleKindFloor,
			Name:        "Large full withdrawal",
			Description: "Cash out that nearly empties the sender",
			Expression:  fmt.Sprintf("full_withdrawal && amount > %s", celDouble(cfg.FullWithdrawalAmount)),
			Value:       cfg.FullWithdrawalFloor,
			Position:    4,
			Enabled:     true,
		},
	}
}

// DefaultFallbackRules returns the fallback decision list, in priority order.
// The configured default probability applies when none of them match.
func DefaultFallbackRules(cfg domain.FallbackConfig) []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:         RuleLargeTransfer,
			Kind:       domain.RuleKindFallback,
			Name:       "Large transfer",
			Expression: fmt.Sprintf(`tx_type == "TRANSFER" && amount > %s`, celDouble(cfg.TransferAmount)),
			Value:      cfg.TransferProbability,
			Position:   1,
			Enabled:    true,
		},
		{
			ID:         RuleCashOutDrained,
			Kind:       domain.RuleKindFallback,
			Name:       "Cash out to empty receiver",
			Expression: `tx_type == "CASH_OUT" && new_balance_dest == 0.0`,
			Value:      cfg.CashOutProbability,
			Position:   2,
			Enabled:    true,
		},
		{
			ID:         RuleLargeAmount,
			Kind:       domain.RuleKindFallback,
			Name:       "Large amount",
			Expression: fmt.Sprintf("amount > %s", celDouble(cfg.LargeAmount)),
			Value:      cfg.LargeAmountProbability,
			Position:   3,
			Enabled:    true,
		},
	}
}

// celDouble formats v as a CEL double literal. CEL does not compare int and
// double without a conversion, so a whole number still needs a fraction.
func celDouble(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
