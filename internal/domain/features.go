package domain

import "github.com/shopspring/decimal"

// DerivedFeatures are the secondary signals computed from one Transaction.
// They are never stored.
type DerivedFeatures struct {
	// SenderDelta is what actually left the sender's account.
	SenderDelta decimal.Decimal `json:"senderDelta"`
	// ReceiverDelta is what actually arrived at the receiver.
	ReceiverDelta decimal.Decimal `json:"receiverDelta"`

	SuspiciousCashOut        bool `json:"suspiciousCashOut"`
	SuspiciousTransfer       bool `json:"suspiciousTransfer"`
	LargeAmount              bool `json:"largeAmount"`
	FullWithdrawal           bool `json:"fullWithdrawal"`
	ZeroReceiver             bool `json:"zeroReceiver"` // informational only
	ReceiverUnchangedNonzero bool `json:"receiverUnchangedNonzero"`
	AmountMismatch           bool `json:"amountMismatch"`
}

// Flags returns the boolean flags keyed by their rule variable names.
func (f DerivedFeatures) Flags() map[string]bool {
	return map[string]bool{
		"suspicious_cash_out":        f.SuspiciousCashOut,
		"suspicious_transfer":        f.SuspiciousTransfer,
		"large_amount":               f.LargeAmount,
		"full_withdrawal":            f.FullWithdrawal,
		"zero_receiver":              f.ZeroReceiver,
		"receiver_unchanged_nonzero": f.ReceiverUnchangedNonzero,
		"amount_mismatch":            f.AmountMismatch,
	}
}
