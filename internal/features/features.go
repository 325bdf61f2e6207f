// Package features derives the secondary fraud signals of a transaction.
package features

import (
	"github.com/opensource-finance/securescan/internal/domain"
	"github.com/shopspring/decimal"
)

// Deriver computes DerivedFeatures. It holds only immutable thresholds, so
// Derive is pure and safe for concurrent use.
type Deriver struct {
	largeAmount           decimal.Decimal
	fullWithdrawalBalance decimal.Decimal
	mismatchTolerance     decimal.Decimal
}

// NewDeriver creates a deriver from the configured thresholds.
func NewDeriver(cfg domain.FeatureConfig) *Deriver {
	return &Deriver{
		largeAmount:           decimal.NewFromFloat(cfg.LargeAmount),
		fullWithdrawalBalance: decimal.NewFromFloat(cfg.FullWithdrawalBalance),
		mismatchTolerance:     decimal.NewFromFloat(cfg.MismatchTolerance),
	}
}

// Derive computes the deltas and flags of tx. tx is not modified.
func (d *Deriver) Derive(tx *domain.Transaction) domain.DerivedFeatures {
	senderDelta := tx.SenderBalanceBefore.Sub(tx.SenderBalanceAfter)
	receiverDelta := tx.ReceiverBalanceAfter.Sub(tx.ReceiverBalanceBefore)

	receiverHadFunds := tx.ReceiverBalanceBefore.IsPositive()
	receiverUnmoved := receiverDelta.IsZero()

	return domain.DerivedFeatures{
		SenderDelta:   senderDelta,
		ReceiverDelta: receiverDelta,

		SuspiciousCashOut:  tx.Type == domain.TxCashOut && receiverUnmoved && receiverHadFunds,
		SuspiciousTransfer: tx.Type == domain.TxTransfer && receiverUnmoved && receiverHadFunds,
		LargeAmount:        tx.Amount.GreaterThan(d.largeAmount),
		FullWithdrawal:     tx.Type == domain.TxCashOut && tx.SenderBalanceAfter.LessThan(d.fullWithdrawalBalance),
		ZeroReceiver:       tx.ReceiverBalanceBefore.IsZero() && tx.ReceiverBalanceAfter.IsZero(),

		ReceiverUnchangedNonzero: tx.ReceiverBalanceBefore.Equal(tx.ReceiverBalanceAfter) &&
			tx.Type == domain.TxCashOut && receiverHadFunds,

		AmountMismatch: senderDelta.Sub(tx.Amount).Abs().GreaterThan(d.mismatchTolerance),
	}
}
