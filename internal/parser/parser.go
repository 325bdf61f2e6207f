// Package parser turns raw form values into a validated Transaction.
package parser

import (
	"regexp"
	"strings"

	"github.com/opensource-finance/securescan/internal/domain"
	"github.com/shopspring/decimal"
)

// ThousandsSeparator is stripped from numeric input before parsing.
const ThousandsSeparator = ","

// MaxSignificantDigits bounds the precision of an amount. Values within it
// convert to distinct float64s in the same order, so rule thresholds compared
// as doubles agree with the exact decimal comparisons of the feature deriver.
const MaxSignificantDigits = 15

const maxAmountLength = 64

// plainNumber accepts digits with an optional sign and fraction. Exponent
// notation is rejected.
var plainNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Parse validates a raw submission. The first offending field is reported.
func Parse(raw domain.RawTransaction) (*domain.Transaction, error) {
	txType, err := domain.ParseTxType(raw.Type)
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{Type: txType}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{domain.FieldAmount, raw.Amount, &tx.Amount},
		{domain.FieldSenderBalanceBefore, raw.SenderBalanceBefore, &tx.SenderBalanceBefore},
		{domain.FieldSenderBalanceAfter, raw.SenderBalanceAfter, &tx.SenderBalanceAfter},
		{domain.FieldReceiverBalanceBefore, raw.ReceiverBalanceBefore, &tx.ReceiverBalanceBefore},
		{domain.FieldReceiverBalanceAfter, raw.ReceiverBalanceAfter, &tx.ReceiverBalanceAfter},
	}

	for _, f := range fields {
		v, err := ParseAmount(f.name, f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	return tx, nil
}

// ParseAmount parses one monetary field. Thousands separators are removed,
// the rest must be a plain decimal number that is not negative.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ThousandsSeparator, ""))
	if cleaned == "" {
		return decimal.Zero, &domain.InvalidNumericInputError{Field: field, Value: s, Reason: "value is empty"}
	}

	if len(cleaned) > maxAmountLength || !plainNumber.MatchString(cleaned) {
		return decimal.Zero, &domain.InvalidNumericInputError{Field: field, Value: s, Reason: "not a number"}
	}
	if significantDigits(cleaned) > MaxSignificantDigits {
		return decimal.Zero, &domain.InvalidNumericInputError{Field: field, Value: s, Reason: "out of range"}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, &domain.InvalidNumericInputError{Field: field, Value: s, Reason: "not a number"}
	}

	if d.IsNegative() {
		return decimal.Zero, &domain.InvalidNumericInputError{Field: field, Value: s, Reason: "must not be negative"}
	}

	return d, nil
}

// significantDigits counts the digits of a plain number, ignoring leading
// zeros and trailing zeros of the fraction.
func significantDigits(s string) int {
	s = strings.TrimLeft(s, "+-")
	whole, frac, _ := strings.Cut(s, ".")
	whole = strings.TrimLeft(whole, "0")
	frac = strings.TrimRight(frac, "0")
	if whole == "" {
		frac = strings.TrimLeft(frac, "0")
	}
	return len(whole) + len(frac)
}
