package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TxType is the closed set of transaction types understood by the scorer.
type TxType string

const (
	TxPayment  TxType = "PAYMENT"
	TxTransfer TxType = "TRANSFER"
	TxCashOut  TxType = "CASH_OUT"
	TxCashIn   TxType = "CASH_IN"
	TxDebit    TxType = "DEBIT"
)

// TxTypes lists every valid transaction type in display order.
var TxTypes = []TxType{TxPayment, TxTransfer, TxCashOut, TxCashIn, TxDebit}

// ParseTxType maps free text onto a TxType.
// Surrounding whitespace and letter case are ignored.
func ParseTxType(s string) (TxType, error) {
	candidate := TxType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range TxTypes {
		if t == candidate {
			return t, nil
		}
	}
	return "", &InvalidTransactionTypeError{Value: s}
}

// Valid reports whether t is one of the enumerated variants.
func (t TxType) Valid() bool {
	for _, v := range TxTypes {
		if v == t {
			return true
		}
	}
	return false
}

// RawTransaction is one form submission before validation.
// All values are kept exactly as the user typed them.
type RawTransaction struct {
	Type                  string `json:"type"`
	Amount                string `json:"amount"`
	SenderBalanceBefore   string `json:"senderBalanceBefore"`
	SenderBalanceAfter    string `json:"senderBalanceAfter"`
	ReceiverBalanceBefore string `json:"receiverBalanceBefore"`
	ReceiverBalanceAfter  string `json:"receiverBalanceAfter"`
}

// Field names used in validation errors.
const (
	FieldType                  = "type"
	FieldAmount                = "amount"
	FieldSenderBalanceBefore   = "senderBalanceBefore"
	FieldSenderBalanceAfter    = "senderBalanceAfter"
	FieldReceiverBalanceBefore = "receiverBalanceBefore"
	FieldReceiverBalanceAfter  = "receiverBalanceAfter"
)

// Transaction is a validated transaction. It is built once by the parser
// and only read afterwards.
type Transaction struct {
	Type                  TxType          `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	SenderBalanceBefore   decimal.Decimal `json:"senderBalanceBefore"`
	SenderBalanceAfter    decimal.Decimal `json:"senderBalanceAfter"`
	ReceiverBalanceBefore decimal.Decimal `json:"receiverBalanceBefore"`
	ReceiverBalanceAfter  decimal.Decimal `json:"receiverBalanceAfter"`
}

// Key returns a canonical representation of the transaction, suitable for
// memoizing verdicts. Equal amounts written differently ("1,000" vs "1000.00")
// produce the same key.
func (t *Transaction) Key() string {
	var b strings.Builder
	b.WriteString(string(t.Type))
	for _, d := range []decimal.Decimal{
		t.Amount,
		t.SenderBalanceBefore,
		t.SenderBalanceAfter,
		t.ReceiverBalanceBefore,
		t.ReceiverBalanceAfter,
	} {
		b.WriteByte('|')
		b.WriteString(d.String())
	}
	return b.String()
}
