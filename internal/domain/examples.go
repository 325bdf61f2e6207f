package domain

// Example is a ready-made transaction offered by the form for autofill.
type Example struct {
	Name        string         `json:"name"`
	Transaction RawTransaction `json:"transaction"`
}

// ExampleTransactions returns the sample transactions shown next to the form.
func ExampleTransactions() []Example {
	return []Example{
		{
			Name: "Normal Payment",
			Transaction: RawTransaction{
				Type: "PAYMENT", Amount: "1,200.00",
				SenderBalanceBefore: "10,000.00", SenderBalanceAfter: "8,800.00",
				ReceiverBalanceBefore: "5,000.00", ReceiverBalanceAfter: "6,200.00",
			},
		},
		{
			Name: "Suspicious Transfer",
			Transaction: RawTransaction{
				Type: "TRANSFER", Amount: "7,850.00",
				SenderBalanceBefore: "8,000.00", SenderBalanceAfter: "150.00",
				ReceiverBalanceBefore: "0.00", ReceiverBalanceAfter: "7,850.00",
			},
		},
		{
			Name: "Cash Out",
			Transaction: RawTransaction{
				Type: "CASH_OUT", Amount: "2,500.00",
				SenderBalanceBefore: "3,000.00", SenderBalanceAfter: "500.00",
				ReceiverBalanceBefore: "12,000.00", ReceiverBalanceAfter: "14,500.00",
			},
		},
		{
			Name: "Cash In",
			Transaction: RawTransaction{
				Type: "CASH_IN", Amount: "1,500.00",
				SenderBalanceBefore: "0.00", SenderBalanceAfter: "1,500.00",
				ReceiverBalanceBefore: "8,000.00", ReceiverBalanceAfter: "6,500.00",
			},
		},
		{
			Name: "Debit",
			Transaction: RawTransaction{
				Type: "DEBIT", Amount: "300.00",
				SenderBalanceBefore: "500.00", SenderBalanceAfter: "200.00",
				ReceiverBalanceBefore: "0.00", ReceiverBalanceAfter: "300.00",
			},
		},
	}
}
