package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opensource-finance/securescan/internal/domain"
)

// Row is one PaySim record ready to be submitted.
type Row struct {
	Line        int
	Transaction domain.RawTransaction
	IsFraud     bool
}

type readOptions struct {
	Limit      int
	FraudOnly  bool
	SampleRate float64
}

var requiredColumns = []string{
	"type", "amount", "oldbalanceorg", "newbalanceorig",
	"oldbalancedest", "newbalancedest", "isfraud",
}

// readPaySim reads a PaySim CSV. Values are forwarded exactly as they appear
// so the server's parser sees what an operator would type.
func readPaySim(r io.Reader, opts readOptions) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []Row
	sampled := 0
	line := 1
	for {
		record, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// malformed row
			continue
		}

		isFraud := record[col["isfraud"]] == "1"
		if opts.FraudOnly && !isFraud {
			continue
		}
		if !isFraud && opts.SampleRate < 1.0 {
			sampled++
			if float64(sampled%100)/100.0 >= opts.SampleRate {
				continue
			}
		}

		rows = append(rows, Row{
			Line:    line,
			IsFraud: isFraud,
			Transaction: domain.RawTransaction{
				Type:                  record[col["type"]],
				Amount:                record[col["amount"]],
				SenderBalanceBefore:   record[col["oldbalanceorg"]],
				SenderBalanceAfter:    record[col["newbalanceorig"]],
				ReceiverBalanceBefore: record[col["oldbalancedest"]],
				ReceiverBalanceAfter:  record[col["newbalancedest"]],
			},
		})

		if opts.Limit > 0 && len(rows) >= opts.Limit {
			break
		}
	}

	return rows, nil
}
