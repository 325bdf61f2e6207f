// Benchmark replays PaySim transactions against a running SecureScan server
// and compares the verdicts with the isFraud labels.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/paysim.csv -url http://localhost:8080
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// evaluateResponse is the subset of the POST /evaluate response used here.
type evaluateResponse struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Source      string  `json:"source"`
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "SecureScan base URL")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only replay fraud transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud rows (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/paysim.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("SECURESCAN BENCHMARK - PaySim replay")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Server URL:  %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}
	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: SecureScan not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nStart the server first:")
		fmt.Println("  go run ./cmd/securescan")
		os.Exit(1)
	}

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	rows, err := readPaySim(file, readOptions{
		Limit:      *limit,
		FraudOnly:  *fraudOnly,
		SampleRate: *sampleRate,
	})
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("ERROR: no transactions selected")
		os.Exit(1)
	}

	fraud := 0
	for _, row := range rows {
		if row.IsFraud {
			fraud++
		}
	}
	fmt.Printf("Loaded %d transactions (%d fraud, %.2f%%)\n", len(rows), fraud, 100*float64(fraud)/float64(len(rows)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	m := run(client, *baseURL, rows, *workers, *verbose)
	m.Print(os.Stdout, time.Since(start))
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	if health.Status == "degraded" {
		fmt.Println("WARNING: server is degraded, verdicts may come from fallback rules")
	}
	return nil
}

// run evaluates every row on a pool of workers and tallies the outcomes.
func run(client *http.Client, baseURL string, rows []Row, workers int, verbose bool) *Metrics {
	if workers < 1 {
		workers = 1
	}
	m := NewMetrics()
	work := make(chan Row, 100)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range work {
				began := time.Now()
				res, err := evaluate(client, baseURL, row)
				m.Observe(row, res, err, time.Since(began))

				if verbose {
					printRow(row, res, err)
				}
			}
		}()
	}

	for _, row := range rows {
		work <- row
	}
	close(work)
	wg.Wait()

	return m
}

func evaluate(client *http.Client, baseURL string, row Row) (*evaluateResponse, error) {
	body, err := json.Marshal(row.Transaction)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/evaluate", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printRow(row Row, res *evaluateResponse, err error) {
	if err != nil {
		fmt.Printf("ERROR line %d: %v\n", row.Line, err)
		return
	}
	mark := "ok"
	if (res.Label == "FRAUD") != row.IsFraud {
		mark = "xx"
	}
	fmt.Printf("%s line %-8d | %-8s | amount %14s | fraud %-5v | %-5s %.3f (%s)\n",
		mark, row.Line, row.Transaction.Type, row.Transaction.Amount, row.IsFraud,
		res.Label, res.Probability, res.Source)
}
