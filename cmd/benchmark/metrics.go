package main

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Metrics tallies verdicts against labels. It is safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int
	Errors         int

	// Sources counts verdicts per scoring source.
	Sources map[string]int

	latency time.Duration
}

// NewMetrics creates an empty tally.
func NewMetrics() *Metrics {
	return &Metrics{Sources: make(map[string]int)}
}

// Observe records one evaluation.
func (m *Metrics) Observe(row Row, res *evaluateResponse, err error, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latency += latency
	if err != nil {
		m.Errors++
		return
	}

	m.Sources[res.Source]++
	predicted := res.Label == "FRAUD"
	switch {
	case predicted && row.IsFraud:
		m.TruePositives++
	case predicted && !row.IsFraud:
		m.FalsePositives++
	case !predicted && !row.IsFraud:
		m.TrueNegatives++
	default:
		m.FalseNegatives++
	}
}

// Scored is the number of evaluations that produced a verdict.
func (m *Metrics) Scored() int {
	return m.TruePositives + m.FalsePositives + m.TrueNegatives + m.FalseNegatives
}

// Precision is TP / (TP + FP), or 0 without positive predictions.
func (m *Metrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is TP / (TP + FN), or 0 without fraud rows.
func (m *Metrics) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (m *Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Accuracy is the share of correct verdicts.
func (m *Metrics) Accuracy() float64 {
	return ratio(m.TruePositives+m.TrueNegatives, m.Scored())
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Print writes the report.
func (m *Metrics) Print(w io.Writer, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Fprintln(w, "\nBENCHMARK RESULTS")

	fmt.Fprintln(w, "\nCONFUSION MATRIX")
	fmt.Fprintln(w, "                     Predicted")
	fmt.Fprintln(w, "                   FRAUD       SAFE")
	fmt.Fprintf(w, "   Actual  FRAUD  %8d   %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Fprintf(w, "           SAFE   %8d   %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	fmt.Fprintln(w, "\nDETECTION METRICS")
	fmt.Fprintf(w, "   Precision:  %.4f\n", m.Precision())
	fmt.Fprintf(w, "   Recall:     %.4f\n", m.Recall())
	fmt.Fprintf(w, "   F1-Score:   %.4f\n", m.F1())
	fmt.Fprintf(w, "   Accuracy:   %.4f\n", m.Accuracy())
	fmt.Fprintf(w, "   Errors:     %d\n", m.Errors)

	if len(m.Sources) > 0 {
		fmt.Fprintln(w, "\nSCORING SOURCES")
		sources := make([]string, 0, len(m.Sources))
		for s := range m.Sources {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		for _, s := range sources {
			fmt.Fprintf(w, "   %-18s %d\n", s, m.Sources[s])
		}
	}

	total := m.Scored() + m.Errors
	fmt.Fprintln(w, "\nPERFORMANCE")
	fmt.Fprintf(w, "   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if total > 0 {
		fmt.Fprintf(w, "   Avg Latency:      %.2f ms\n", float64(m.latency.Milliseconds())/float64(total))
		fmt.Fprintf(w, "   Throughput:       %.2f tx/sec\n", float64(total)/duration.Seconds())
	}
	fmt.Fprintln(w)
}
