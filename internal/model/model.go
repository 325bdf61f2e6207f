// Package model adapts a pre-built fraud classifier to the scoring pipeline.
//
// A model offers up to two capabilities: a fraud probability and a binary
// decision. Callers only ever see those two operations, never the loaded
// artifact.
package model

import (
	"context"
	"fmt"
	"math"

	"github.com/opensource-finance/securescan/internal/domain"
)

// Capability names used in errors and status output.
const (
	CapabilityProbability = "probability"
	CapabilityDecision    = "decision"
)

// Record is the single-row feature record passed to a model. Field names
// follow the PaySim columns the model was trained on.
type Record struct {
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	OldBalanceOrg  float64 `json:"oldbalanceOrg"`
	NewBalanceOrig float64 `json:"newbalanceOrig"`
	OldBalanceDest float64 `json:"oldbalanceDest"`
	NewBalanceDest float64 `json:"newbalanceDest"`
}

// RecordFrom packages the six raw fields of tx.
func RecordFrom(tx *domain.Transaction) Record {
	return Record{
		Type:           string(tx.Type),
		Amount:         tx.Amount.InexactFloat64(),
		OldBalanceOrg:  tx.SenderBalanceBefore.InexactFloat64(),
		NewBalanceOrig: tx.SenderBalanceAfter.InexactFloat64(),
		OldBalanceDest: tx.ReceiverBalanceBefore.InexactFloat64(),
		NewBalanceDest: tx.ReceiverBalanceAfter.InexactFloat64(),
	}
}

// ProbabilityPredictor returns the probability mass of the fraud class.
type ProbabilityPredictor interface {
	PredictProbability(ctx context.Context, r Record) (float64, error)
}

// DecisionPredictor returns 1 for fraud and 0 otherwise.
type DecisionPredictor interface {
	PredictDecision(ctx context.Context, r Record) (int, error)
}

// Model is a loaded classifier with either or both capabilities.
type Model struct {
	name        string
	version     string
	probability ProbabilityPredictor
	decision    DecisionPredictor
}

// New wraps the given predictors. Either may be nil.
func New(name, version string, p ProbabilityPredictor, d DecisionPredictor) *Model {
	return &Model{
		name:        name,
		version:     version,
		probability: p,
		decision:    d,
	}
}

// Name returns the artifact name.
func (m *Model) Name() string { return m.name }

// Version returns the artifact version.
func (m *Model) Version() string { return m.version }

// HasProbability reports whether the model produces probabilities.
func (m *Model) HasProbability() bool { return m.probability != nil }

// HasDecision reports whether the model produces binary decisions.
func (m *Model) HasDecision() bool { return m.decision != nil }

// Capabilities lists the offered capabilities, richest first.
func (m *Model) Capabilities() []string {
	var caps []string
	if m.HasProbability() {
		caps = append(caps, CapabilityProbability)
	}
	if m.HasDecision() {
		caps = append(caps, CapabilityDecision)
	}
	return caps
}

// Probability calls the probability capability. Failures, panics and values
// outside [0,1] are returned as *domain.ModelInferenceError.
func (m *Model) Probability(ctx context.Context, r Record) (p float64, err error) {
	if m.probability == nil {
		return 0, domain.ErrCapabilityMissing
	}

	defer func() {
		if rec := recover(); rec != nil {
			p, err = 0, inferenceError(CapabilityProbability, fmt.Errorf("panic: %v", rec))
		}
	}()

	p, err = m.probability.PredictProbability(ctx, r)
	if err != nil {
		return 0, inferenceError(CapabilityProbability, err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, inferenceError(CapabilityProbability, fmt.Errorf("probability %v outside [0,1]", p))
	}
	return p, nil
}

// Decision calls the decision capability. Failures, panics and values other
// than 0 or 1 are returned as *domain.ModelInferenceError.
func (m *Model) Decision(ctx context.Context, r Record) (d int, err error) {
	if m.decision == nil {
		return 0, domain.ErrCapabilityMissing
	}

	defer func() {
		if rec := recover(); rec != nil {
			d, err = 0, inferenceError(CapabilityDecision, fmt.Errorf("panic: %v", rec))
		}
	}()

	d, err = m.decision.PredictDecision(ctx, r)
	if err != nil {
		return 0, inferenceError(CapabilityDecision, err)
	}
	if d != 0 && d != 1 {
		return 0, inferenceError(CapabilityDecision, fmt.Errorf("decision %d is not 0 or 1", d))
	}
	return d, nil
}

func inferenceError(capability string, err error) error {
	return &domain.ModelInferenceError{Capability: capability, Err: err}
}
