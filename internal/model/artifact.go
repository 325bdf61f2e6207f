package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Artifact formats.
const (
	FormatCEL      = "cel"
	FormatLogistic = "logistic"
)

// Numeric record columns, as named in artifacts.
var columns = []string{"amount", "oldbalanceOrg", "newbalanceOrig", "oldbalanceDest", "newbalanceDest"}

// Artifact is the serialized form of a model.
type Artifact struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Format  string `json:"format"`

	// cel format: expressions over tx_type and the numeric columns.
	Probability string `json:"probability,omitempty"`
	Decision    string `json:"decision,omitempty"`

	// logistic format.
	Intercept   float64            `json:"intercept,omitempty"`
	Weights     map[string]float64 `json:"weights,omitempty"`
	TypeWeights map[string]float64 `json:"typeWeights,omitempty"`
	// Transform applied to every numeric column before weighting: "" or "log1p".
	Transform         string   `json:"transform,omitempty"`
	DecisionThreshold *float64 `json:"decisionThreshold,omitempty"`
}

// ParseArtifact decodes an artifact body.
func ParseArtifact(body []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if a.Name == "" {
		return nil, fmt.Errorf("model artifact name is required")
	}
	return &a, nil
}

// Compile builds a Model from an artifact.
func Compile(a *Artifact) (*Model, error) {
	switch a.Format {
	case FormatCEL:
		return compileCEL(a)
	case FormatLogistic:
		return compileLogistic(a)
	default:
		return nil, fmt.Errorf("unsupported model format: %q", a.Format)
	}
}

// Build parses and compiles an artifact body.
func Build(body []byte) (*Model, error) {
	a, err := ParseArtifact(body)
	if err != nil {
		return nil, err
	}
	return Compile(a)
}

// celModel evaluates CEL expressions over the record.
type celModel struct {
	probability cel.Program
	decision    cel.Program
}

func compileCEL(a *Artifact) (*Model, error) {
	if a.Probability == "" && a.Decision == "" {
		return nil, fmt.Errorf("cel model %s defines neither probability nor decision", a.Name)
	}

	opts := []cel.EnvOption{cel.Variable("tx_type", cel.StringType)}
	for _, c := range columns {
		opts = append(opts, cel.Variable(c, cel.DoubleType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	m := &celModel{}
	var p ProbabilityPredictor
	var d DecisionPredictor

	if a.Probability != "" {
		prg, err := compileExpr(env, a.Probability, cel.DoubleType)
		if err != nil {
			return nil, fmt.Errorf("probability expression: %w", err)
		}
		m.probability = prg
		p = m
	}
	if a.Decision != "" {
		prg, err := compileExpr(env, a.Decision, cel.BoolType, cel.IntType)
		if err != nil {
			return nil, fmt.Errorf("decision expression: %w", err)
		}
		m.decision = prg
		d = m
	}

	return New(a.Name, a.Version, p, d), nil
}

func compileExpr(env *cel.Env, expr string, allowed ...*cel.Type) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	ok := false
	for _, t := range allowed {
		if ast.OutputType().IsExactType(t) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("unexpected output type %s", ast.OutputType())
	}

	return env.Program(ast)
}

func (m *celModel) vars(r Record) map[string]any {
	return map[string]any{
		"tx_type":        r.Type,
		"amount":         r.Amount,
		"oldbalanceOrg":  r.OldBalanceOrg,
		"newbalanceOrig": r.NewBalanceOrig,
		"oldbalanceDest": r.OldBalanceDest,
		"newbalanceDest": r.NewBalanceDest,
	}
}

func (m *celModel) PredictProbability(ctx context.Context, r Record) (float64, error) {
	out, _, err := m.probability.ContextEval(ctx, m.vars(r))
	if err != nil {
		return 0, err
	}
	v, ok := out.(types.Double)
	if !ok {
		return 0, fmt.Errorf("probability expression returned %v", out.Type())
	}
	return float64(v), nil
}

func (m *celModel) PredictDecision(ctx context.Context, r Record) (int, error) {
	out, _, err := m.decision.ContextEval(ctx, m.vars(r))
	if err != nil {
		return 0, err
	}
	switch v := out.(type) {
	case types.Bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case types.Int:
		return int(v), nil
	default:
		return 0, fmt.Errorf("decision expression returned %v", out.Type())
	}
}

// logisticModel is a linear model squashed through the logistic function.
type logisticModel struct {
	intercept   float64
	weights     map[string]float64
	typeWeights map[string]float64
	log1p       bool
	threshold   float64
}

func compileLogistic(a *Artifact) (*Model, error) {
	for name := range a.Weights {
		if column(Record{}, name) == nil {
			return nil, fmt.Errorf("logistic model %s: unknown column %q", a.Name, name)
		}
	}
	switch a.Transform {
	case "", "log1p":
	default:
		return nil, fmt.Errorf("logistic model %s: unsupported transform %q", a.Name, a.Transform)
	}

	m := &logisticModel{
		intercept:   a.Intercept,
		weights:     a.Weights,
		typeWeights: a.TypeWeights,
		log1p:       a.Transform == "log1p",
	}

	var d DecisionPredictor
	if a.DecisionThreshold != nil {
		t := *a.DecisionThreshold
		if math.IsNaN(t) || t < 0 || t > 1 {
			return nil, fmt.Errorf("logistic model %s: decision threshold %v outside [0,1]", a.Name, t)
		}
		m.threshold = t
		d = m
	}

	return New(a.Name, a.Version, m, d), nil
}

func (m *logisticModel) PredictProbability(_ context.Context, r Record) (float64, error) {
	z := m.intercept + m.typeWeights[r.Type]
	for _, name := range columns {
		w, ok := m.weights[name]
		if !ok {
			continue
		}
		x := *column(r, name)
		if m.log1p {
			x = math.Log1p(x)
		}
		z += w * x
	}
	if math.IsNaN(z) {
		return 0, fmt.Errorf("logistic score is NaN")
	}
	return 1 / (1 + math.Exp(-z)), nil
}

func (m *logisticModel) PredictDecision(ctx context.Context, r Record) (int, error) {
	p, err := m.PredictProbability(ctx, r)
	if err != nil {
		return 0, err
	}
	if p > m.threshold {
		return 1, nil
	}
	return 0, nil
}

// column returns a pointer to the named numeric column of r, or nil.
func column(r Record, name string) *float64 {
	switch name {
	case "amount":
		return &r.Amount
	case "oldbalanceOrg":
		return &r.OldBalanceOrg
	case "newbalanceOrig":
		return &r.NewBalanceOrig
	case "oldbalanceDest":
		return &r.OldBalanceDest
	case "newbalanceDest":
		return &r.NewBalanceDest
	default:
		return nil
	}
}
