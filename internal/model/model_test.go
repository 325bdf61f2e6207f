package model

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/opensource-finance/securescan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probFunc func(Record) (float64, error)

func (f probFunc) PredictProbability(_ context.Context, r Record) (float64, error) { return f(r) }

type decFunc func(Record) (int, error)

func (f decFunc) PredictDecision(_ context.Context, r Record) (int, error) { return f(r) }

var record = Record{
	Type:           "TRANSFER",
	Amount:         5000,
	OldBalanceOrg:  8000,
	NewBalanceOrig: 3000,
}

func TestModelCapabilities(t *testing.T) {
	m := New("m", "1", probFunc(func(Record) (float64, error) { return 0.3, nil }), nil)
	assert.True(t, m.HasProbability())
	assert.False(t, m.HasDecision())
	assert.Equal(t, []string{CapabilityProbability}, m.Capabilities())

	_, err := m.Decision(context.Background(), record)
	assert.ErrorIs(t, err, domain.ErrCapabilityMissing)

	p, err := m.Probability(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, 0.3, p)
}

func TestModelInferenceErrors(t *testing.T) {
	ctx := context.Background()

	cases := map[string]ProbabilityPredictor{
		"Error":    probFunc(func(Record) (float64, error) { return 0, errors.New("boom") }),
		"Panic":    probFunc(func(Record) (float64, error) { panic("bad input shape") }),
		"TooHigh":  probFunc(func(Record) (float64, error) { return 1.2, nil }),
		"Negative": probFunc(func(Record) (float64, error) { return -0.1, nil }),
		"NaN":      probFunc(func(Record) (float64, error) { return math.NaN(), nil }),
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New("m", "1", p, nil).Probability(ctx, record)
			var inf *domain.ModelInferenceError
			require.ErrorAs(t, err, &inf)
			assert.Equal(t, CapabilityProbability, inf.Capability)
		})
	}

	t.Run("DecisionOutOfRange", func(t *testing.T) {
		m := New("m", "1", nil, decFunc(func(Record) (int, error) { return 2, nil }))
		_, err := m.Decision(ctx, record)
		var inf *domain.ModelInferenceError
		require.ErrorAs(t, err, &inf)
		assert.Equal(t, CapabilityDecision, inf.Capability)
	})

	t.Run("DecisionPanic", func(t *testing.T) {
		m := New("m", "1", nil, decFunc(func(Record) (int, error) { panic("nil pointer") }))
		_, err := m.Decision(ctx, record)
		var inf *domain.ModelInferenceError
		assert.ErrorAs(t, err, &inf)
	})
}

func TestCELArtifact(t *testing.T) {
	ctx := context.Background()

	m, err := Build([]byte(`{
		"name": "cel-model",
		"version": "2",
		"format": "cel",
		"probability": "tx_type == \"TRANSFER\" ? 0.7 : 0.05",
		"decision": "amount > 1000.0"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "cel-model", m.Name())
	assert.Equal(t, "2", m.Version())
	assert.Equal(t, []string{CapabilityProbability, CapabilityDecision}, m.Capabilities())

	p, err := m.Probability(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, 0.7, p)

	d, err := m.Decision(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, 1, d)

	t.Run("DecisionOnly", func(t *testing.T) {
		m, err := Build([]byte(`{"name":"d","format":"cel","decision":"tx_type == \"CASH_OUT\" ? 1 : 0"}`))
		require.NoError(t, err)
		assert.False(t, m.HasProbability())
		d, err := m.Decision(ctx, record)
		require.NoError(t, err)
		assert.Equal(t, 0, d)
	})

	t.Run("RuntimeError", func(t *testing.T) {
		m, err := Build([]byte(`{"name":"e","format":"cel","probability":"double(tx_type)"}`))
		require.NoError(t, err)
		_, err = m.Probability(ctx, record)
		var inf *domain.ModelInferenceError
		assert.ErrorAs(t, err, &inf)
	})

	t.Run("Invalid", func(t *testing.T) {
		bodies := map[string]string{
			"Empty":          `{"name":"x","format":"cel"}`,
			"WrongType":      `{"name":"x","format":"cel","probability":"amount > 1.0"}`,
			"BadSyntax":      `{"name":"x","format":"cel","probability":"amount +"}`,
			"UnknownFormat":  `{"name":"x","format":"pickle"}`,
			"MissingName":    `{"format":"cel","probability":"0.5"}`,
			"NotJSON":        `not json`,
			"UnknownVarName": `{"name":"x","format":"cel","probability":"sender_delta"}`,
		}
		for name, body := range bodies {
			t.Run(name, func(t *testing.T) {
				_, err := Build([]byte(body))
				assert.Error(t, err)
			})
		}
	})
}

func TestLogisticArtifact(t *testing.T) {
	ctx := context.Background()

	m, err := Build([]byte(`{
		"name": "lr",
		"format": "logistic",
		"intercept": -1,
		"weights": {"amount": 0.001},
		"typeWeights": {"TRANSFER": 2},
		"decisionThreshold": 0.5
	}`))
	require.NoError(t, err)
	assert.True(t, m.HasDecision())

	// z = -1 + 2 + 5 = 6
	p, err := m.Probability(ctx, record)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-6)), p, 1e-12)

	d, err := m.Decision(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, 1, d)

	// z = -1 for a zero-amount payment
	p, err = m.Probability(ctx, Record{Type: "PAYMENT"})
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(1)), p, 1e-12)

	t.Run("NoThresholdNoDecision", func(t *testing.T) {
		m, err := Build([]byte(`{"name":"lr","format":"logistic","weights":{"amount":0.1}}`))
		require.NoError(t, err)
		assert.False(t, m.HasDecision())
	})

	t.Run("UnknownColumn", func(t *testing.T) {
		_, err := Build([]byte(`{"name":"lr","format":"logistic","weights":{"step":0.1}}`))
		assert.Error(t, err)
	})

	t.Run("UnknownTransform", func(t *testing.T) {
		_, err := Build([]byte(`{"name":"lr","format":"logistic","transform":"sqrt"}`))
		assert.Error(t, err)
	})

	t.Run("NaNScoreIsAnError", func(t *testing.T) {
		m, err := Build([]byte(`{"name":"lr","format":"logistic",
			"weights":{"amount":1,"newbalanceOrig":-1},"decisionThreshold":0.5}`))
		require.NoError(t, err)
		inf := Record{Type: "TRANSFER", Amount: math.Inf(1), NewBalanceOrig: math.Inf(1)}

		_, err = m.Probability(ctx, inf)
		require.Error(t, err)

		_, err = m.Decision(ctx, inf)
		require.Error(t, err)
		var inferErr *domain.ModelInferenceError
		assert.True(t, errors.As(err, &inferErr))
	})

	t.Run("Deterministic", func(t *testing.T) {
		m, err := Build([]byte(`{"name":"lr","format":"logistic","transform":"log1p",
			"weights":{"amount":0.3,"oldbalanceOrg":0.1,"newbalanceOrig":-0.2,"oldbalanceDest":-0.05,"newbalanceDest":0.02}}`))
		require.NoError(t, err)
		first, err := m.Probability(ctx, record)
		require.NoError(t, err)
		for i := 0; i < 50; i++ {
			p, _ := m.Probability(ctx, record)
			require.Equal(t, first, p)
		}
	})
}

func TestBundledModel(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("..", "..", "models", "fraud_model.json"))
	require.NoError(t, err)

	m, err := Build(body)
	require.NoError(t, err)
	assert.True(t, m.HasProbability())

	for _, ex := range domain.ExampleTransactions() {
		t.Run(ex.Name, func(t *testing.T) {
			p, err := m.Probability(context.Background(), Record{Type: ex.Transaction.Type, Amount: 1000})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
		})
	}
}

type countingSource struct {
	calls atomic.Int32
	body  []byte
	err   error
}

func (s *countingSource) Fetch(context.Context) ([]byte, error) {
	s.calls.Add(1)
	return s.body, s.err
}

func (s *countingSource) String() string { return "counting" }

func TestLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadsOnce", func(t *testing.T) {
		src := &countingSource{body: []byte(`{"name":"m","format":"cel","probability":"0.25"}`)}
		l := NewLoader(src)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m, err := l.Load(ctx)
				assert.NoError(t, err)
				assert.NotNil(t, m)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), src.calls.Load())
		assert.True(t, l.Status(ctx).Available)
	})

	t.Run("FailureIsCached", func(t *testing.T) {
		src := &countingSource{err: os.ErrNotExist}
		l := NewLoader(src)

		_, err := l.Load(ctx)
		assert.True(t, IsUnavailable(err))
		_, err = l.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
		assert.Equal(t, int32(1), src.calls.Load())

		status := l.Status(ctx)
		assert.False(t, status.Available)
		assert.NotEmpty(t, status.Error)
	})

	t.Run("CorruptArtifact", func(t *testing.T) {
		l := NewLoader(&countingSource{body: []byte(`{"name":"m","format":"cel","probability":"nope("}`)})
		_, err := l.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	})

	t.Run("NoSource", func(t *testing.T) {
		_, err := NewLoader(nil).Load(ctx)
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	})

	t.Run("MissingFile", func(t *testing.T) {
		l := NewLoader(FileSource{Path: filepath.Join(t.TempDir(), "missing.json")})
		_, err := l.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	})

	t.Run("Preloaded", func(t *testing.T) {
		m := New("p", "1", nil, decFunc(func(Record) (int, error) { return 1, nil }))
		got, err := Preloaded(m).Load(ctx)
		require.NoError(t, err)
		assert.Same(t, m, got)

		_, err = Preloaded(nil).Load(ctx)
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	})
}

func TestNewSource(t *testing.T) {
	cfg := domain.DefaultConfig().Model

	src, err := NewSource(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "file:./models/fraud_model.json", src.String())

	cfg.Source = "none"
	src, err = NewSource(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, src)

	cfg.Source = "repository"
	_, err = NewSource(cfg, nil)
	assert.Error(t, err)

	cfg.Source = "s3"
	_, err = NewSource(cfg, nil)
	assert.Error(t, err)
}
