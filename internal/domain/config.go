package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Config holds the complete SecureScan configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Scoring constants. None of these are hard-coded in the pipeline.
	Scoring  ScoringConfig  `json:"scoring" mapstructure:"scoring"`
	Features FeatureConfig  `json:"features" mapstructure:"features"`
	Overlay  OverlayConfig  `json:"overlay" mapstructure:"overlay"`
	Fallback FallbackConfig `json:"fallback" mapstructure:"fallback"`
	Model    ModelConfig    `json:"model" mapstructure:"model"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"event_bus"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"write_timeout"` // seconds
}

// ScoringConfig holds the classification boundary and its output texts.
type ScoringConfig struct {
	// Threshold: probability strictly above it is FRAUD.
	Threshold           float64 `json:"threshold" mapstructure:"threshold"`
	FraudRecommendation string  `json:"fraudRecommendation" mapstructure:"fraud_recommendation"`
	SafeRecommendation  string  `json:"safeRecommendation" mapstructure:"safe_recommendation"`
}

// FeatureConfig holds the thresholds used when deriving flags.
type FeatureConfig struct {
	LargeAmount           float64 `json:"largeAmount" mapstructure:"large_amount"`
	FullWithdrawalBalance float64 `json:"fullWithdrawalBalance" mapstructure:"full_withdrawal_balance"`
	MismatchTolerance     float64 `json:"mismatchTolerance" mapstructure:"mismatch_tolerance"`
}

// OverlayConfig holds the built-in floor rule constants.
type OverlayConfig struct {
	SuspiciousCashOutFloor  float64 `json:"suspiciousCashOutFloor" mapstructure:"suspicious_cash_out_floor"`
	SuspiciousTransferFloor float64 `json:"suspiciousTransferFloor" mapstructure:"suspicious_transfer_floor"`
	AmountMismatchFloor     float64 `json:"amountMismatchFloor" mapstructure:"amount_mismatch_floor"`
	FullWithdrawalFloor     float64 `json:"fullWithdrawalFloor" mapstructure:"full_withdrawal_floor"`
	FullWithdrawalAmount    float64 `json:"fullWithdrawalAmount" mapstructure:"full_withdrawal_amount"`
}

// FallbackConfig holds the built-in fallback decision list constants.
type FallbackConfig struct {
	TransferAmount         float64 `json:"transferAmount" mapstructure:"transfer_amount"`
	TransferProbability    float64 `json:"transferProbability" mapstructure:"transfer_probability"`
	CashOutProbability     float64 `json:"cashOutProbability" mapstructure:"cash_out_probability"`
	LargeAmount            float64 `json:"largeAmount" mapstructure:"large_amount"`
	LargeAmountProbability float64 `json:"largeAmountProbability" mapstructure:"large_amount_probability"`
	DefaultProbability     float64 `json:"defaultProbability" mapstructure:"default_probability"`
}

// ModelConfig locates the probability model artifact.
type ModelConfig struct {
	// Source is "file", "repository" or "none".
	Source string `json:"source" mapstructure:"source"`
	Path   string `json:"path" mapstructure:"path"`
	Name   string `json:"name" mapstructure:"name"`

	// Probabilities substituted for a binary decision.
	DecisionFraudProbability float64 `json:"decisionFraudProbability" mapstructure:"decision_fraud_probability"`
	DecisionSafeProbability  float64 `json:"decisionSafeProbability" mapstructure:"decision_safe_probability"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// DefaultConfig returns the default configuration: fallback-aware scoring
// with an optional model file, no storage, no cache, no event bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Scoring: ScoringConfig{
			Threshold:           0.5,
			FraudRecommendation: "flag for manual review and block transaction",
			SafeRecommendation:  "no action required",
		},
		Features: FeatureConfig{
			LargeAmount:           10000,
			FullWithdrawalBalance: 1000,
			MismatchTolerance:     100,
		},
		Overlay: OverlayConfig{
			SuspiciousCashOutFloor:  0.80,
			SuspiciousTransferFloor: 0.90,
			AmountMismatchFloor:     0.70,
			FullWithdrawalFloor:     0.60,
			FullWithdrawalAmount:    5000,
		},
		Fallback: FallbackConfig{
			TransferAmount:         4000,
			TransferProbability:    0.87,
			CashOutProbability:     0.76,
			LargeAmount:            8000,
			LargeAmountProbability: 0.65,
			DefaultProbability:     0.12,
		},
		Model: ModelConfig{
			Source:                   "file",
			Path:                     "./models/fraud_model.json",
			Name:                     "fraud-model",
			DecisionFraudProbability: 0.9,
			DecisionSafeProbability:  0.1,
		},
		Repository: RepositoryConfig{
			Driver:     "none",
			SQLitePath: "./securescan.db",
		},
		Cache: CacheConfig{
			Type:         "none",
			TTL:          5 * time.Minute,
			LocalMaxSize: 10000,
		},
		EventBus: EventBusConfig{
			Type:              "none",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks that every probability-like constant lies in [0,1] and that
// amount thresholds are non-negative.
func (c *Config) Validate() error {
	var errs []error

	unit := map[string]float64{
		"scoring.threshold":                 c.Scoring.Threshold,
		"overlay.suspicious_cash_out_floor": c.Overlay.SuspiciousCashOutFloor,
		"overlay.suspicious_transfer_floor": c.Overlay.SuspiciousTransferFloor,
		"overlay.amount_mismatch_floor":     c.Overlay.AmountMismatchFloor,
		"overlay.full_withdrawal_floor":     c.Overlay.FullWithdrawalFloor,
		"fallback.transfer_probability":     c.Fallback.TransferProbability,
		"fallback.cash_out_probability":     c.Fallback.CashOutProbability,
		"fallback.large_amount_probability": c.Fallback.LargeAmountProbability,
		"fallback.default_probability":      c.Fallback.DefaultProbability,
		"model.decision_fraud_probability":  c.Model.DecisionFraudProbability,
		"model.decision_safe_probability":   c.Model.DecisionSafeProbability,
	}
	for key, v := range unit {
		if math.IsNaN(v) || v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", key, v))
		}
	}

	amounts := map[string]float64{
		"features.large_amount":            c.Features.LargeAmount,
		"features.full_withdrawal_balance": c.Features.FullWithdrawalBalance,
		"features.mismatch_tolerance":      c.Features.MismatchTolerance,
		"overlay.full_withdrawal_amount":   c.Overlay.FullWithdrawalAmount,
		"fallback.transfer_amount":         c.Fallback.TransferAmount,
		"fallback.large_amount":            c.Fallback.LargeAmount,
	}
	for key, v := range amounts {
		if math.IsNaN(v) || v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", key, v))
		}
	}

	switch c.Model.Source {
	case "file", "repository", "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported model source: %s", c.Model.Source))
	}

	return errors.Join(errs...)
}
