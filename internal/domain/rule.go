package domain

import "time"

// RuleKind separates the two ordered rule lists.
type RuleKind string

const (
	// RuleKindFloor rules raise the probability to at least Value when they match.
	RuleKindFloor RuleKind = "floor"

	// RuleKindFallback rules form a first-match-wins decision list used when
	// no model is usable. Value is the probability returned on a match.
	RuleKindFallback RuleKind = "fallback"
)

// RuleConfig defines one named scoring rule.
type RuleConfig struct {
	ID          string   `json:"id"`
	Kind        RuleKind `json:"kind"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`

	// CEL predicate over the transaction and derived features.
	Expression string `json:"expression"`

	// Floor (for floor rules) or probability (for fallback rules), in [0,1].
	Value float64 `json:"value"`

	// Position orders rules within a kind, ascending.
	Position int `json:"position"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RuleHit records a rule that fired during one evaluation.
type RuleHit struct {
	RuleID string  `json:"ruleId"`
	Value  float64 `json:"value"`
}

// ModelArtifact is a stored, serialized probability model.
type ModelArtifact struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Format    string    `json:"format"`
	Body      []byte    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
