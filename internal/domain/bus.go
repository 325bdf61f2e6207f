package domain

import (
	"context"
	"time"
)

// EventBus publishes verdict notifications to interested listeners.
// Supports Go channels or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "none", "channel" or "nats"
	Type string `json:"type" mapstructure:"type"`

	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channel_buffer_size"`

	NATSUrl           string `json:"natsUrl" mapstructure:"nats_url"`
	NATSToken         string `json:"-" mapstructure:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"nats_reconnect_wait"` // seconds
}

// Topics published after every evaluation.
const (
	TopicVerdict = "securescan.verdict"
	TopicAlert   = "securescan.alert"
)

// VerdictEvent is the payload published on TopicVerdict and TopicAlert.
// It carries the verdict only, never the balances.
type VerdictEvent struct {
	EvaluationID string      `json:"evaluationId"`
	TraceID      string      `json:"traceId,omitempty"`
	Type         TxType      `json:"type"`
	Label        Label       `json:"label"`
	Probability  float64     `json:"probability"`
	Source       ScoreSource `json:"source"`
	AppliedRules []string    `json:"appliedRules,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}
