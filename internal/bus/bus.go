// Package bus publishes SecureScan verdict events to optional listeners.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/securescan/internal/domain"
)

// New creates an event bus based on configuration. It returns a nil bus for
// type "none".
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil

	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishVerdict sends ev to TopicVerdict, and also to TopicAlert when the
// verdict is FRAUD. A nil bus publishes nothing.
func PublishVerdict(ctx context.Context, b domain.EventBus, ev *domain.VerdictEvent) error {
	if b == nil {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict event: %w", err)
	}

	if err := b.Publish(ctx, domain.TopicVerdict, payload); err != nil {
		return fmt.Errorf("failed to publish verdict: %w", err)
	}
	if ev.Label == domain.LabelFraud {
		if err := b.Publish(ctx, domain.TopicAlert, payload); err != nil {
			return fmt.Errorf("failed to publish alert: %w", err)
		}
	}
	return nil
}
