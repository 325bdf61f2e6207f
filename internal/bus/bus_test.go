package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/securescan/internal/domain"
)

func waitFor(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func collect(ch chan<- *domain.Message) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, "test.topic", collect(got))
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, "test.topic", []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := waitFor(t, got)
		if string(msg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
		}
		if msg.Topic != "test.topic" {
			t.Errorf("expected topic 'test.topic', got '%s'", msg.Topic)
		}
		if msg.ID == "" {
			t.Error("expected message ID")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var other atomic.Int32
		_, _ = bus.Subscribe(ctx, "isolation.other", func(ctx context.Context, msg *domain.Message) error {
			other.Add(1)
			return nil
		})
		got := make(chan *domain.Message, 1)
		_, _ = bus.Subscribe(ctx, "isolation.mine", collect(got))

		_ = bus.Publish(ctx, "isolation.mine", []byte("x"))
		waitFor(t, got)

		if other.Load() != 0 {
			t.Errorf("expected no messages on other topic, got %d", other.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		a := make(chan *domain.Message, 1)
		b := make(chan *domain.Message, 1)
		_, _ = bus.Subscribe(ctx, "fanout", collect(a))
		_, _ = bus.Subscribe(ctx, "fanout", collect(b))

		_ = bus.Publish(ctx, "fanout", []byte("both"))
		waitFor(t, a)
		waitFor(t, b)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, err := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		if sub.Topic() != "unsub.topic" {
			t.Errorf("expected topic 'unsub.topic', got '%s'", sub.Topic())
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		_ = bus.Publish(ctx, "unsub.topic", []byte("ignored"))
		time.Sleep(20 * time.Millisecond)

		if count.Load() != 0 {
			t.Errorf("expected no messages after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestChannelBusClosed(t *testing.T) {
	bus := NewChannelBus(0)
	ctx := context.Background()

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	// second close is a no-op
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "t", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on publish, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "t", collect(make(chan *domain.Message))); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on subscribe, got %v", err)
	}
	if err := bus.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on ping, got %v", err)
	}
}

func TestPublishVerdict(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()
	ctx := context.Background()

	verdicts := make(chan *domain.Message, 4)
	alerts := make(chan *domain.Message, 4)
	_, _ = bus.Subscribe(ctx, domain.TopicVerdict, collect(verdicts))
	_, _ = bus.Subscribe(ctx, domain.TopicAlert, collect(alerts))

	t.Run("Fraud", func(t *testing.T) {
		ev := &domain.VerdictEvent{
			EvaluationID: "eval-1",
			Type:         domain.TxTransfer,
			Label:        domain.LabelFraud,
			Probability:  0.87,
			Source:       domain.SourceFallback,
		}
		if err := PublishVerdict(ctx, bus, ev); err != nil {
			t.Fatalf("PublishVerdict failed: %v", err)
		}

		msg := waitFor(t, verdicts)
		var got domain.VerdictEvent
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("invalid payload: %v", err)
		}
		if got.EvaluationID != "eval-1" || got.Label != domain.LabelFraud {
			t.Errorf("unexpected event %+v", got)
		}

		waitFor(t, alerts)
	})

	t.Run("SafeHasNoAlert", func(t *testing.T) {
		ev := &domain.VerdictEvent{EvaluationID: "eval-2", Label: domain.LabelSafe}
		if err := PublishVerdict(ctx, bus, ev); err != nil {
			t.Fatalf("PublishVerdict failed: %v", err)
		}
		waitFor(t, verdicts)

		select {
		case msg := <-alerts:
			t.Errorf("unexpected alert %s", msg.Payload)
		case <-time.After(20 * time.Millisecond):
		}
	})

	t.Run("NilBus", func(t *testing.T) {
		if err := PublishVerdict(ctx, nil, &domain.VerdictEvent{Label: domain.LabelFraud}); err != nil {
			t.Errorf("expected nil bus to be a no-op, got %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "none"})
	if err != nil || b != nil {
		t.Errorf("expected nil bus for none, got %v, %v", b, err)
	}

	b, err = New(domain.EventBusConfig{Type: "channel"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("expected *ChannelBus, got %T", b)
	}

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}
