package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is the wire form of a published event.
type Envelope struct {
	Kind      EventKind       `json:"kind"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Channel returns the channel events of kind are published on.
func Channel(prefix string, kind EventKind) string {
	return prefix + ":" + string(kind)
}

// RedisPublisher publishes every event as JSON on <prefix>:<kind>.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
}

var _ Hooks = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher over client.
func NewRedisPublisher(client redis.UniversalClient, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "modguard:events"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) publish(ctx context.Context, kind EventKind, id string, at time.Time, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}
	msg, err := json.Marshal(Envelope{Kind: kind, EventID: id, Timestamp: at, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(p.prefix, kind), msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// OnVerdict publishes e.
func (p *RedisPublisher) OnVerdict(ctx context.Context, e VerdictEvent) error {
	return p.publish(ctx, KindVerdict, e.EventID, e.Timestamp, e)
}

// OnQueueItemEnqueued publishes e.
func (p *RedisPublisher) OnQueueItemEnqueued(ctx context.Context, e QueueItemEvent) error {
	return p.publish(ctx, KindQueueEnqueued, e.EventID, e.Timestamp, e)
}

// OnQueueItemDisposed publishes e.
func (p *RedisPublisher) OnQueueItemDisposed(ctx context.Context, e QueueItemEvent) error {
	return p.publish(ctx, KindQueueDisposed, e.EventID, e.Timestamp, e)
}

// OnSanctionApplied publishes e.
func (p *RedisPublisher) OnSanctionApplied(ctx context.Context, e SanctionEvent) error {
	return p.publish(ctx, KindSanctionApplied, e.EventID, e.Timestamp, e)
}

// OnReputationChanged publishes e.
func (p *RedisPublisher) OnReputationChanged(ctx context.Context, e ReputationEvent) error {
	return p.publish(ctx, KindReputationChanged, e.EventID, e.Timestamp, e)
}

// Subscribe consumes events published under prefix and dispatches them to
// handler until ctx is done. Messages on one channel arrive in order;
// there is no ordering across channels. Handler errors are logged and do
// not stop the subscription.
func Subscribe(ctx context.Context, client redis.UniversalClient, prefix string, handler Hooks, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "modguard:events"
	}

	sub := client.PSubscribe(ctx, prefix+":*")
	defer sub.Close()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", prefix, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := Dispatch(ctx, []byte(msg.Payload), handler); err != nil {
				logger.Warn("failed to handle moderation event",
					zap.String("channel", msg.Channel),
					zap.Error(err))
			}
		}
	}
}

// Dispatch decodes one published envelope and calls the matching handler.
func Dispatch(ctx context.Context, data []byte, handler Hooks) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Kind {
	case KindVerdict:
		var e VerdictEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return err
		}
		return handler.OnVerdict(ctx, e)
	case KindQueueEnqueued, KindQueueDisposed:
		var e QueueItemEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return err
		}
		if env.Kind == KindQueueEnqueued {
			return handler.OnQueueItemEnqueued(ctx, e)
		}
		return handler.OnQueueItemDisposed(ctx, e)
	case KindSanctionApplied:
		var e SanctionEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return err
		}
		return handler.OnSanctionApplied(ctx, e)
	case KindReputationChanged:
		var e ReputationEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return err
		}
		return handler.OnReputationChanged(ctx, e)
	default:
		return fmt.Errorf("unknown event kind %q", strings.TrimSpace(string(env.Kind)))
	}
}
