package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	historyTTL = 24 * time.Hour
	historyMax = 40
)

// HistoryCache keeps recent conversation context in redis so a turn
// does not have to rebuild it from the message table. A miss is normal:
// the caller falls back to stored messages.
type HistoryCache struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewHistoryCache(client *redis.Client) *HistoryCache {
	if client == nil {
		panic("policy: redis client cannot be nil")
	}
	return &HistoryCache{
		redis:  client,
		tracer: otel.Tracer("parlo.policy.history"),
	}
}

// Load returns the cached history, or nil when the key is absent.
func (c *HistoryCache) Load(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	ctx, span := c.tracer.Start(ctx, "policy.load_history")
	defer span.End()

	data, err := c.redis.Get(ctx, historyKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("policy: load history: %w", err)
	}
	var history []ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("policy: decode history: %w", err)
	}
	return history, nil
}

// Save replaces the cached history, trimmed to the most recent turns.
func (c *HistoryCache) Save(ctx context.Context, conversationID string, history []ChatMessage) error {
	ctx, span := c.tracer.Start(ctx, "policy.save_history")
	defer span.End()

	if len(history) > historyMax {
		history = history[len(history)-historyMax:]
	}
	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("policy: marshal history: %w", err)
	}
	if err := c.redis.Set(ctx, historyKey(conversationID), data, historyTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("policy: persist history: %w", err)
	}
	return nil
}

func historyKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}
