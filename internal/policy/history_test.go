package policy

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *HistoryCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewHistoryCache(client)
}

func TestHistoryCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	history := []ChatMessage{
		{Role: ChatRoleUser, Content: "hola"},
		{Role: ChatRoleAssistant, Content: "¡Hola! ¿En qué te ayudo?"},
	}
	if err := cache.Save(ctx, "conv-1", history); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := cache.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[1].Content != history[1].Content {
		t.Fatalf("unexpected history: %+v", got)
	}
}

func TestHistoryCacheMissIsNil(t *testing.T) {
	cache := newTestCache(t)

	got, err := cache.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("a miss is not an error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on miss, got %+v", got)
	}
}

func TestHistoryCacheTrims(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	long := make([]ChatMessage, historyMax+10)
	for i := range long {
		long[i] = ChatMessage{Role: ChatRoleUser, Content: "m"}
	}
	if err := cache.Save(ctx, "conv-1", long); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := cache.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != historyMax {
		t.Fatalf("expected history trimmed to %d, got %d", historyMax, len(got))
	}
}
