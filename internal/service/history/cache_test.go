package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chatrelay/internal/models"
	"chatrelay/internal/redis"
)

// fakeKV is an in-memory cacher so the cache paths run without a redis
// server.
type fakeKV struct {
	data   map[string]string
	setErr error
	sets   int
	dels   int
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", redis.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = fmt.Sprintf("%s", value)
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	f.dels++
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func TestTurnCacheNilSafe(t *testing.T) {
	ctx := context.Background()
	turns := []models.Turn{{SessionID: "s", Sender: models.SenderUser, Message: "hi"}}

	var nilCache *TurnCache
	if _, ok := nilCache.Load(ctx, "s"); ok {
		t.Fatalf("nil cache must report a miss")
	}
	nilCache.Save(ctx, "s", turns)
	nilCache.Invalidate(ctx, "s")

	noClient := NewTurnCache(nil, 0)
	if noClient.ttl != defaultTurnCacheTTL {
		t.Fatalf("expected default ttl, got %v", noClient.ttl)
	}
	if _, ok := noClient.Load(ctx, "s"); ok {
		t.Fatalf("clientless cache must report a miss")
	}
	noClient.Save(ctx, "s", turns)
	noClient.Invalidate(ctx, "s")
}

func TestTurnCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	cache := &TurnCache{client: kv, ttl: time.Minute}

	if _, ok := cache.Load(ctx, "s1"); ok {
		t.Fatalf("expected a miss before any save")
	}

	turns := []models.Turn{
		{SessionID: "s1", Sender: models.SenderUser, Message: "Hi", CreatedAt: time.Now().UTC()},
		{SessionID: "s1", Sender: models.SenderBot, Message: "Hello!", CreatedAt: time.Now().UTC()},
	}
	cache.Save(ctx, "s1", turns)

	got, ok := cache.Load(ctx, "s1")
	if !ok {
		t.Fatalf("expected a hit after save")
	}
	if len(got) != 2 || got[0].Message != "Hi" || got[1].Message != "Hello!" {
		t.Fatalf("unexpected cached turns: %#v", got)
	}

	cache.Invalidate(ctx, "s1")
	if _, ok := cache.Load(ctx, "s1"); ok {
		t.Fatalf("expected a miss after invalidate")
	}
}

func TestTurnCacheFailedSaveClearsOldSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	cache := &TurnCache{client: kv, ttl: time.Minute}

	cache.Save(ctx, "s1", []models.Turn{{SessionID: "s1", Sender: models.SenderUser, Message: "old"}})
	if _, ok := cache.Load(ctx, "s1"); !ok {
		t.Fatalf("expected the first save to land")
	}

	kv.setErr = fmt.Errorf("connection reset")
	cache.Save(ctx, "s1", []models.Turn{{SessionID: "s1", Sender: models.SenderUser, Message: "new"}})
	if _, ok := cache.Load(ctx, "s1"); ok {
		t.Fatalf("a failed save must not leave the previous snapshot behind")
	}
	if kv.dels == 0 {
		t.Fatalf("expected the key to be deleted after a failed save")
	}
}
