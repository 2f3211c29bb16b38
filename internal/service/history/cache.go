package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chatrelay/internal/models"
	"chatrelay/internal/redis"
)

const defaultTurnCacheTTL = 30 * time.Minute

// cacher is the slice of the redis client TurnCache needs.
type cacher interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// TurnCache keeps a session's turn history in redis so repeated reads on a
// busy session skip the database. The cache is write-through: only a
// committed append stores a snapshot, and readers never repopulate it, so
// a read racing an append cannot pin a pre-append snapshot past the
// append's commit. All cache failures degrade to database reads and are
// only logged.
type TurnCache struct {
	client cacher
	ttl    time.Duration
}

func NewTurnCache(client *redis.Client, ttl time.Duration) *TurnCache {
	if ttl <= 0 {
		ttl = defaultTurnCacheTTL
	}
	c := &TurnCache{ttl: ttl}
	if client != nil {
		c.client = client
	}
	return c
}

func turnKey(sessionID string) string {
	return fmt.Sprintf("history:turns:%s", sessionID)
}

func (c *TurnCache) Load(ctx context.Context, sessionID string) ([]models.Turn, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, turnKey(sessionID))
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("turn cache load failed: %v", err)
		}
		return nil, false
	}
	var turns []models.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		log.Printf("turn cache decode failed: %v", err)
		return nil, false
	}
	return turns, true
}

// Save stores the snapshot. When the write cannot land, the key is
// deleted instead so no older snapshot survives the failed replacement.
func (c *TurnCache) Save(ctx context.Context, sessionID string, turns []models.Turn) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(turns)
	if err != nil {
		log.Printf("turn cache marshal failed: %v", err)
		c.Invalidate(ctx, sessionID)
		return
	}
	if err := c.client.Set(ctx, turnKey(sessionID), data, c.ttl); err != nil {
		log.Printf("turn cache save failed: %v", err)
		c.Invalidate(ctx, sessionID)
	}
}

func (c *TurnCache) Invalidate(ctx context.Context, sessionID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, turnKey(sessionID)); err != nil && err != redis.ErrCacheMiss {
		log.Printf("turn cache invalidate failed: %v", err)
	}
}
