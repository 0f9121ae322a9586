// Package cache wraps a store.Store with Redis-backed read-through caching of
// sessions and their event timelines.
package cache

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/store"
)

// Store caches GetSession and ListEvents. Every write that touches a session
// or its events evicts the affected keys after the backing write succeeds.
type Store struct {
	store.Store
	redis *redis.Client
	ttl   time.Duration
}

// New creates a caching wrapper. A nil client or a zero TTL disables caching.
func New(base store.Store, client *redis.Client, ttl time.Duration) *Store {
	if base == nil {
		panic("cache.New: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Store{Store: base, redis: client, ttl: ttl}
}

// Close closes the Redis client and the backing store.
func (c *Store) Close() error {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	return c.Store.Close()
}

func (c *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var cached model.Session
	if c.load(ctx, sessionKey(id), &cached) {
		return &cached, nil
	}
	s, err := c.Store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	c.save(ctx, sessionKey(id), s)
	return s, nil
}

func (c *Store) ListEvents(ctx context.Context, sessionID string) ([]model.Event, error) {
	var cached []model.Event
	if c.load(ctx, eventsKey(sessionID), &cached) {
		return cached, nil
	}
	events, err := c.Store.ListEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.save(ctx, eventsKey(sessionID), events)
	return events, nil
}

func (c *Store) UpdateSession(ctx context.Context, id string, p model.SessionPatch) error {
	if err := c.Store.UpdateSession(ctx, id, p); err != nil {
		return err
	}
	c.evict(ctx, sessionKey(id))
	return nil
}

func (c *Store) UpdateSessionScore(ctx context.Context, id string, d model.Derived) error {
	if err := c.Store.UpdateSessionScore(ctx, id, d); err != nil {
		return err
	}
	c.evict(ctx, sessionKey(id))
	return nil
}

func (c *Store) DeleteSession(ctx context.Context, id string) error {
	if err := c.Store.DeleteSession(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, sessionKey(id), eventsKey(id))
	return nil
}

func (c *Store) CreateEvent(ctx context.Context, ev *model.Event) error {
	if err := c.Store.CreateEvent(ctx, ev); err != nil {
		return err
	}
	c.evict(ctx, eventsKey(ev.SessionID))
	return nil
}

// Health checks both Redis and the backing store.
func (c *Store) Health(ctx context.Context) error {
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return c.Store.Health(ctx)
}

func (c *Store) load(ctx context.Context, key string, v any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Store) save(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Store) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func sessionKey(id string) string {
	return "session:" + id
}

func eventsKey(sessionID string) string {
	return "events:" + sessionID
}
