package resolve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/types"
)

// Cache maps (entity type, normalized name) to a canonical reference ID.
// Invalidation is keyed by entity type and canonical ID so a reference-data
// edit evicts every alias pointing at the changed row.
type Cache interface {
	Get(ctx context.Context, entityType types.EntityType, normalized string) (uuid.UUID, bool)
	Set(ctx context.Context, entityType types.EntityType, normalized string, canonicalID uuid.UUID)
	Invalidate(ctx context.Context, entityType types.EntityType, canonicalID uuid.UUID)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]uuid.UUID
	byID    map[string]map[string]struct{}
}

func NewMemoryCache() Cache {
	return &memoryCache{
		entries: map[string]uuid.UUID{},
		byID:    map[string]map[string]struct{}{},
	}
}

func cacheKey(entityType types.EntityType, normalized string) string {
	return fmt.Sprintf("resolve:%s:%s", entityType, normalized)
}

func idKey(entityType types.EntityType, canonicalID uuid.UUID) string {
	return fmt.Sprintf("resolve:byid:%s:%s", entityType, canonicalID)
}

func (c *memoryCache) Get(_ context.Context, entityType types.EntityType, normalized string) (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.entries[cacheKey(entityType, normalized)]
	return id, ok
}

func (c *memoryCache) Set(_ context.Context, entityType types.EntityType, normalized string, canonicalID uuid.UUID) {
	key := cacheKey(entityType, normalized)
	ik := idKey(entityType, canonicalID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = canonicalID
	if c.byID[ik] == nil {
		c.byID[ik] = map[string]struct{}{}
	}
	c.byID[ik][key] = struct{}{}
}

func (c *memoryCache) Invalidate(_ context.Context, entityType types.EntityType, canonicalID uuid.UUID) {
	ik := idKey(entityType, canonicalID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byID[ik] {
		delete(c.entries, key)
	}
	delete(c.byID, ik)
}

// redisCache is the shared-cache deployment option. Failures degrade to cache
// misses; resolution correctness never depends on the cache.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, baseLog *logger.Logger) Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisCache{
		client: client,
		ttl:    ttl,
		log:    baseLog.With("component", "ResolutionCache"),
	}
}

func (c *redisCache) Get(ctx context.Context, entityType types.EntityType, normalized string) (uuid.UUID, bool) {
	val, err := c.client.Get(ctx, cacheKey(entityType, normalized)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("Cache get failed", "error", err)
		}
		return uuid.Nil, false
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *redisCache) Set(ctx context.Context, entityType types.EntityType, normalized string, canonicalID uuid.UUID) {
	key := cacheKey(entityType, normalized)
	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, canonicalID.String(), c.ttl)
	pipe.SAdd(ctx, idKey(entityType, canonicalID), key)
	pipe.Expire(ctx, idKey(entityType, canonicalID), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("Cache set failed", "error", err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context, entityType types.EntityType, canonicalID uuid.UUID) {
	ik := idKey(entityType, canonicalID)
	keys, err := c.client.SMembers(ctx, ik).Result()
	if err != nil {
		c.log.Warn("Cache invalidate failed", "error", err)
		return
	}
	keys = append(keys, ik)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("Cache invalidate failed", "error", err)
	}
}
