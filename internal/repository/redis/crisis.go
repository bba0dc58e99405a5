package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/03aar/review-sub000/internal/domain"
)

const keyPrefix = "reputation:crisis:"

// CrisisCache caches per-business crisis state in Redis. Ingestion reads the
// state on every review, so it is kept off the database hot path.
type CrisisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCrisisCache creates a new Redis-backed crisis cache.
func NewCrisisCache(client *redis.Client, ttl time.Duration) *CrisisCache {
	return &CrisisCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached state, or nil on a cache miss.
func (c *CrisisCache) Get(ctx context.Context, businessID string) (*domain.CrisisState, error) {
	data, err := c.client.Get(ctx, keyPrefix+businessID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get crisis state: %w", err)
	}

	var state domain.CrisisState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal crisis state: %w", err)
	}
	return &state, nil
}

// Set stores state with the configured TTL.
func (c *CrisisCache) Set(ctx context.Context, state *domain.CrisisState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal crisis state: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+state.BusinessID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set crisis state: %w", err)
	}
	return nil
}

// Delete evicts a business's cached state.
func (c *CrisisCache) Delete(ctx context.Context, businessID string) error {
	if err := c.client.Del(ctx, keyPrefix+businessID).Err(); err != nil {
		return fmt.Errorf("redis del crisis state: %w", err)
	}
	return nil
}
