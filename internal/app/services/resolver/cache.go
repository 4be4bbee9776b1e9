package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
)

// MemoryWinnerCache is the in-process cache used when Redis is not
// configured.
type MemoryWinnerCache struct {
	mu      sync.RWMutex
	winners map[uint64]lottery.WinnerInfo
}

// NewMemoryWinnerCache returns an empty cache.
func NewMemoryWinnerCache() *MemoryWinnerCache {
	return &MemoryWinnerCache{winners: make(map[uint64]lottery.WinnerInfo)}
}

func (c *MemoryWinnerCache) Get(ctx context.Context, roundID uint64) (lottery.WinnerInfo, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.winners[roundID]
	return info, ok, nil
}

func (c *MemoryWinnerCache) Set(ctx context.Context, roundID uint64, info lottery.WinnerInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.winners[roundID] = info
	return nil
}

// RedisWinnerCache shares resolved winners across service instances.
// Entries expire so the keyspace stays bounded; a miss just re-runs the
// ticket scan.
type RedisWinnerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisWinnerCache wraps an existing Redis client. A non-positive ttl
// defaults to 24h.
func NewRedisWinnerCache(client *redis.Client, ttl time.Duration) *RedisWinnerCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisWinnerCache{client: client, ttl: ttl}
}

func winnerKey(roundID uint64) string {
	return fmt.Sprintf("lottery:winner:%d", roundID)
}

func (c *RedisWinnerCache) Get(ctx context.Context, roundID uint64) (lottery.WinnerInfo, bool, error) {
	raw, err := c.client.Get(ctx, winnerKey(roundID)).Bytes()
	if err == redis.Nil {
		return lottery.WinnerInfo{}, false, nil
	}
	if err != nil {
		return lottery.WinnerInfo{}, false, fmt.Errorf("redis get: %w", err)
	}
	var info lottery.WinnerInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return lottery.WinnerInfo{}, false, fmt.Errorf("decode cached winner: %w", err)
	}
	return info, true, nil
}

func (c *RedisWinnerCache) Set(ctx context.Context, roundID uint64, info lottery.WinnerInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode winner: %w", err)
	}
	if err := c.client.Set(ctx, winnerKey(roundID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
