package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	fullKey := c.makeKey(tenantID, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	fullKey := c.makeKey(tenantID, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	fullKey := c.makeKey(tenantID, key)
	return c.client.Del(ctx, fullKey).Err()
}

// GetOutcome retrieves a cached simulation outcome.
func (c *RedisCache) GetOutcome(ctx context.Context, tenantID string, runID string) (*domain.Outcome, error) {
	data, err := c.Get(ctx, tenantID, "run:"+runID)
	if err != nil || data == nil {
		return nil, err
	}

	var out domain.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetOutcome caches a simulation outcome.
func (c *RedisCache) SetOutcome(ctx context.Context, tenantID string, outcome *domain.Outcome, ttl time.Duration) error {
	bytes, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, "run:"+outcome.RunID, bytes, ttl)
}

// GetScenario retrieves a cached scenario definition.
func (c *RedisCache) GetScenario(ctx context.Context, tenantID string, scenarioID string) (*domain.Scenario, error) {
	data, err := c.Get(ctx, tenantID, "scenario:"+scenarioID)
	if err != nil || data == nil {
		return nil, err
	}

	var s domain.Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetScenario caches a scenario definition.
func (c *RedisCache) SetScenario(ctx context.Context, tenantID string, scenario *domain.Scenario, ttl time.Duration) error {
	bytes, err := json.Marshal(scenario)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, "scenario:"+scenario.ID, bytes, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(tenantID, key string) string {
	return "kestrel:" + tenantID + ":" + key
}
