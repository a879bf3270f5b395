// Package cache provides caching implementations for Kestrel.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// LRUCache is a thread-safe LRU cache with TTL support.
// Used as the Community tier cache and as L1 in two-phase caching.
type LRUCache struct {
	mu      sync.RWMutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the specified max size.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves a value from cache.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	fullKey := c.makeKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fullKey]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, nil
	}

	// Move to front (most recently used)
	c.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value in cache with TTL.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	fullKey := c.makeKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Update existing entry
	if elem, ok := c.items[fullKey]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		return nil
	}

	// Add new entry
	entry := &cacheEntry{
		key:       fullKey,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	elem := c.order.PushFront(entry)
	c.items[fullKey] = elem

	// Evict if over capacity
	for c.order.Len() > c.maxSize {
		c.removeOldest()
	}

	return nil
}

// Delete removes a value from cache.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	fullKey := c.makeKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fullKey]; ok {
		c.removeElement(elem)
	}
	return nil
}

// GetOutcome retrieves a cached simulation outcome.
func (c *LRUCache) GetOutcome(ctx context.Context, tenantID string, runID string) (*domain.Outcome, error) {
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
func (c *LRUCache) SetOutcome(ctx context.Context, tenantID string, outcome *domain.Outcome, ttl time.Duration) error {
	bytes, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, "run:"+outcome.RunID, bytes, ttl)
}

// GetScenario retrieves a cached scenario definition.
func (c *LRUCache) GetScenario(ctx context.Context, tenantID string, scenarioID string) (*domain.Scenario, error) {
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
func (c *LRUCache) SetScenario(ctx context.Context, tenantID string, scenario *domain.Scenario, ttl time.Duration) error {
	bytes, err := json.Marshal(scenario)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, "scenario:"+scenario.ID, bytes, ttl)
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close cleans up the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) makeKey(tenantID, key string) string {
	return tenantID + ":" + key
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}

func (c *LRUCache) removeOldest() {
	elem := c.order.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}
