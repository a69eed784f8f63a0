package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store with per-entry expiration.
type Memory struct {
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
}

type memoryItem struct {
	value      []byte
	expiration time.Time
}

// NewMemory returns a Memory store whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()
	if !found {
		return nil, false, nil
	}
	if c.now().After(item.expiration) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur.expiration.Equal(item.expiration) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return item.value, true, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{
		value:      value,
		expiration: c.now().Add(c.ttl),
	}
	return nil
}

func (c *Memory) Invalidate(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	return nil
}

// CleanupExpired removes expired entries.
func (c *Memory) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiration) {
			delete(c.items, key)
		}
	}
}

// Len is the number of stored entries, expired or not.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
