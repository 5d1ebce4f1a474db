package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown spaces out repeated notifications. TryAcquire stamps key for ttl
// and reports whether the caller may deliver, i.e. whether no stamp was live.
type Cooldown interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// CooldownKey is the cooldown key of one channel and incident
func CooldownKey(channelID, incidentID uint) string {
	return fmt.Sprintf("responder:cooldown:%d:%d", channelID, incidentID)
}

// MemoryCooldown is a process-local TTL set with background cleanup
type MemoryCooldown struct {
	mu          sync.Mutex
	entries     map[string]time.Time // key -> expiry
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCooldown creates a cooldown store that drops expired keys every cleanupInterval
func NewMemoryCooldown(cleanupInterval time.Duration) *MemoryCooldown {
	c := &MemoryCooldown{
		entries:     make(map[string]time.Time),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go c.cleanupLoop(cleanupInterval)
	return c
}

// TryAcquire stamps key unless an unexpired stamp exists
func (c *MemoryCooldown) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if expiry, ok := c.entries[key]; ok && now.Before(expiry) {
		return false, nil
	}
	c.entries[key] = now.Add(ttl)
	return true, nil
}

// Len returns the number of stored keys, expired or not
func (c *MemoryCooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stop halts the cleanup goroutine
func (c *MemoryCooldown) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

func (c *MemoryCooldown) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCooldown) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, expiry := range c.entries {
		if !now.Before(expiry) {
			delete(c.entries, key)
		}
	}
}

// RedisCooldown shares cooldown stamps between processes through SET NX PX
type RedisCooldown struct {
	client redis.UniversalClient
}

// NewRedisCooldown wraps a redis client
func NewRedisCooldown(client redis.UniversalClient) *RedisCooldown {
	return &RedisCooldown{client: client}
}

// NewRedisCooldownFromURL parses a redis:// URL and verifies the connection
func NewRedisCooldownFromURL(ctx context.Context, url string) (*RedisCooldown, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCooldown{client: client}, nil
}

// TryAcquire sets key only if absent, with ttl as expiry
func (c *RedisCooldown) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown check failed: %w", err)
	}
	return ok, nil
}

// Close closes the redis client
func (c *RedisCooldown) Close() error {
	return c.client.Close()
}
