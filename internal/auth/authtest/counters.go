// Package authtest provides test doubles for the auth package.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters is an in-memory stand-in for the Redis counter commands used by
// auth.LoginLimiter. Commands it does not implement panic through the nil
// embedded client.
type Counters struct {
	redis.Cmdable

	mu     sync.Mutex
	values map[string]int64
	ttls   map[string]time.Duration
	err    error
}

// NewCounters returns an empty store.
func NewCounters() *Counters {
	return &Counters{values: map[string]int64{}, ttls: map[string]time.Duration{}}
}

// Fail makes every subsequent command return err. A nil err restores service.
func (c *Counters) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Value returns the current counter for key.
func (c *Counters) Value(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

func (c *Counters) Incr(_ context.Context, key string) *redis.IntCmd {
	return c.add(key, 1)
}

func (c *Counters) Decr(_ context.Context, key string) *redis.IntCmd {
	return c.add(key, -1)
}

func (c *Counters) add(key string, delta int64) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewIntResult(0, c.err)
	}
	c.values[key] += delta
	return redis.NewIntResult(c.values[key], nil)
}

func (c *Counters) ExpireNX(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewBoolResult(false, c.err)
	}
	if _, ok := c.values[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	if _, ok := c.ttls[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	c.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (c *Counters) TTL(_ context.Context, key string) *redis.DurationCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewDurationResult(0, c.err)
	}
	if _, ok := c.values[key]; !ok {
		return redis.NewDurationResult(-2, nil)
	}
	ttl, ok := c.ttls[key]
	if !ok {
		return redis.NewDurationResult(-1, nil)
	}
	return redis.NewDurationResult(ttl, nil)
}

func (c *Counters) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewIntResult(0, c.err)
	}
	var removed int64
	for _, key := range keys {
		if _, ok := c.values[key]; ok {
			removed++
		}
		delete(c.values, key)
		delete(c.ttls, key)
	}
	return redis.NewIntResult(removed, nil)
}
