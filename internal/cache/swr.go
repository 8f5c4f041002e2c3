// Package cache implements a stale-while-revalidate cache with a
// single-flight background refresh and an optional secondary tier.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/singleflight"

	"hot-rank/internal/core"
	"hot-rank/internal/metrics"
)

const defaultTierTimeout = time.Second

// Options configures the freshness windows of an SWR cache
type Options struct {
	TTL         time.Duration
	StaleWindow time.Duration
	// TierTimeout bounds every secondary tier round trip
	TierTimeout time.Duration
	Clock       clock.Clock
}

// SWR is a stale-while-revalidate cache. The memory map is the source of
// truth for reads; the tier is only consulted on a memory miss.
type SWR[T any] struct {
	mu     sync.Mutex
	memory map[string]*Entry[T]

	tier   Tier
	flight singleflight.Group
	clock  clock.Clock
	logger *core.Logger

	ttl         time.Duration
	staleWindow time.Duration
	tierTimeout time.Duration
}

// New creates an SWR cache. A nil tier means memory only.
func New[T any](opts Options, tier Tier, logger *core.Logger) *SWR[T] {
	if tier == nil {
		tier = NoopTier{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.TierTimeout <= 0 {
		opts.TierTimeout = defaultTierTimeout
	}

	return &SWR[T]{
		memory:      make(map[string]*Entry[T]),
		tier:        tier,
		clock:       opts.Clock,
		logger:      logger,
		ttl:         opts.TTL,
		staleWindow: opts.StaleWindow,
		tierTimeout: opts.TierTimeout,
	}
}

// Get looks key up and classifies it. An entry past its stale window is
// purged from both tiers and reported as a miss.
func (c *SWR[T]) Get(ctx context.Context, key string) Result[T] {
	c.mu.Lock()
	entry := c.memory[key]
	c.mu.Unlock()

	if entry == nil && c.tier.Enabled() {
		entry = c.loadFromTier(ctx, key)
	}

	if entry == nil {
		metrics.CacheLookups.WithLabelValues(string(StateMiss)).Inc()
		return Result[T]{State: StateMiss}
	}

	now := c.clock.Now()
	state := entry.StateAt(now)
	if state == StateMiss {
		// a Set may have replaced the expired entry since it was read
		if entry = c.purgeExpired(ctx, key, entry); entry != nil {
			state = entry.StateAt(now)
		}
	}
	metrics.CacheLookups.WithLabelValues(string(state)).Inc()
	if state == StateMiss {
		return Result[T]{State: StateMiss}
	}

	return Result[T]{State: state, Entry: entry}
}

// purgeExpired removes expired from both tiers if it is still the entry held
// for key. Otherwise it leaves the store alone and returns the current entry.
func (c *SWR[T]) purgeExpired(ctx context.Context, key string, expired *Entry[T]) *Entry[T] {
	c.mu.Lock()
	current, ok := c.memory[key]
	if ok && current != expired {
		c.mu.Unlock()
		return current
	}
	delete(c.memory, key)
	c.mu.Unlock()

	c.deleteFromTier(ctx, key)
	return nil
}

func (c *SWR[T]) loadFromTier(ctx context.Context, key string) *Entry[T] {
	tierCtx, cancel := context.WithTimeout(ctx, c.tierTimeout)
	defer cancel()

	payload, found, err := c.tier.Get(tierCtx, key)
	if err != nil {
		c.tierFailed("get", key, err)
		return nil
	}
	if !found {
		return nil
	}

	var entry Entry[T]
	if err := json.Unmarshal(payload, &entry); err != nil {
		c.tierFailed("decode", key, err)
		return nil
	}

	c.mu.Lock()
	// a concurrent Set wins over what the tier returned
	if existing, ok := c.memory[key]; ok {
		c.mu.Unlock()
		return existing
	}
	c.memory[key] = &entry
	c.mu.Unlock()

	return &entry
}

// Set stores value with the cache's default windows
func (c *SWR[T]) Set(ctx context.Context, key string, value T) *Entry[T] {
	return c.SetWithTTL(ctx, key, value, c.ttl, c.staleWindow)
}

// SetWithTTL stores value fresh for ttl and stale for a further staleWindow.
// The memory write always succeeds; the tier mirror is best effort.
func (c *SWR[T]) SetWithTTL(ctx context.Context, key string, value T, ttl, staleWindow time.Duration) *Entry[T] {
	if ttl < 0 {
		ttl = 0
	}
	if staleWindow < 0 {
		staleWindow = 0
	}

	now := c.clock.Now()
	entry := &Entry[T]{
		Value:      value,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		StaleUntil: now.Add(ttl + staleWindow),
	}

	c.mu.Lock()
	c.memory[key] = entry
	c.mu.Unlock()

	if c.tier.Enabled() {
		payload, err := json.Marshal(entry)
		if err != nil {
			c.tierFailed("encode", key, err)
			return entry
		}

		tierCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.tierTimeout)
		defer cancel()
		if err := c.tier.Set(tierCtx, key, payload, ttl+staleWindow); err != nil {
			c.tierFailed("set", key, err)
		}
	}

	return entry
}

// Delete removes key from both tiers
func (c *SWR[T]) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.memory, key)
	c.mu.Unlock()

	c.deleteFromTier(ctx, key)
}

func (c *SWR[T]) deleteFromTier(ctx context.Context, key string) {
	if !c.tier.Enabled() {
		return
	}

	tierCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.tierTimeout)
	defer cancel()
	if err := c.tier.Delete(tierCtx, key); err != nil {
		c.tierFailed("delete", key, err)
	}
}

// ScheduleRefresh runs refresh for key unless one is already in flight, in
// which case the caller joins it. The returned channel closes when the
// shared run finishes. Refresh errors and panics are logged, never returned.
// The refresh context is detached from ctx's cancellation.
func (c *SWR[T]) ScheduleRefresh(ctx context.Context, key string, refresh func(ctx context.Context) error) <-chan struct{} {
	refreshCtx := context.WithoutCancel(ctx)

	ch := c.flight.DoChan(key, func() (result any, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("refresh panicked: %v", p)
			}
			if err != nil {
				metrics.CacheRefreshes.WithLabelValues("error").Inc()
				c.logger.Warn("cache_refresh_failed", "key", key, "error", err)
			} else {
				metrics.CacheRefreshes.WithLabelValues("ok").Inc()
			}
		}()

		return nil, refresh(refreshCtx)
	})

	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()
	return done
}

// Len returns the number of keys held in memory
func (c *SWR[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.memory)
}

// Health reports the state of both tiers
func (c *SWR[T]) Health(ctx context.Context) Health {
	health := Health{
		MemoryKeys:       c.Len(),
		SecondaryEnabled: c.tier.Enabled(),
		SecondaryKind:    c.tier.Kind(),
	}

	if health.SecondaryEnabled {
		tierCtx, cancel := context.WithTimeout(ctx, c.tierTimeout)
		defer cancel()
		health.SecondaryReady = c.tier.Ready(tierCtx)
	}

	return health
}

// Close releases the secondary tier
func (c *SWR[T]) Close() error {
	return c.tier.Close()
}

func (c *SWR[T]) tierFailed(op, key string, err error) {
	metrics.SecondaryErrors.WithLabelValues(op).Inc()
	c.logger.Warn("secondary_"+op+"_failed", "tier", c.tier.Kind(), "key", key, "error", err)
}
