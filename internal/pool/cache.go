package pool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL          = 30 * time.Minute
	DefaultCacheFetchTimeout = 30 * time.Second
)

type CacheOptions struct {
	TTL    time.Duration
	Logger *slog.Logger
	// WarmConcurrency bounds parallel fetches in Warm.
	WarmConcurrency int
	// FetchTimeout bounds one shared fetch. It does not inherit the
	// cancellation of the caller that started it.
	FetchTimeout time.Duration
}

type cacheEntry struct {
	tags    []string
	expires time.Time
}

// Cache serves verified pool lists from memory and refreshes them from the
// underlying source once they expire. Concurrent misses for the same pool
// share one fetch. Failed fetches are not cached.
type Cache struct {
	source  Resolver
	ttl     time.Duration
	timeout time.Duration
	warmMax int
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	flight  singleflight.Group
}

func NewCache(source Resolver, opts CacheOptions) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultCacheFetchTimeout
	}
	warmMax := opts.WarmConcurrency
	if warmMax <= 0 {
		warmMax = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Cache{
		source:  source,
		ttl:     ttl,
		timeout: timeout,
		warmMax: warmMax,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) Resolve(ctx context.Context, poolID string) ([]string, error) {
	if tags, ok := c.lookup(poolID); ok {
		return tags, nil
	}

	ch := c.flight.DoChan(poolID, func() (any, error) {
		if tags, ok := c.lookup(poolID); ok {
			return tags, nil
		}

		// The shared fetch is detached from the caller that started it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		raw, err := c.source.Resolve(fetchCtx, poolID)
		if err != nil {
			return nil, err
		}
		tags, err := Verify(raw)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[poolID] = cacheEntry{tags: tags, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()

		c.logger.Debug("pool cached", "pool", poolID, "tags", len(tags), "dropped", len(raw)-len(tags))
		return tags, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]string)), nil
	}
}

// Preview returns at most limit verified tags of the pool, in pool order.
func (c *Cache) Preview(ctx context.Context, poolID string, limit int) ([]string, error) {
	tags, err := c.Resolve(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}

// Warm fetches the given pools in parallel. Every pool is attempted; the
// first error is returned.
func (c *Cache) Warm(ctx context.Context, poolIDs []string) error {
	var g errgroup.Group
	g.SetLimit(c.warmMax)
	for _, id := range poolIDs {
		g.Go(func() error {
			if _, err := c.Resolve(ctx, id); err != nil {
				c.logger.Warn("pool warmup failed", "pool", id, "err", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Invalidate drops a cached pool so the next lookup refetches it.
func (c *Cache) Invalidate(poolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, poolID)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(poolID string) ([]string, bool) {
	c.mu.RLock()
	e, ok := c.entries[poolID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return clone(e.tags), true
}

func clone(tags []string) []string {
	return append([]string(nil), tags...)
}
