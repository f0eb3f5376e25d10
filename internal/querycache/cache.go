// Package querycache memoizes query results in a size-bounded document
// shared between processes. Every read and write happens under an exclusive
// lock on the document, so operations are linearizable across processes.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/beach-query-service/internal/domain"
	"github.com/couchcryptid/beach-query-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Backend stores the cache document and guards it with an exclusive lock.
// Lock blocks until the lock is held or ctx ends, in which case it returns
// ctx.Err(). The returned unlock func must be called exactly once.
type Backend interface {
	Lock(ctx context.Context) (unlock func() error, err error)
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Config bounds the cache.
type Config struct {
	Capacity    int
	LockTimeout time.Duration
}

// Cache is a bounded LRU store of query results over a shared Backend.
type Cache struct {
	backend     Backend
	capacity    int
	lockTimeout time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates a cache over backend.
func New(backend Backend, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 20
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	return &Cache{
		backend:     backend,
		capacity:    cfg.Capacity,
		lockTimeout: cfg.LockTimeout,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// Get returns the entry for key. A hit refreshes the entry's last-accessed
// time and persists it before the lock is released.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool, error) {
	var found Entry
	var ok bool
	err := c.withLock(ctx, func(doc Document) bool {
		e, hit := doc[key]
		if !hit {
			return false
		}
		doc.touch(key, c.now())
		found, ok = *e, true
		return true
	})
	if err != nil {
		return Entry{}, false, err
	}

	result := "miss"
	if ok {
		result = "hit"
	}
	c.metrics.CacheLookups.WithLabelValues(result).Inc()
	return found, ok, nil
}

// Insert stores entry under key, stamping it with the current time, then
// evicts the least recently accessed entries beyond capacity.
func (c *Cache) Insert(ctx context.Context, key string, entry Entry) error {
	entry.Key = key
	return c.withLock(ctx, func(doc Document) bool {
		doc[key] = &entry
		doc.touch(key, c.now())
		if n := doc.evict(c.capacity); n > 0 {
			c.metrics.CacheEvictions.Add(float64(n))
			c.logger.Debug("cache entries evicted", "count", n)
		}
		return true
	})
}

// Len reports the number of stored entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.withLock(ctx, func(doc Document) bool {
		n = len(doc)
		return false
	})
	return n, err
}

func (c *Cache) now() time.Time {
	return c.clock.Now().UTC()
}

// withLock runs fn over the current document while holding the backend lock.
// fn reports whether it changed the document. The document is persisted when
// fn changed it or when it had to be reset. The lock is released on every
// return path.
func (c *Cache) withLock(ctx context.Context, fn func(Document) bool) (err error) {
	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	start := time.Now()
	unlock, err := c.backend.Lock(lockCtx)
	c.metrics.CacheLockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			c.metrics.CacheLockTimeout.Inc()
			return fmt.Errorf("acquire cache lock within %s: %w", c.lockTimeout, domain.ErrLockTimeout)
		}
		return fmt.Errorf("acquire cache lock: %w", err)
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			c.logger.Error("cache unlock failed", "error", uerr)
			if err == nil {
				err = fmt.Errorf("release cache lock: %w", uerr)
			}
		}
	}()

	raw, err := c.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("read cache document: %w", err)
	}

	doc, repaired := ParseOrDefault(raw)
	if repaired {
		c.metrics.CacheResets.Inc()
		c.logger.Warn("cache document unreadable, resetting", "bytes", len(raw))
	}

	if !fn(doc) && !repaired {
		return nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode cache document: %w", err)
	}
	if err := c.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("write cache document: %w", err)
	}
	return nil
}

// Remember returns the cached result for q, or runs compute and caches its
// result. compute runs without the lock held; its errors are returned and
// never cached. A cached result that no longer decodes into T is recomputed.
func Remember[T any](ctx context.Context, c *Cache, q Query, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	key := q.Key()

	entry, ok, err := c.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok {
		var cached T
		if err := json.Unmarshal(entry.Result, &cached); err == nil {
			return cached, nil
		}
		c.logger.Warn("cached result undecodable, recomputing", "operation", q.Operation, "key", key)
	}

	result, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("encode %s result: %w", q.Operation, err)
	}
	if err := c.Insert(ctx, key, Entry{
		Operation: q.Operation,
		Params:    q.Echo(),
		Result:    payload,
	}); err != nil {
		return zero, err
	}
	return result, nil
}
