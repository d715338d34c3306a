// Package cache is the fingerprinted response cache shared by every
// generation run. It stores fetched page markup and inference completions
// with an expiry, on top of a pluggable Backend.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/gherkit/pkg/metrics"
	"github.com/pario-ai/gherkit/pkg/models"
)

// Backend stores entries by fingerprint. Implementations must tolerate
// concurrent use and write each entry with a single statement so readers
// never observe a partial payload. Get returns entries whether or not they
// have expired; expiry is decided by the caller.
type Backend interface {
	Name() string
	Get(ctx context.Context, fingerprint string) (models.CacheEntry, bool, error)
	Put(ctx context.Context, entry models.CacheEntry) error
	Clear(ctx context.Context, expiredOnly bool, now time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (models.CacheStats, error)
	Close() error
}

// Cache wraps a Backend with fingerprinting, expiry and miss collapsing.
// A nil *Cache is a disabled cache: every lookup misses and writes are dropped.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l.With(zap.String("component", "cache"))
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns a Cache over backend whose entries live for ttl by default.
func New(backend Backend, ttl time.Duration, opts ...Option) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether lookups can ever hit.
func (c *Cache) Enabled() bool { return c != nil }

// TTL is the default lifetime of new entries.
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// Get returns the payload stored for kind and inputs. Absent and expired
// entries are misses; expired rows are left for Clear. Backend failures are
// logged and reported as misses.
func (c *Cache) Get(ctx context.Context, kind models.CacheKind, in Inputs) (string, bool) {
	if c == nil {
		return "", false
	}
	fp := Fingerprint(kind, in)

	entry, ok, err := c.backend.Get(ctx, fp)
	if err != nil {
		c.fail("get", err)
		c.miss(kind, fp)
		return "", false
	}
	if !ok || entry.Expired(c.now()) {
		c.miss(kind, fp)
		return "", false
	}

	c.hits.Add(1)
	c.metrics.CacheLookup(string(kind), true)
	c.logger.Debug("cache hit", zap.String("kind", string(kind)), zap.String("fingerprint", fp))
	return entry.Payload, true
}

// Put upserts payload for kind and inputs with expires_at = now + ttl.
// A negative ttl is treated as zero. The returned error is always a
// *models.CacheError and has already been logged.
func (c *Cache) Put(ctx context.Context, kind models.CacheKind, in Inputs, payload string, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	now := c.now()
	entry := models.CacheEntry{
		Fingerprint: Fingerprint(kind, in),
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := c.backend.Put(ctx, entry); err != nil {
		return c.fail("put", err)
	}
	return nil
}

// Fetch returns the cached payload for kind and inputs, or runs compute on a
// miss and stores its result with the default TTL. Concurrent misses on the
// same fingerprint share one compute call. hit reports whether the payload
// came from the store.
func (c *Cache) Fetch(ctx context.Context, kind models.CacheKind, in Inputs, compute func(context.Context) (string, error)) (payload string, hit bool, err error) {
	if c == nil {
		payload, err = compute(ctx)
		return payload, false, err
	}
	if p, ok := c.Get(ctx, kind, in); ok {
		return p, true, nil
	}

	// The shared compute outlives any single caller; each caller stops
	// waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(Fingerprint(kind, in), func() (any, error) {
		p, err := compute(shared)
		if err != nil {
			return "", err
		}
		_ = c.Put(shared, kind, in, p, c.ttl)
		return p, nil
	})
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err
		}
		return res.Val.(string), false, nil
	}
}

// Clear deletes expired entries, or all entries when expiredOnly is false,
// and returns how many rows were removed.
func (c *Cache) Clear(ctx context.Context, expiredOnly bool) (int64, error) {
	if c == nil {
		return 0, nil
	}
	n, err := c.backend.Clear(ctx, expiredOnly, c.now())
	if err != nil {
		return 0, c.fail("clear", err)
	}
	c.logger.Info("cache cleared", zap.Bool("expired_only", expiredOnly), zap.Int64("deleted", n))
	return n, nil
}

// Stats reports stored contents plus in-process hit and miss counters.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	if c == nil {
		return models.CacheStats{Backend: "disabled"}, nil
	}
	st, err := c.backend.Stats(ctx, c.now())
	if err != nil {
		return models.CacheStats{}, c.fail("stats", err)
	}
	st.Backend = c.backend.Name()
	st.Hits = c.hits.Load()
	st.Misses = c.misses.Load()
	st.TTL = c.ttl
	return st, nil
}

// Close releases the backend.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.backend.Close()
}

func (c *Cache) miss(kind models.CacheKind, fp string) {
	c.misses.Add(1)
	c.metrics.CacheLookup(string(kind), false)
	c.logger.Debug("cache miss", zap.String("kind", string(kind)), zap.String("fingerprint", fp))
}

func (c *Cache) fail(op string, err error) error {
	var ce *models.CacheError
	if !errors.As(err, &ce) {
		ce = &models.CacheError{Op: op, Err: err}
	}
	c.metrics.CacheError(op)
	c.logger.Warn("cache backend failure", zap.String("op", op), zap.Error(ce))
	return ce
}
