package store

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/archctx/internal/model"
	"github.com/dshills/archctx/internal/notify"
)

// Reader is the read side of a store.
type Reader interface {
	SystemDefaults(ctx context.Context) (*model.Defaults, error)
	Service(ctx context.Context, name string) (*model.Service, error)
	Environment(ctx context.Context, name string) (*model.Environment, error)
	Tenant(ctx context.Context, name string) (*model.Tenant, error)
	ListServices(ctx context.Context) ([]*model.Service, error)
	ListEnvironments(ctx context.Context) ([]*model.Environment, error)
	ListTenants(ctx context.Context) ([]*model.Tenant, error)
}

var _ Reader = (*FileStore)(nil)

type cacheKey struct {
	kind model.Kind
	name string // empty for a collection listing
}

func (k cacheKey) String() string {
	if k.name == "" {
		return string(k.kind) + "/*"
	}
	return string(k.kind) + "/" + k.name
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Cache memoises a Reader. Concurrent misses for the same key share one
// load. Cached entities are shared between callers and must not be
// modified. Errors are never cached.
type Cache struct {
	src   Reader
	group singleflight.Group

	mu      sync.RWMutex
	entries map[cacheKey]any
	gen     uint64

	hits   atomic.Int64
	misses atomic.Int64

	sub *notify.Subscription
}

var _ Reader = (*Cache)(nil)

// NewCache wraps src. When n is not nil the cache invalidates entries for
// every published change.
func NewCache(src Reader, n *notify.Notifier) *Cache {
	c := &Cache{
		src:     src,
		entries: make(map[cacheKey]any),
	}
	if n != nil {
		c.sub = n.Subscribe(c.onChange)
	}
	return c
}

// Close stops listening for changes.
func (c *Cache) Close() {
	c.sub.Unsubscribe()
}

func (c *Cache) onChange(change notify.Change) {
	if change.Type == notify.ChangeReload || change.Kind == "" {
		c.InvalidateAll()
		return
	}
	c.Invalidate(change.Kind, change.Name)
}

// Invalidate drops one entity and the listing of its collection.
func (c *Cache) Invalidate(kind model.Kind, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.entries, cacheKey{kind, name})
	delete(c.entries, cacheKey{kind: kind})
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[cacheKey]any)
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: n}
}

// cached returns the entry for k, loading it through the singleflight group
// on a miss. A result loaded across an invalidation is returned but not
// stored.
func cached[T any](c *Cache, k cacheKey, load func() (T, error)) (T, error) {
	c.mu.RLock()
	v, ok := c.entries[k]
	gen := c.gen
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return v.(T), nil
	}
	c.misses.Add(1)

	res, err, _ := c.group.Do(k.String(), func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.entries[k] = v
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// SystemDefaults implements Reader.
func (c *Cache) SystemDefaults(ctx context.Context) (*model.Defaults, error) {
	return cached(c, cacheKey{model.KindDefaults, model.DefaultsName}, func() (*model.Defaults, error) {
		return c.src.SystemDefaults(ctx)
	})
}

// Service implements Reader.
func (c *Cache) Service(ctx context.Context, name string) (*model.Service, error) {
	return cached(c, cacheKey{model.KindService, name}, func() (*model.Service, error) {
		return c.src.Service(ctx, name)
	})
}

// Environment implements Reader.
func (c *Cache) Environment(ctx context.Context, name string) (*model.Environment, error) {
	return cached(c, cacheKey{model.KindEnvironment, name}, func() (*model.Environment, error) {
		return c.src.Environment(ctx, name)
	})
}

// Tenant implements Reader.
func (c *Cache) Tenant(ctx context.Context, name string) (*model.Tenant, error) {
	return cached(c, cacheKey{model.KindTenant, name}, func() (*model.Tenant, error) {
		return c.src.Tenant(ctx, name)
	})
}

// ListServices implements Reader.
func (c *Cache) ListServices(ctx context.Context) ([]*model.Service, error) {
	return cached(c, cacheKey{kind: model.KindService}, func() ([]*model.Service, error) {
		return c.src.ListServices(ctx)
	})
}

// ListEnvironments implements Reader.
func (c *Cache) ListEnvironments(ctx context.Context) ([]*model.Environment, error) {
	return cached(c, cacheKey{kind: model.KindEnvironment}, func() ([]*model.Environment, error) {
		return c.src.ListEnvironments(ctx)
	})
}

// ListTenants implements Reader.
func (c *Cache) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	return cached(c, cacheKey{kind: model.KindTenant}, func() ([]*model.Tenant, error) {
		return c.src.ListTenants(ctx)
	})
}
