package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

const cacheStripes = 64

// Cached reads through a cache in front of a durable store. Concurrent misses
// for one key share a single durable read; writes go to the durable store and
// then invalidate the cached copy.
//
// Keys hash onto stripes whose generation moves on every invalidation. A miss
// only fills the cache if its stripe's generation did not move while the
// durable read was running, so a write racing the read cannot leave the old
// value cached.
type Cached struct {
	durable Storage
	cache   Storage
	sfg     singleflight.Group
	stripes [cacheStripes]cacheStripe
	log     *slog.Logger
}

type cacheStripe struct {
	mu         sync.Mutex
	generation uint64
}

func NewCached(durable, cache Storage, log *slog.Logger) *Cached {
	return &Cached{
		durable: durable,
		cache:   cache,
		log:     log,
	}
}

func (c *Cached) Load(ctx context.Context, key string) ([]byte, error) {
	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		data, err := c.cache.Load(ctx, key)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			c.log.WarnContext(ctx, "cache load failed", "key", key, "error", err)
		}

		stripe := c.stripe(key)
		gen := stripe.current()
		data, err = c.durable.Load(ctx, key)
		if err != nil {
			return nil, err
		}

		stripe.mu.Lock()
		defer stripe.mu.Unlock()
		if stripe.generation != gen {
			c.log.DebugContext(ctx, "skipping cache fill after concurrent write", "key", key)
			return data, nil
		}
		if errSet := c.cache.Save(ctx, key, data); errSet != nil {
			c.log.WarnContext(ctx, "cache fill failed", "key", key, "error", errSet)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cached) Save(ctx context.Context, key string, data []byte) error {
	if err := c.durable.Save(ctx, key, data); err != nil {
		return err
	}
	c.invalidate(key)
	return nil
}

func (c *Cached) Remove(ctx context.Context, key string) error {
	if err := c.durable.Remove(ctx, key); err != nil {
		return err
	}
	c.invalidate(key)
	return nil
}

func (c *Cached) invalidate(key string) {
	stripe := c.stripe(key)
	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	stripe.generation++

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.cache.Remove(ctx, key); err != nil {
		c.log.Warn("cache invalidate failed", "key", key, "error", err)
	}
}

func (c *Cached) stripe(key string) *cacheStripe {
	return &c.stripes[xxhash.Sum64String(key)%cacheStripes]
}

func (s *cacheStripe) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}
