package redis

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-memory/memory"
)

// recordCache is a ristretto-backed cache of decoded records keyed by their
// record hash key. A nil *recordCache is a valid, disabled cache.
type recordCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func newRecordCache(size int, ttl time.Duration) (*recordCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &recordCache{cache: cache, ttl: ttl}, nil
}

func (c *recordCache) get(key string) (*memory.Record, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	rec, ok := v.(*memory.Record)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (c *recordCache) set(key string, rec *memory.Record) {
	if c == nil {
		return
	}
	if c.ttl > 0 {
		c.cache.SetWithTTL(key, rec.Clone(), 1, c.ttl)
		return
	}
	c.cache.Set(key, rec.Clone(), 1)
}

func (c *recordCache) invalidate(key string) {
	if c == nil {
		return
	}
	c.cache.Del(key)
}

func (c *recordCache) close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
