package walog

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/SharedCode/kvenv"
	"github.com/redis/go-redis/v9"
)

// CachedLogConfig configures CachedLog's two cache tiers.
type CachedLogConfig struct {
	// RedisAddr, if non-empty, enables an L2 read-through cache in Redis shared across hosts.
	RedisAddr string
	RedisDB   int
	// L1Size bounds the in-process MRU cache entry count (0 disables L1).
	L1Size int
	// KeyPrefix namespaces this log's entries within a shared Redis instance.
	KeyPrefix string
}

// CachedLog decorates a kvenv.Log with a two-tier read cache for Get: a small in-process MRU
// cache (L1, grounded on the teacher's cache/mru.go recency-list eviction) in front of an optional
// shared Redis cache (L2). Writes (Append, SetHighAddress, Clear) pass straight through; Append
// invalidates nothing, while SetHighAddress and Clear drop both tiers, since a log's address space
// is append-only and rollback-truncatable but never rewritten in place.
type CachedLog struct {
	kvenv.Log

	redis     *redis.Client
	keyPrefix string

	l1Size int
	mu     sync.Mutex
	order  *list.List // front = most recently used
	index  map[int64]*list.Element

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	address int64
	value   []byte
}

// NewCachedLog wraps backing with the cache tiers cfg describes.
func NewCachedLog(backing kvenv.Log, cfg CachedLogConfig) *CachedLog {
	cl := &CachedLog{
		Log:       backing,
		keyPrefix: cfg.KeyPrefix,
		l1Size:    cfg.L1Size,
		order:     list.New(),
		index:     make(map[int64]*list.Element),
	}
	if cfg.RedisAddr != "" {
		cl.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	}
	return cl
}

func (c *CachedLog) redisKey(address int64) string {
	return fmt.Sprintf("%swal:%d", c.keyPrefix, address)
}

// Get checks L1, then L2, then falls through to the backing log, populating both tiers on a miss.
func (c *CachedLog) Get(ctx context.Context, address int64) ([]byte, error) {
	if v, ok := c.getL1(address); ok {
		c.hits.Add(1)
		return v, nil
	}
	if c.redis != nil {
		if v, err := c.redis.Get(ctx, c.redisKey(address)).Bytes(); err == nil {
			c.hits.Add(1)
			c.putL1(address, v)
			return v, nil
		}
	}

	c.misses.Add(1)
	v, err := c.Log.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	c.putL1(address, v)
	if c.redis != nil {
		_ = c.redis.Set(ctx, c.redisKey(address), v, 0).Err()
	}
	return v, nil
}

func (c *CachedLog) getL1(address int64) ([]byte, bool) {
	if c.l1Size == 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[address]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *CachedLog) putL1(address int64, value []byte) {
	if c.l1Size == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[address]; ok {
		el.Value.(*cacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{address: address, value: value})
	c.index[address] = el
	if c.order.Len() > c.l1Size {
		tail := c.order.Back()
		c.order.Remove(tail)
		delete(c.index, tail.Value.(*cacheEntry).address)
	}
}

// Append invalidates nothing (new addresses can't already be cached) and passes through.
func (c *CachedLog) Append(ctx context.Context, records [][]byte) ([]int64, error) {
	return c.Log.Append(ctx, records)
}

// SetHighAddress and Clear drop both cache tiers entirely: stale entries past the new high
// address must never be served again even if their bytes happen to still sit in L1/L2.
func (c *CachedLog) SetHighAddress(ctx context.Context, address int64) error {
	if err := c.Log.SetHighAddress(ctx, address); err != nil {
		return err
	}
	c.resetL1()
	if c.redis != nil {
		_ = c.redis.FlushDB(ctx).Err()
	}
	return nil
}

func (c *CachedLog) Clear(ctx context.Context) error {
	if err := c.Log.Clear(ctx); err != nil {
		return err
	}
	c.resetL1()
	if c.redis != nil {
		_ = c.redis.FlushDB(ctx).Err()
	}
	return nil
}

func (c *CachedLog) resetL1() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[int64]*list.Element)
}

func (c *CachedLog) Close() error {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	return c.Log.Close()
}

// CacheHitRate reports the L1+L2 combined hit ratio observed by Get calls so far, or -1 if Get
// has never been called.
func (c *CachedLog) CacheHitRate() float64 {
	h, m := c.hits.Load(), c.misses.Load()
	if h+m == 0 {
		return -1
	}
	return float64(h) / float64(h+m)
}
