// Package cache provides the in-memory render cache.
//
// A [Cache] maps a [Key] to the PNG bytes produced for it. Concurrent
// requests for the same key share a single computation; completed images
// live in a bounded LRU and failed computations may be held briefly so a
// burst of requests for a broken key does not recompute it each time.
//
//	c, err := cache.New(cache.Options{Size: 512, FailureTTL: 2 * time.Second})
//	png, err := c.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
//	    return renderer.Compile(ctx, doc)
//	})
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/observability"
)

// shardCount is the number of in-flight maps. Each has its own lock.
const shardCount = 32

// DefaultSize is the number of images kept when no size is configured.
const DefaultSize = 512

// ComputeFunc produces the value for a key. The context it receives is
// detached from every caller's cancellation.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Outcome tells a caller how its value was obtained.
type Outcome int

const (
	// Computed means this caller started the computation.
	Computed Outcome = iota
	// Hit means the value (or a held failure) was already stored.
	Hit
	// Joined means the caller waited on a computation started by another.
	Joined
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Joined:
		return "joined"
	default:
		return "computed"
	}
}

// Options configures a [Cache].
type Options struct {
	// Size is the maximum number of completed images kept. Must be positive.
	Size int
	// FailureTTL is how long a failed computation is returned to new callers
	// before the key is retried. Zero disables holding failures.
	FailureTTL time.Duration
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Dedups    int64
	Evictions int64
	Entries   int
	InFlight  int
}

type result struct {
	val []byte
	err error
}

type call struct {
	done chan struct{}
	result
}

type shard struct {
	mu    sync.Mutex
	calls map[Key]*call
}

// Cache is a deduplicating LRU of rendered images. It is safe for
// concurrent use.
type Cache struct {
	entries  *lru.Cache[Key, []byte]
	failures *expirable.LRU[Key, error]
	shards   [shardCount]shard

	hits      atomic.Int64
	misses    atomic.Int64
	dedups    atomic.Int64
	evictions atomic.Int64
}

// New creates a cache holding at most opts.Size images.
func New(opts Options) (*Cache, error) {
	if opts.Size <= 0 {
		return nil, errors.New(errors.ErrCodeCacheInternal, "cache size must be positive, got %d", opts.Size)
	}
	if opts.FailureTTL < 0 {
		return nil, errors.New(errors.ErrCodeCacheInternal, "failure ttl must not be negative, got %s", opts.FailureTTL)
	}

	c := &Cache{}
	entries, err := lru.NewWithEvict(opts.Size, func(Key, []byte) {
		c.evictions.Add(1)
		observability.Cache().OnCacheEvict(context.Background())
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheInternal, err, "create lru")
	}
	c.entries = entries
	if opts.FailureTTL > 0 {
		c.failures = expirable.NewLRU[Key, error](opts.Size, nil, opts.FailureTTL)
	}
	for i := range c.shards {
		c.shards[i].calls = make(map[Key]*call)
	}
	return c, nil
}

// GetOrCompute returns the stored value for key or runs compute to produce
// it. At most one compute runs per key at a time; concurrent callers for the
// same key receive the same bytes or the same error.
//
// If ctx ends first, GetOrCompute returns ctx.Err() but the computation
// keeps running and its result is stored for later callers.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) ([]byte, error) {
	val, _, err := c.Do(ctx, key, compute)
	return val, err
}

// Do is GetOrCompute that also reports how the value was obtained.
func (c *Cache) Do(ctx context.Context, key Key, compute ComputeFunc) ([]byte, Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, Computed, err
	}
	if r, ok := c.stored(key); ok {
		c.hit(ctx)
		return r.val, Hit, r.err
	}

	s := &c.shards[key.shard()]
	s.mu.Lock()
	// A computation may have finished between the lookup and the lock.
	if r, ok := c.stored(key); ok {
		s.mu.Unlock()
		c.hit(ctx)
		return r.val, Hit, r.err
	}
	cl, joined := s.calls[key]
	if !joined {
		cl = &call{done: make(chan struct{})}
		s.calls[key] = cl
		go c.run(context.WithoutCancel(ctx), s, key, cl, compute)
	}
	s.mu.Unlock()

	outcome := Computed
	if joined {
		outcome = Joined
		c.dedups.Add(1)
		observability.Cache().OnCacheDedup(ctx)
	} else {
		c.misses.Add(1)
		observability.Cache().OnCacheMiss(ctx)
	}

	select {
	case <-cl.done:
		return cl.val, outcome, cl.err
	case <-ctx.Done():
		return nil, outcome, ctx.Err()
	}
}

// stored returns the completed value or held failure for key.
func (c *Cache) stored(key Key) (result, bool) {
	if val, ok := c.entries.Get(key); ok {
		return result{val: val}, true
	}
	if c.failures != nil {
		if err, ok := c.failures.Get(key); ok {
			return result{err: err}, true
		}
	}
	return result{}, false
}

func (c *Cache) hit(ctx context.Context) {
	c.hits.Add(1)
	observability.Cache().OnCacheHit(ctx)
}

// run executes compute and publishes the result. The value is stored before
// the call leaves the in-flight map, so a caller that misses the call always
// finds the stored value.
func (c *Cache) run(ctx context.Context, s *shard, key Key, cl *call, compute ComputeFunc) {
	cl.val, cl.err = safeCompute(ctx, key, compute)
	if cl.err == nil {
		c.entries.Add(key, cl.val)
	} else if c.failures != nil {
		c.failures.Add(key, cl.err)
	}

	s.mu.Lock()
	delete(s.calls, key)
	s.mu.Unlock()
	close(cl.done)
}

func safeCompute(ctx context.Context, key Key, compute ComputeFunc) (val []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, errors.New(errors.ErrCodeInternal, "compute %s panicked: %v", key, r)
		}
	}()
	val, err = compute(ctx)
	if err == nil && val == nil {
		return nil, errors.New(errors.ErrCodeInternal, "compute %s returned no data", key)
	}
	return val, err
}

// Contains reports whether a completed image is stored for key without
// touching its recency.
func (c *Cache) Contains(key Key) bool {
	return c.entries.Contains(key)
}

// Len returns the number of stored images.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	inFlight := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		inFlight += len(s.calls)
		s.mu.Unlock()
	}
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Dedups:    c.dedups.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.entries.Len(),
		InFlight:  inFlight,
	}
}

// String implements fmt.Stringer for log output.
func (s Stats) String() string {
	return fmt.Sprintf("hits=%d misses=%d dedups=%d evictions=%d entries=%d", s.Hits, s.Misses, s.Dedups, s.Evictions, s.Entries)
}
