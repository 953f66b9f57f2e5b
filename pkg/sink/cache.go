package sink

import (
	"container/list"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/vjranagit/ftdc/pkg/types"
)

// QueryCache is an LRU+TTL cache of QueryResults, keyed by the
// QueryRequest that produced them.
type QueryCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.RWMutex
	cache    map[uint64]*cacheEntry
	lru      *list.List
}

type cacheEntry struct {
	key       uint64
	result    *types.QueryResult
	timestamp time.Time
	element   *list.Element
}

// NewQueryCache creates a cache holding at most capacity entries, each
// valid for ttl.
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[uint64]*cacheEntry),
		lru:      list.New(),
	}
}

// Get returns the cached result for req, if present and not expired.
func (qc *QueryCache) Get(req *types.QueryRequest) (*types.QueryResult, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	key := requestKey(req)
	entry, exists := qc.cache[key]
	if !exists {
		return nil, false
	}
	if time.Since(entry.timestamp) > qc.ttl {
		qc.removeLocked(key)
		return nil, false
	}
	qc.lru.MoveToFront(entry.element)
	return entry.result, true
}

// Put stores result under req's key, evicting the least-recently-used
// entry if the cache is at capacity.
func (qc *QueryCache) Put(req *types.QueryRequest, result *types.QueryResult) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	key := requestKey(req)
	if entry, exists := qc.cache[key]; exists {
		entry.result = result
		entry.timestamp = time.Now()
		qc.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{key: key, result: result, timestamp: time.Now()}
	entry.element = qc.lru.PushFront(entry)
	qc.cache[key] = entry

	if qc.lru.Len() > qc.capacity {
		if oldest := qc.lru.Back(); oldest != nil {
			qc.removeLocked(oldest.Value.(*cacheEntry).key)
		}
	}
}

func (qc *QueryCache) removeLocked(key uint64) {
	if entry, exists := qc.cache[key]; exists {
		qc.lru.Remove(entry.element)
		delete(qc.cache, key)
	}
}

// Clear empties the cache.
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.cache = make(map[uint64]*cacheEntry)
	qc.lru = list.New()
}

// Size returns the current entry count.
func (qc *QueryCache) Size() int {
	qc.mu.RLock()
	defer qc.mu.RUnlock()
	return len(qc.cache)
}

// Stats reports cache occupancy.
func (qc *QueryCache) Stats() CacheStats {
	qc.mu.RLock()
	defer qc.mu.RUnlock()

	expired := 0
	for _, entry := range qc.cache {
		if time.Since(entry.timestamp) > qc.ttl {
			expired++
		}
	}
	return CacheStats{Size: len(qc.cache), Capacity: qc.capacity, Expired: expired}
}

// CacheStats describes a QueryCache's current occupancy.
type CacheStats struct {
	Size     int
	Capacity int
	Expired  int
}

// requestKey derives a deterministic cache key from the fields of a
// QueryRequest that affect its result.
func requestKey(req *types.QueryRequest) uint64 {
	h := xxhash.New()
	h.Write([]byte(req.SourceID))
	h.Write([]byte{0})
	h.Write([]byte(req.PathPrefix))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(req.StartTime.UnixNano(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(req.EndTime.UnixNano(), 10)))
	return h.Sum64()
}

// CachedSink wraps a Sink with query-result caching. Every Ingest call
// invalidates the whole cache: a finer invalidation scheme would key on
// source and path range, but ingestion is bursty and infrequent enough
// relative to querying that a full clear is the simpler correct choice.
type CachedSink struct {
	sink   Sink
	cache  *QueryCache
	mu     sync.RWMutex
	hits   uint64
	misses uint64
}

// NewCachedSink wraps sink with an LRU query cache.
func NewCachedSink(sink Sink, cacheCapacity int, cacheTTL time.Duration) *CachedSink {
	return &CachedSink{sink: sink, cache: NewQueryCache(cacheCapacity, cacheTTL)}
}

func (cs *CachedSink) Ingest(ctx context.Context, req *types.IngestRequest) error {
	if err := cs.sink.Ingest(ctx, req); err != nil {
		return err
	}
	cs.cache.Clear()
	return nil
}

func (cs *CachedSink) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error) {
	if result, ok := cs.cache.Get(req); ok {
		cs.mu.Lock()
		cs.hits++
		cs.mu.Unlock()
		return result, nil
	}

	cs.mu.Lock()
	cs.misses++
	cs.mu.Unlock()

	result, err := cs.sink.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	cs.cache.Put(req, result)
	return result, nil
}

func (cs *CachedSink) Close() error { return cs.sink.Close() }

// CacheStats returns the wrapped cache's occupancy plus hit/miss counts.
func (cs *CachedSink) CacheStats() (CacheStats, uint64, uint64) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.cache.Stats(), cs.hits, cs.misses
}

// CacheHitRate returns the hit rate as a percentage.
func (cs *CachedSink) CacheHitRate() float64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	total := cs.hits + cs.misses
	if total == 0 {
		return 0
	}
	return float64(cs.hits) / float64(total) * 100
}

var _ fmt.Stringer = CacheStats{}

func (s CacheStats) String() string {
	return fmt.Sprintf("size=%d capacity=%d expired=%d", s.Size, s.Capacity, s.Expired)
}
