package sink

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Index tracks the series known to a sink instance: which (source,
// path) pairs exist and the time range each one covers, plus a sorted
// path list per source so prefix queries don't need a full scan.
type Index struct {
	mu sync.RWMutex

	series   map[uint64]*seriesMetadata
	bySource map[string][]string // sourceID -> sorted, deduplicated paths
}

type seriesMetadata struct {
	ID       uint64
	SourceID string
	Path     string
	Kind     uint8
	MinTime  int64
	MaxTime  int64
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		series:   make(map[uint64]*seriesMetadata),
		bySource: make(map[string][]string),
	}
}

// AddSeries registers a (sourceID, path) pair, returning its stable
// series ID. Calling it again for the same pair is a no-op beyond
// returning the existing ID.
func (idx *Index) AddSeries(sourceID, path string, kind uint8) uint64 {
	id := seriesFingerprint(sourceID, path)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.series[id]; exists {
		return id
	}

	idx.series[id] = &seriesMetadata{ID: id, SourceID: sourceID, Path: path, Kind: kind}

	paths := idx.bySource[sourceID]
	i := sort.SearchStrings(paths, path)
	paths = append(paths, "")
	copy(paths[i+1:], paths[i:])
	paths[i] = path
	idx.bySource[sourceID] = paths

	return id
}

// GetSeries retrieves series metadata by ID.
func (idx *Index) GetSeries(id uint64) (*seriesMetadata, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	meta, ok := idx.series[id]
	return meta, ok
}

// FindSeries returns the series IDs for every path under sourceID with
// the given prefix. An empty prefix matches every path for that source.
func (idx *Index) FindSeries(sourceID, pathPrefix string) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	// Paths sharing a prefix are contiguous in the sorted list, starting
	// where the prefix itself would be inserted.
	paths := idx.bySource[sourceID]
	var ids []uint64
	for i := sort.SearchStrings(paths, pathPrefix); i < len(paths) && strings.HasPrefix(paths[i], pathPrefix); i++ {
		ids = append(ids, seriesFingerprint(sourceID, paths[i]))
	}
	return ids
}

// UpdateTimeRange widens the recorded [MinTime, MaxTime] for a series.
func (idx *Index) UpdateTimeRange(id uint64, minTime, maxTime int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	meta, ok := idx.series[id]
	if !ok {
		return fmt.Errorf("sink: series %d not found", id)
	}
	if meta.MinTime == 0 || minTime < meta.MinTime {
		meta.MinTime = minTime
	}
	if meta.MaxTime == 0 || maxTime > meta.MaxTime {
		meta.MaxTime = maxTime
	}
	return nil
}

// SeriesCount returns the number of indexed series.
func (idx *Index) SeriesCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.series)
}

// seriesFingerprint derives a stable series ID from a source ID and
// metric path.
func seriesFingerprint(sourceID, path string) uint64 {
	h := xxhash.New()
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(path))
	return h.Sum64()
}
