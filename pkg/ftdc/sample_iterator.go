package ftdc

import (
	"context"
	"fmt"
	"io"
	"time"
)

// SchemaChangePolicy controls how SampleIterator reacts when consecutive
// chunks declare different flattened schemas. A schema change is not an
// error by default: a new reference document legitimately begins a new
// chunk with its own metric count whenever the producer's own internal
// state (e.g. replication topology) changes shape.
type SchemaChangePolicy int

const (
	// SchemaChangeAllow treats a differing chunk schema as expected.
	SchemaChangeAllow SchemaChangePolicy = iota
	// SchemaChangeError fails iteration the first time a chunk's schema
	// differs from the previous chunk's.
	SchemaChangeError
)

// MetricFilter reports whether a metric path should be included in
// materialized Samples. Metrics for which it returns false are omitted
// from Sample.Points but still consume their column during decode: the
// filter only affects presentation, never the delta stream's framing.
type MetricFilter func(path string) bool

// Options configures a SampleIterator.
type Options struct {
	// Start and End bound the half-open interval [Start, End) in UTC.
	// Either may be the zero Time to leave that bound open.
	Start, End time.Time

	// MetricFilter, if non-nil, restricts which metrics appear in each
	// Sample's Points.
	MetricFilter MetricFilter

	// OnSchemaChange governs the policy described above. Zero value is
	// SchemaChangeAllow.
	OnSchemaChange SchemaChangePolicy
}

// SampleIterator flattens a ChunkIterator's stream of Chunks into a
// stream of Samples, applying an optional time-range filter and metric
// filter.
type SampleIterator struct {
	chunks *ChunkIterator
	opts   Options

	curChunk   *Chunk
	sampleIdx  int
	prevPaths  []string
	haveSchema bool

	cur Sample
	err error
}

// NewSampleIterator wraps chunks with sample-level iteration per opts.
func NewSampleIterator(chunks *ChunkIterator, opts Options) *SampleIterator {
	return &SampleIterator{chunks: chunks, opts: opts}
}

// Next advances to the next sample in the stream, applying the time
// range and schema-change policy. It returns false at end of stream or
// on error; check Err to distinguish the two.
func (it *SampleIterator) Next() bool {
	for {
		if it.curChunk == nil {
			if !it.advanceChunk() {
				return false
			}
			continue
		}

		if it.sampleIdx >= it.curChunk.NSamples {
			it.curChunk = nil
			continue
		}

		s := it.curChunk.Sample(it.sampleIdx)
		it.sampleIdx++

		if !it.opts.Start.IsZero() && s.Timestamp.Before(it.opts.Start) {
			continue
		}
		if !it.opts.End.IsZero() && !s.Timestamp.Before(it.opts.End) {
			// samples are strictly ascending within and across chunks;
			// once we're at or past End there is nothing more to yield.
			it.curChunk = nil
			it.err = nil
			return false
		}

		if it.opts.MetricFilter != nil {
			filtered := s.Points[:0:0]
			for _, p := range s.Points {
				if it.opts.MetricFilter(p.Path) {
					filtered = append(filtered, p)
				}
			}
			s.Points = filtered
		}

		it.cur = s
		return true
	}
}

// advanceChunk pulls the next chunk from the underlying ChunkIterator,
// applying the chunk-level time-range skip (a chunk whose last sample is
// strictly before Start, or whose chunk timestamp lower-bounds a first
// sample at or after End, can be skipped without decoding its samples
// individually) and the schema-change policy.
func (it *SampleIterator) advanceChunk() bool {
	for it.chunks.Next() {
		c := it.chunks.Chunk()

		if !it.opts.End.IsZero() && !c.Timestamp.Before(it.opts.End) {
			it.err = nil
			return false
		}
		if !it.opts.Start.IsZero() {
			lastTS := c.Timestamp.Add(time.Duration(c.NSamples-1) * time.Second)
			if lastTS.Before(it.opts.Start) {
				continue
			}
		}

		if it.opts.OnSchemaChange == SchemaChangeError && it.haveSchema {
			if !samePaths(it.prevPaths, pathsOf(c)) {
				it.err = fmt.Errorf("ftdc: schema changed between chunks at %s", c.Timestamp)
				return false
			}
		}
		it.prevPaths = pathsOf(c)
		it.haveSchema = true

		it.curChunk = c
		it.sampleIdx = 0
		return true
	}

	if err := it.chunks.Err(); err != nil {
		it.err = err
	}
	return false
}

// Sample returns the sample produced by the most recent successful Next.
func (it *SampleIterator) Sample() Sample { return it.cur }

// Err returns the first error encountered, or nil on clean exhaustion.
func (it *SampleIterator) Err() error { return it.err }

// MetricNames returns the ordered metric paths of the most recently
// decoded chunk. It returns an error if no chunk has been decoded yet.
func (it *SampleIterator) MetricNames() ([]string, error) {
	if it.curChunk == nil && !it.haveSchema {
		return nil, fmt.Errorf("ftdc: no chunk decoded yet")
	}
	return it.prevPaths, nil
}

func pathsOf(c *Chunk) []string {
	paths := make([]string, len(c.Metrics))
	for i, m := range c.Metrics {
		paths[i] = m.Path
	}
	return paths
}

func samePaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SampleCount scans every remaining chunk in src to completion and
// returns the total number of samples it will yield. This is a
// destructive full-scan: src is exhausted afterward and cannot be reused
// for further iteration. Exposed because consumers such as a CLI summary
// command need an upfront count, not because counting is cheap — it
// requires decoding (but not materializing) every chunk.
func SampleCount(ctx context.Context, r io.Reader) (int, error) {
	it := NewChunkIterator(ctx, r)
	total := 0
	for it.Next() {
		total += it.Chunk().NSamples
	}
	if err := it.Err(); err != nil {
		return total, err
	}
	return total, nil
}
