// Package ftdc decodes MongoDB Full Time Diagnostic Data Capture files:
// a binary, time-series diagnostic log produced by a live mongod/mongos
// process. It reconstructs the dense per-second metric matrix the
// producer wrote from FTDC's framed-deflate + BSON + delta/RLE/varint
// encoding, and exposes it as a pull-based stream of samples.
package ftdc

import (
	"math"
	"time"
)

// DocKind identifies the kind of framing document read from an FTDC
// file, taken verbatim from the wire "type" field.
type DocKind int32

const (
	DocMetadata         DocKind = 0
	DocMetricChunk      DocKind = 1
	DocPeriodicMetadata DocKind = 2
)

func (k DocKind) String() string {
	switch k {
	case DocMetadata:
		return "metadata"
	case DocMetricChunk:
		return "metric_chunk"
	case DocPeriodicMetadata:
		return "periodic_metadata"
	default:
		return "unknown"
	}
}

// MetricType is the origin BSON type of a flattened metric, needed to
// restore the correct Go type at sample materialization time.
type MetricType int

const (
	MetricDouble MetricType = iota
	MetricInt32
	MetricInt64
	MetricBool
	MetricDateMillis
	MetricTimestampSeconds
	MetricTimestampIncrement
)

// Metric is one leaf of the reference document's flattened schema. Its
// identity is its position in the flattened sequence, not its Path: two
// metrics may share a Path when the producer emitted duplicate sibling
// keys (see the bsonraw package doc comment).
type Metric struct {
	Path string
	Type MetricType

	// initial is the sample-0 value, stored as the unsigned 64-bit bit
	// pattern the delta stream arithmetic operates on directly.
	initial uint64
}

// Chunk is a fully decoded FTDC metric chunk: a schema (Metrics) and a
// dense row-major matrix of len(Metrics) rows by NSamples columns.
// Matrix[m*NSamples+s] holds the unsigned 64-bit bit pattern for metric m
// at sample s; callers use Chunk.Value to restore the typed value.
type Chunk struct {
	Timestamp time.Time
	Metrics   []Metric
	NSamples  int
	Matrix    []uint64
}

// at returns the raw bit pattern for metric m at sample s.
func (c *Chunk) at(m, s int) uint64 {
	return c.Matrix[m*c.NSamples+s]
}

// Value restores the typed value for metric m at sample s according to
// the metric's origin BSON type.
func (c *Chunk) Value(m, s int) any {
	bits := c.at(m, s)
	return restoreValue(c.Metrics[m].Type, bits)
}

// Point is one (path, typed value) pair within a Sample, in flattener
// order.
type Point struct {
	Path  string
	Value any
}

// Sample is a single observation: one column of a Chunk's matrix,
// reconstituted with typed values and a derived timestamp. It borrows
// its parent Chunk and is only valid for as long as that Chunk is.
type Sample struct {
	Timestamp time.Time
	Points    []Point
}

// Sample materializes sample index s (0 is the reference row) from the
// chunk. Timestamp is derived from a "start" metric if present in the
// schema, falling back to the chunk timestamp offset by s seconds (FTDC
// chunks are one-second cadence in practice; the offset is a best-effort
// fallback, never authoritative when "start" exists).
func (c *Chunk) Sample(s int) Sample {
	points := make([]Point, 0, len(c.Metrics))
	ts := c.Timestamp.Add(time.Duration(s) * time.Second)

	for m := range c.Metrics {
		v := c.Value(m, s)
		if c.Metrics[m].Path == "start" {
			if ms, ok := v.(int64); ok {
				ts = time.UnixMilli(ms).UTC()
			}
		}
		points = append(points, Point{Path: c.Metrics[m].Path, Value: v})
	}

	return Sample{Timestamp: ts, Points: points}
}

func restoreValue(t MetricType, bits uint64) any {
	switch t {
	case MetricDouble:
		return math.Float64frombits(bits)
	case MetricInt32:
		return int32(uint32(bits))
	case MetricInt64, MetricDateMillis:
		return int64(bits)
	case MetricBool:
		return bits != 0
	case MetricTimestampSeconds, MetricTimestampIncrement:
		return uint32(bits)
	default:
		return int64(bits)
	}
}
