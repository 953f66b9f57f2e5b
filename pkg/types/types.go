// Package types holds the domain model shared between pkg/sink and
// pkg/api: the shape of an ingest request and a query result over
// decoded FTDC samples.
package types

import "time"

// Point is a single (timestamp, bit-pattern) observation for one metric
// path, ready for storage. Value holds the same uint64 bit pattern
// ftdc.Chunk.Matrix stores, not a decoded Go value: the sink never
// interprets a metric's type, it only persists and retrieves columns.
type Point struct {
	Timestamp time.Time
	Value     uint64
}

// MetricSeries is one metric path's observations from a single source
// file, in ascending timestamp order.
type MetricSeries struct {
	Path   string
	Kind   uint8 // mirrors ftdc.MetricType, stored so Query can restore it
	Points []Point
}

// IngestRequest asks the sink to persist a batch of metric series
// decoded from one FTDC source file.
type IngestRequest struct {
	SourceID string
	Series   []MetricSeries
}

// QueryRequest selects a time range and a metric path prefix to read
// back from the sink. An empty PathPrefix matches every path.
type QueryRequest struct {
	SourceID   string
	PathPrefix string
	StartTime  time.Time
	EndTime    time.Time
}

// QueryResult holds every matching series for a QueryRequest.
type QueryResult struct {
	Series []MetricSeries
}
