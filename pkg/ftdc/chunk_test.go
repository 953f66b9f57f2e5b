package ftdc

import (
	"errors"
	"math"
	"testing"
	"time"
)

var fixedTS = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestDecodeChunkSingleMetricSingleSample(t *testing.T) {
	ref := bsonDoc(bsonInt32("a", 100))
	payload := buildChunkPayload(ref, 1, 0, nil)

	c, err := DecodeChunk(fixedTS, payload)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if c.NSamples != 1 {
		t.Fatalf("NSamples = %d, want 1", c.NSamples)
	}
	if got := c.Value(0, 0).(int32); got != 100 {
		t.Errorf("a[0] = %d, want 100", got)
	}
}

func TestDecodeChunkSingleMetricZeroRun(t *testing.T) {
	ref := bsonDoc(bsonInt32("a", 0))
	deltas := append(varintBytes(0), varintBytes(2)...)
	payload := buildChunkPayload(ref, 1, 3, deltas)

	c, err := DecodeChunk(fixedTS, payload)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if c.NSamples != 4 {
		t.Fatalf("NSamples = %d, want 4", c.NSamples)
	}
	for s := 0; s < 4; s++ {
		if got := c.Value(0, s).(int32); got != 0 {
			t.Errorf("a[%d] = %d, want 0", s, got)
		}
	}
}

func TestDecodeChunkZeroRunCrossesMetricBoundary(t *testing.T) {
	ref := bsonDoc(bsonInt32("a", 0), bsonInt32("b", 100))
	deltas := append(varintBytes(0), varintBytes(5)...)
	payload := buildChunkPayload(ref, 2, 3, deltas)

	c, err := DecodeChunk(fixedTS, payload)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if c.NSamples != 4 {
		t.Fatalf("NSamples = %d, want 4", c.NSamples)
	}
	for s := 0; s < 4; s++ {
		if got := c.Value(0, s).(int32); got != 0 {
			t.Errorf("a[%d] = %d, want 0", s, got)
		}
		if got := c.Value(1, s).(int32); got != 100 {
			t.Errorf("b[%d] = %d, want 100", s, got)
		}
	}
}

func TestDecodeChunkDoubleWrappingDelta(t *testing.T) {
	v0, v1 := 1.5, 2.75
	bits0 := math.Float64bits(v0)
	bits1 := math.Float64bits(v1)
	delta := bits1 - bits0 // wraps per Go's native uint64 arithmetic

	ref := bsonDoc(bsonDouble("a", v0))
	payload := buildChunkPayload(ref, 1, 1, varintBytes(delta))

	c, err := DecodeChunk(fixedTS, payload)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if got := c.Value(0, 0).(float64); got != v0 {
		t.Errorf("a[0] = %v, want %v", got, v0)
	}
	if got := c.Value(0, 1).(float64); got != v1 {
		t.Errorf("a[1] = %v, want %v", got, v1)
	}
}

func TestDecodeChunkTimestampExpandsToTwoMetrics(t *testing.T) {
	ref := bsonDoc(bsonTimestamp("ts", 100, 5))
	deltas := append(varintBytes(3), append(varintBytes(0), varintBytes(0)...)...)
	payload := buildChunkPayload(ref, 2, 1, deltas)

	c, err := DecodeChunk(fixedTS, payload)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if len(c.Metrics) != 2 {
		t.Fatalf("len(Metrics) = %d, want 2", len(c.Metrics))
	}
	if c.Metrics[0].Path != "ts" || c.Metrics[1].Path != "ts.inc" {
		t.Fatalf("metric paths = %q, %q", c.Metrics[0].Path, c.Metrics[1].Path)
	}
	if got := c.Value(0, 0).(uint32); got != 100 {
		t.Errorf("ts[0] = %d, want 100", got)
	}
	if got := c.Value(0, 1).(uint32); got != 103 {
		t.Errorf("ts[1] = %d, want 103", got)
	}
	if got := c.Value(1, 0).(uint32); got != 5 {
		t.Errorf("ts.inc[0] = %d, want 5", got)
	}
	if got := c.Value(1, 1).(uint32); got != 5 {
		t.Errorf("ts.inc[1] = %d, want 5", got)
	}
}

func TestDecodeChunkDuplicateKeyPreserved(t *testing.T) {
	ref := bsonDoc(bsonInt32("a", 1), bsonInt32("a", 2))
	payload := buildChunkPayload(ref, 2, 0, nil)

	c, err := DecodeChunk(fixedTS, payload)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if len(c.Metrics) != 2 || c.Metrics[0].Path != "a" || c.Metrics[1].Path != "a" {
		t.Fatalf("metrics = %+v, want two metrics both named 'a'", c.Metrics)
	}
	if got := c.Value(0, 0).(int32); got != 1 {
		t.Errorf("a[0] = %d, want 1", got)
	}
	if got := c.Value(1, 0).(int32); got != 2 {
		t.Errorf("a(dup)[0] = %d, want 2", got)
	}
}

func TestDecodeChunkZeroMetricsCount(t *testing.T) {
	ref := bsonDoc()
	payload := buildChunkPayload(ref, 0, 2, nil)

	c, err := DecodeChunk(fixedTS, payload)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if c.NSamples != 3 {
		t.Fatalf("NSamples = %d, want 3", c.NSamples)
	}
	if len(c.Metrics) != 0 {
		t.Fatalf("len(Metrics) = %d, want 0", len(c.Metrics))
	}
	for s := 0; s < 3; s++ {
		if len(c.Sample(s).Points) != 0 {
			t.Errorf("Sample(%d).Points non-empty", s)
		}
	}
}

func TestDecodeChunkInt64WrapsThroughMinMax(t *testing.T) {
	ref := bsonDoc(bsonInt64("a", math.MaxInt64))
	payload := buildChunkPayload(ref, 1, 1, varintBytes(1))

	c, err := DecodeChunk(fixedTS, payload)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if got := c.Value(0, 0).(int64); got != math.MaxInt64 {
		t.Errorf("a[0] = %d, want MaxInt64", got)
	}
	if got := c.Value(0, 1).(int64); got != math.MinInt64 {
		t.Errorf("a[1] = %d, want MinInt64", got)
	}
}

func TestDecodeChunkNaNRoundTrip(t *testing.T) {
	ref := bsonDoc(bsonDouble("a", math.NaN()))
	deltas := append(varintBytes(0), varintBytes(0)...)
	payload := buildChunkPayload(ref, 1, 1, deltas)

	c, err := DecodeChunk(fixedTS, payload)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	for s := 0; s < 2; s++ {
		got := c.Value(0, s).(float64)
		if !math.IsNaN(got) {
			t.Errorf("a[%d] = %v, want NaN", s, got)
		}
	}
}

func TestDecodeChunkSchemaMismatch(t *testing.T) {
	ref := bsonDoc(bsonInt32("a", 1))
	payload := buildChunkPayload(ref, 2, 0, nil) // declares 2, flattens to 1

	_, err := DecodeChunk(fixedTS, payload)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("err = %v, want ErrSchemaMismatch", err)
	}
}

func TestDecodeChunkTrailingBytes(t *testing.T) {
	ref := bsonDoc(bsonInt32("a", 0))
	deltas := append(varintBytes(1), varintBytes(99)...) // one extra byte after the only delta needed
	payload := buildChunkPayload(ref, 1, 1, deltas)

	_, err := DecodeChunk(fixedTS, payload)
	if !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("err = %v, want ErrTrailingBytes", err)
	}
}

func TestDecodeChunkFrameSizeMismatch(t *testing.T) {
	ref := bsonDoc(bsonInt32("a", 0))
	payload := buildChunkPayload(ref, 1, 0, nil)
	// Corrupt the declared uncompressed size prefix.
	payload[0] ^= 0xFF

	_, err := DecodeChunk(fixedTS, payload)
	if !errors.Is(err, ErrFrameSizeMismatch) {
		t.Fatalf("err = %v, want ErrFrameSizeMismatch", err)
	}
}
