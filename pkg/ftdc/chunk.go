package ftdc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/vjranagit/ftdc/pkg/bsonraw"
	"github.com/vjranagit/ftdc/pkg/varint"
)

// DecodeChunk runs the full four-layer pipeline over the binary payload
// of a MetricChunk framing document: framed deflate unwrap, BSON header
// parse, schema flattening of the reference document, and delta/RLE/
// varint stream decoding into a dense matrix.
func DecodeChunk(ts time.Time, payload []byte) (*Chunk, error) {
	inflated, err := inflateFrame(payload)
	if err != nil {
		return nil, err
	}

	refBytes, metricsCount, deltasCount, rest, err := parseChunkHeader(inflated)
	if err != nil {
		return nil, err
	}

	refDoc, err := bsonraw.Decode(refBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: reference document: %v", ErrMalformedBSON, err)
	}

	metrics, err := Flatten(refDoc)
	if err != nil {
		return nil, err
	}
	if len(metrics) != int(metricsCount) {
		return nil, fmt.Errorf("%w: flattened %d metrics, header declares %d",
			ErrSchemaMismatch, len(metrics), metricsCount)
	}

	nsamples := int(deltasCount) + 1
	matrix := make([]uint64, len(metrics)*nsamples)
	for m, metric := range metrics {
		matrix[m*nsamples] = metric.initial
	}

	if deltasCount > 0 {
		if err := decodeDeltas(rest, metrics, matrix, nsamples); err != nil {
			return nil, err
		}
	}

	return &Chunk{
		Timestamp: ts,
		Metrics:   metrics,
		NSamples:  nsamples,
		Matrix:    matrix,
	}, nil
}

// inflateFrame unwraps the chunk's 4-byte uncompressed-size prefix and
// zlib-compressed body, verifying the inflated length matches what was
// declared.
func inflateFrame(payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: chunk frame shorter than size prefix", ErrTruncated)
	}
	declaredSize := binary.LittleEndian.Uint32(payload[:4])

	zr, err := zlib.NewReader(bytes.NewReader(payload[4:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailure, err)
	}
	defer zr.Close()

	inflated, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailure, err)
	}

	if uint32(len(inflated)) != declaredSize {
		return nil, fmt.Errorf("%w: declared %d bytes, inflated %d",
			ErrFrameSizeMismatch, declaredSize, len(inflated))
	}
	return inflated, nil
}

// parseChunkHeader splits the inflated chunk buffer into the reference
// BSON document, the metrics/deltas counts, and the remaining delta
// stream bytes.
func parseChunkHeader(buf []byte) (refDoc []byte, metricsCount, deltasCount uint32, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, 0, 0, nil, fmt.Errorf("%w: missing reference document size", ErrTruncated)
	}
	docSize := binary.LittleEndian.Uint32(buf[:4])
	if int(docSize) < 5 || int(docSize) > len(buf) {
		return nil, 0, 0, nil, fmt.Errorf("%w: reference document size %d invalid for %d-byte buffer",
			ErrTruncated, docSize, len(buf))
	}
	refDoc = buf[:docSize]
	pos := int(docSize)

	if pos+8 > len(buf) {
		return nil, 0, 0, nil, fmt.Errorf("%w: missing metrics_count/deltas_count header", ErrTruncated)
	}
	metricsCount = binary.LittleEndian.Uint32(buf[pos : pos+4])
	deltasCount = binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
	rest = buf[pos+8:]
	return refDoc, metricsCount, deltasCount, rest, nil
}

// decodeDeltas decodes the RLE+varint delta stream into matrix, which
// must already hold each metric's initial value at column 0.
//
// nzeros is declared once, outside both loops, and is never reset inside
// the metric loop: a zero-run introduced near the end of one metric's
// column legitimately spills into the next metric's column, and resetting
// this counter per metric is the single most common defect in decoders
// of this format.
func decodeDeltas(data []byte, metrics []Metric, matrix []uint64, nsamples int) error {
	cur := varint.NewCursor(data)
	var nzeros uint64

	for m := range metrics {
		base := m * nsamples
		for s := 1; s < nsamples; s++ {
			var delta uint64
			if nzeros > 0 {
				delta = 0
				nzeros--
			} else {
				v, err := cur.ReadUvarint()
				if err != nil {
					return classifyVarintError(err, m, s)
				}
				delta = v
				if delta == 0 {
					run, err := cur.ReadUvarint()
					if err != nil {
						return classifyVarintError(err, m, s)
					}
					nzeros = run
				}
			}
			matrix[base+s] = matrix[base+s-1] + delta
		}
	}

	if !cur.Exhausted() {
		return fmt.Errorf("%w: %d unconsumed bytes after decoding all deltas",
			ErrTrailingBytes, cur.Len())
	}
	return nil
}

func classifyVarintError(err error, metricIdx, sampleIdx int) error {
	if err == varint.ErrOverflow {
		return fmt.Errorf("%w: metric %d sample %d", ErrVarintOverflow, metricIdx, sampleIdx)
	}
	return fmt.Errorf("%w: metric %d sample %d: %v", ErrTruncated, metricIdx, sampleIdx, err)
}
