package ftdc

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/vjranagit/ftdc/pkg/bsonraw"
)

const (
	minDocSize = 5
	maxDocSize = 100 * 1024 * 1024 // sanity bound against a corrupt length prefix
)

// FramingDocument is one outer BSON record read from an FTDC file.
type FramingDocument struct {
	Timestamp time.Time
	Kind      DocKind
	// Payload holds the decoded "doc" document for Metadata/
	// PeriodicMetadata records; ChunkBytes holds the raw "data" binary
	// blob for MetricChunk records (see DecodeChunk).
	Payload    bsonraw.Document
	ChunkBytes []byte
}

type framingHeader = FramingDocument

// ChunkIterator pulls MetricChunk framing documents out of an FTDC byte
// source one at a time, decoding each into a Chunk. It also tracks
// Metadata/PeriodicMetadata documents it passes over so callers can
// retrieve them via Metadata and PeriodicMetadata.
//
// The iterator is pull-based and single-threaded: Next blocks on a read
// from the underlying io.Reader, decodes at most one chunk, and returns.
// There is no backtracking; at most one Chunk is held in memory at a
// time.
type ChunkIterator struct {
	src *bufio.Reader
	ctx context.Context

	cur             *Chunk
	err             error
	done            bool
	metadata        []bsonraw.Document
	periodicMetrics []bsonraw.Document
}

// NewChunkIterator opens a pull-based iterator over r, an FTDC byte
// source (typically an *os.File).
func NewChunkIterator(ctx context.Context, r io.Reader) *ChunkIterator {
	return &ChunkIterator{
		src: bufio.NewReader(r),
		ctx: ctx,
	}
}

// Next advances to the next metric chunk, decoding it. It returns false
// when the source is exhausted, the context is cancelled, or a fatal
// error occurred; callers must check Err to distinguish clean end-of-file
// from failure.
func (it *ChunkIterator) Next() bool {
	if it.done {
		return false
	}
	for {
		if err := it.ctx.Err(); err != nil {
			it.err = fmt.Errorf("%w", ErrCancelled)
			it.done = true
			return false
		}

		doc, err := readFramingDocument(it.src)
		if err != nil {
			it.done = true
			if err == io.EOF {
				return false // clean end of file
			}
			it.err = err
			return false
		}

		switch doc.Kind {
		case DocMetricChunk:
			chunk, err := DecodeChunk(doc.Timestamp, doc.ChunkBytes)
			if err != nil {
				it.done = true
				it.err = err
				return false
			}
			it.cur = chunk
			return true

		case DocMetadata:
			it.metadata = append(it.metadata, doc.Payload)
			continue

		case DocPeriodicMetadata:
			it.periodicMetrics = append(it.periodicMetrics, doc.Payload)
			continue

		default:
			it.done = true
			it.err = fmt.Errorf("%w: %d", ErrUnknownDocumentType, doc.Kind)
			return false
		}
	}
}

// Chunk returns the chunk decoded by the most recent successful Next.
func (it *ChunkIterator) Chunk() *Chunk { return it.cur }

// Err returns the first error encountered, or nil on clean exhaustion.
func (it *ChunkIterator) Err() error { return it.err }

// Metadata returns every Metadata document's payload seen so far, in file
// order.
func (it *ChunkIterator) Metadata() []bsonraw.Document { return it.metadata }

// PeriodicMetadata returns every PeriodicMetadata document's payload seen
// so far, in file order. This repo does not interpret their contents
// (see DESIGN.md); callers that need to are handed the raw document.
func (it *ChunkIterator) PeriodicMetadata() []bsonraw.Document { return it.periodicMetrics }

// readFramingDocument reads and decodes one top-level BSON document. It
// returns (nil, io.EOF) only when not even the first byte of a new
// document was available, ErrTruncated when the 4-byte size field is
// incomplete, and ErrTruncatedInterim when the size field was read but
// the document body is cut short.
func readFramingDocument(src *bufio.Reader) (*framingHeader, error) {
	sizeBytes := make([]byte, 4)
	n, err := io.ReadFull(src, sizeBytes)
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, io.EOF // clean end of file
		}
		return nil, fmt.Errorf("%w: incomplete document size field", ErrTruncated)
	}

	docSize := binary.LittleEndian.Uint32(sizeBytes)
	if docSize < minDocSize {
		return nil, fmt.Errorf("%w: invalid document size %d", ErrTruncated, docSize)
	}
	if docSize > maxDocSize {
		return nil, fmt.Errorf("%w: document size %d exceeds sanity bound", ErrTruncated, docSize)
	}

	rest := make([]byte, docSize-4)
	if _, err := io.ReadFull(src, rest); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w", ErrTruncatedInterim)
		}
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	full := append(sizeBytes, rest...)
	doc, err := bsonraw.Decode(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBSON, err)
	}

	idEl, ok := doc.Lookup("_id")
	if !ok {
		return nil, fmt.Errorf("%w: framing document missing _id", ErrMalformedBSON)
	}
	ms, ok := idEl.Value.(int64)
	if !ok {
		return nil, fmt.Errorf("%w: _id is not a DateTime", ErrMalformedBSON)
	}
	ts := time.UnixMilli(ms).UTC()

	typeEl, ok := doc.Lookup("type")
	if !ok {
		return nil, fmt.Errorf("%w: framing document missing type", ErrMalformedBSON)
	}
	typeVal, ok := typeEl.Value.(int32)
	if !ok {
		return nil, fmt.Errorf("%w: type is not an Int32", ErrMalformedBSON)
	}
	kind := DocKind(typeVal)

	h := &framingHeader{Timestamp: ts, Kind: kind}

	switch kind {
	case DocMetricChunk:
		dataEl, ok := doc.Lookup("data")
		if !ok {
			return nil, fmt.Errorf("%w: metric chunk document missing data", ErrMalformedBSON)
		}
		bin, ok := dataEl.Value.(bsonraw.Binary)
		if !ok {
			return nil, fmt.Errorf("%w: data is not Binary", ErrMalformedBSON)
		}
		h.ChunkBytes = bin.Data

	case DocMetadata, DocPeriodicMetadata:
		docEl, ok := doc.Lookup("doc")
		if ok {
			if sub, ok := docEl.Value.(bsonraw.Document); ok {
				h.Payload = sub
			}
		}

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownDocumentType, typeVal)
	}

	return h, nil
}
