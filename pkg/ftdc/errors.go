package ftdc

import "errors"

// Sentinel errors for the FTDC decoder's error taxonomy. Each is wrapped
// with fmt.Errorf("%w: ...", ErrX, ...) at its point of origin so callers
// can match with errors.Is while still getting positional context.
var (
	// ErrTruncated means the byte source ended mid-structure: a partial
	// BSON document, a partial varint, or a short compressed frame.
	ErrTruncated = errors.New("ftdc: truncated")

	// ErrTruncatedInterim means the byte source ended inside a framing
	// document whose 4-byte size field was read in full, as happens with
	// a live producer's interim file. The reader stops there; samples from
	// earlier chunks have already been returned.
	ErrTruncatedInterim = errors.New("ftdc: truncated at document boundary (interim file)")

	// ErrMalformedBSON wraps a structural BSON violation (see package
	// bsonraw). Kept as a distinct sentinel at this layer so callers
	// depending only on package ftdc don't need to import bsonraw to
	// match on it.
	ErrMalformedBSON = errors.New("ftdc: malformed BSON")

	// ErrUnknownDocumentType means a framing document's "type" field was
	// not 0, 1, or 2.
	ErrUnknownDocumentType = errors.New("ftdc: unknown document type")

	// ErrFrameSizeMismatch means a chunk's declared uncompressed size
	// disagreed with the actual inflated length.
	ErrFrameSizeMismatch = errors.New("ftdc: frame size mismatch")

	// ErrDecompressionFailure means the deflate stream itself was
	// invalid.
	ErrDecompressionFailure = errors.New("ftdc: decompression failure")

	// ErrVarintOverflow means a varint in the delta stream exceeded the
	// 10-byte maximum encoding of a 64-bit value.
	ErrVarintOverflow = errors.New("ftdc: varint overflow")

	// ErrSchemaMismatch means the flattened reference document's metric
	// count did not equal the chunk header's metrics_count.
	ErrSchemaMismatch = errors.New("ftdc: schema mismatch")

	// ErrTrailingBytes means the delta stream had unconsumed bytes after
	// every expected delta was decoded.
	ErrTrailingBytes = errors.New("ftdc: trailing bytes in delta stream")

	// ErrCancelled means the caller's context was cancelled.
	ErrCancelled = errors.New("ftdc: cancelled")
)
