package sink

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compressor compresses the two columns a sink block is built from: a
// timestamp column and a value column. Values are the raw uint64 bit
// patterns ftdc.Chunk.Matrix stores, so the same XOR-delta scheme
// applies uniformly whether the origin metric was a double, an int64,
// or a bool: XOR between consecutive samples of the same metric is
// usually near zero regardless of origin type, which is what lets zstd
// compress the result well.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a compressor at the given level (1=fastest,
// 4=best compression).
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("sink: create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("sink: create zstd decoder: %w", err)
	}
	return &Compressor{encoder: encoder, decoder: decoder}, nil
}

// CompressTimestamps delta-of-delta encodes timestamps (seconds since
// epoch) and compresses the result.
func (c *Compressor) CompressTimestamps(timestamps []int64) ([]byte, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, timestamps[0]); err != nil {
		return nil, err
	}

	var prevDelta int64
	for i := 1; i < len(timestamps); i++ {
		delta := timestamps[i] - timestamps[i-1]
		deltaOfDelta := delta - prevDelta
		if err := binary.Write(buf, binary.LittleEndian, deltaOfDelta); err != nil {
			return nil, err
		}
		prevDelta = delta
	}

	return c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len())), nil
}

// DecompressTimestamps reverses CompressTimestamps.
func (c *Compressor) DecompressTimestamps(data []byte, count int) ([]int64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("sink: decompress timestamps: %w", err)
	}

	buf := bytes.NewReader(decompressed)
	timestamps := make([]int64, count)
	if err := binary.Read(buf, binary.LittleEndian, &timestamps[0]); err != nil {
		return nil, err
	}

	var prevDelta int64
	for i := 1; i < count; i++ {
		var deltaOfDelta int64
		if err := binary.Read(buf, binary.LittleEndian, &deltaOfDelta); err != nil {
			return nil, err
		}
		delta := deltaOfDelta + prevDelta
		timestamps[i] = timestamps[i-1] + delta
		prevDelta = delta
	}
	return timestamps, nil
}

// CompressValues XOR-encodes a column of raw metric bit patterns and
// compresses the result.
func (c *Compressor) CompressValues(values []uint64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, values[0]); err != nil {
		return nil, err
	}

	prev := values[0]
	for i := 1; i < len(values); i++ {
		xored := values[i] ^ prev
		if err := binary.Write(buf, binary.LittleEndian, xored); err != nil {
			return nil, err
		}
		prev = values[i]
	}

	return c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len())), nil
}

// DecompressValues reverses CompressValues.
func (c *Compressor) DecompressValues(data []byte, count int) ([]uint64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("sink: decompress values: %w", err)
	}

	buf := bytes.NewReader(decompressed)
	values := make([]uint64, count)
	var first uint64
	if err := binary.Read(buf, binary.LittleEndian, &first); err != nil {
		return nil, err
	}
	values[0] = first

	prev := first
	for i := 1; i < count; i++ {
		var xored uint64
		if err := binary.Read(buf, binary.LittleEndian, &xored); err != nil {
			return nil, err
		}
		values[i] = xored ^ prev
		prev = values[i]
	}
	return values, nil
}

// Close releases the compressor's encoder/decoder resources.
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
