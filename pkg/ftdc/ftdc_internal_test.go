package ftdc

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/klauspost/compress/zlib"
)

// Test helpers for constructing raw BSON bytes and compressed FTDC chunk
// payloads, mirroring the wire shapes documented in SPEC_FULL.md §4.

func cstr(s string) []byte {
	return append([]byte(s), 0x00)
}

func bsonDoc(elements ...[]byte) []byte {
	body := []byte{}
	for _, el := range elements {
		body = append(body, el...)
	}
	body = append(body, 0x00)
	total := 4 + len(body)
	out := make([]byte, 4, total)
	binary.LittleEndian.PutUint32(out, uint32(total))
	return append(out, body...)
}

func bsonInt32(key string, v int32) []byte {
	buf := append([]byte{0x10}, cstr(key)...)
	b4 := make([]byte, 4)
	binary.LittleEndian.PutUint32(b4, uint32(v))
	return append(buf, b4...)
}

func bsonDouble(key string, v float64) []byte {
	buf := append([]byte{0x01}, cstr(key)...)
	b8 := make([]byte, 8)
	binary.LittleEndian.PutUint64(b8, math.Float64bits(v))
	return append(buf, b8...)
}

func bsonInt64(key string, v int64) []byte {
	buf := append([]byte{0x12}, cstr(key)...)
	b8 := make([]byte, 8)
	binary.LittleEndian.PutUint64(b8, uint64(v))
	return append(buf, b8...)
}

func bsonTimestamp(key string, seconds, increment uint32) []byte {
	buf := append([]byte{0x11}, cstr(key)...)
	b8 := make([]byte, 8)
	binary.LittleEndian.PutUint32(b8[0:4], increment)
	binary.LittleEndian.PutUint32(b8[4:8], seconds)
	return append(buf, b8...)
}

// varintBytes LEB128-encodes v for embedding directly in a delta-stream
// test fixture.
func varintBytes(v uint64) []byte {
	var out []byte
	for v >= 0x80 {
		out = append(out, byte(v)|0x80)
		v >>= 7
	}
	return append(out, byte(v))
}

// buildChunkPayload assembles a complete MetricChunk "data" binary blob:
// 4-byte uncompressed size + zlib(reference doc + counts + delta bytes).
func buildChunkPayload(refDoc []byte, metricsCount, deltasCount uint32, deltaBytes []byte) []byte {
	inner := append([]byte{}, refDoc...)
	counts := make([]byte, 8)
	binary.LittleEndian.PutUint32(counts[0:4], metricsCount)
	binary.LittleEndian.PutUint32(counts[4:8], deltasCount)
	inner = append(inner, counts...)
	inner = append(inner, deltaBytes...)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(inner); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}

	out := make([]byte, 4, 4+compressed.Len())
	binary.LittleEndian.PutUint32(out, uint32(len(inner)))
	return append(out, compressed.Bytes()...)
}
