// Package bsonraw is a minimal, order-and-duplicate-preserving BSON
// document decoder.
//
// Standard BSON libraries (including go.mongodb.org/mongo-driver/bson)
// decode documents into maps or map-like structures, which silently
// collapse duplicate sibling keys to their last occurrence and make no
// promise about iteration order. FTDC's chunk format depends on neither
// property being violated: MongoDB's own producer is observed to emit
// certain mount-related subtrees twice under identical keys, and the
// delta stream is encoded assuming every one of those duplicates
// produced its own metric column, in file order. A decoder backed by a
// map desynchronizes the rest of the file the moment it collapses one
// of those columns away.
package bsonraw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is wrapped with context and returned whenever a structural
// BSON invariant is violated.
var ErrMalformed = errors.New("bsonraw: malformed document")

// Type is a BSON element type tag, using the wire values from the BSON
// specification.
type Type byte

const (
	TypeDouble      Type = 0x01
	TypeString      Type = 0x02
	TypeDocument    Type = 0x03
	TypeArray       Type = 0x04
	TypeBinary      Type = 0x05
	TypeObjectID    Type = 0x07
	TypeBoolean     Type = 0x08
	TypeDateTime    Type = 0x09
	TypeNull        Type = 0x0A
	TypeRegex       Type = 0x0B
	TypeJavaScript  Type = 0x0D
	TypeInt32       Type = 0x10
	TypeTimestamp   Type = 0x11
	TypeInt64       Type = 0x12
	TypeDecimal128  Type = 0x13
	TypeMinKey      Type = 0xFF
	TypeMaxKey      Type = 0x7F
)

// Binary holds a BSON binary value: its subtype byte and raw payload.
type Binary struct {
	Subtype byte
	Data    []byte
}

// Regex holds a BSON regular-expression value.
type Regex struct {
	Pattern string
	Options string
}

// Timestamp holds a BSON internal replication timestamp: a 32-bit
// increment and a 32-bit seconds-since-epoch value. On the wire the
// increment is encoded first.
type Timestamp struct {
	Seconds   uint32
	Increment uint32
}

// ObjectID is an opaque 12-byte BSON ObjectId.
type ObjectID [12]byte

// Decimal128 is an opaque 16-byte BSON Decimal128, never interpreted as
// a metric by this package.
type Decimal128 [16]byte

// Element is one (key, typed value) pair from a BSON document, in the
// exact position it appeared in the wire encoding. Duplicate keys appear
// as distinct Elements.
type Element struct {
	Key   string
	Type  Type
	Value any // see the Type* constants for the concrete Go type per tag
}

// Document is an ordered sequence of Elements, preserving both file
// order and duplicate keys. It intentionally does not implement map-like
// lookup by default: FTDC's core correctness depends on walking every
// element, not looking one up.
type Document []Element

// Lookup returns the first Element with the given key, matching BSON's
// own "first occurrence wins" convention for singleton fields such as a
// framing document's "_id" or "type". It must not be used to read a
// chunk's reference document, where every duplicate is significant.
func (d Document) Lookup(key string) (Element, bool) {
	for _, el := range d {
		if el.Key == key {
			return el, true
		}
	}
	return Element{}, false
}

// Decode parses a complete length-prefixed BSON document from data.
func Decode(data []byte) (Document, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: document too short (%d bytes)", ErrMalformed, len(data))
	}
	size := int(int32(binary.LittleEndian.Uint32(data[:4])))
	if size != len(data) {
		return nil, fmt.Errorf("%w: length prefix %d disagrees with buffer length %d", ErrMalformed, size, len(data))
	}
	if data[len(data)-1] != 0x00 {
		return nil, fmt.Errorf("%w: final byte is not NUL", ErrMalformed)
	}

	doc, pos, err := decodeElements(data, 4)
	if err != nil {
		return nil, err
	}
	if pos != len(data)-1 {
		return nil, fmt.Errorf("%w: %d trailing bytes before terminator", ErrMalformed, len(data)-1-pos)
	}
	return doc, nil
}

// decodeElements reads elements starting at offset pos (just past a
// document's 4-byte size prefix) until the 0x00 terminator, returning the
// offset of that terminator byte.
func decodeElements(data []byte, pos int) (Document, int, error) {
	var doc Document
	for {
		if pos >= len(data) {
			return nil, 0, fmt.Errorf("%w: unexpected end of document", ErrMalformed)
		}
		tag := data[pos]
		if tag == 0x00 {
			return doc, pos, nil
		}
		pos++

		key, newPos, err := readCString(data, pos)
		if err != nil {
			return nil, 0, err
		}
		pos = newPos

		el, newPos, err := decodeValue(data, pos, Type(tag), key)
		if err != nil {
			return nil, 0, err
		}
		pos = newPos
		doc = append(doc, el)
	}
}

func readCString(data []byte, pos int) (string, int, error) {
	start := pos
	for pos < len(data) && data[pos] != 0x00 {
		pos++
	}
	if pos >= len(data) {
		return "", 0, fmt.Errorf("%w: C string missing trailing NUL", ErrMalformed)
	}
	return string(data[start:pos]), pos + 1, nil
}

// readString reads a BSON "string" value: an int32 byte length (including
// the trailing NUL) followed by UTF-8 bytes and the NUL.
func readString(data []byte, pos int) (string, int, error) {
	if pos+4 > len(data) {
		return "", 0, fmt.Errorf("%w: truncated string length", ErrMalformed)
	}
	n := int(int32(binary.LittleEndian.Uint32(data[pos : pos+4])))
	pos += 4
	if n < 1 || pos+n > len(data) {
		return "", 0, fmt.Errorf("%w: string length %d runs past buffer", ErrMalformed, n)
	}
	if data[pos+n-1] != 0x00 {
		return "", 0, fmt.Errorf("%w: string missing trailing NUL", ErrMalformed)
	}
	s := string(data[pos : pos+n-1])
	return s, pos + n, nil
}

func decodeValue(data []byte, pos int, tag Type, key string) (Element, int, error) {
	switch tag {
	case TypeDouble:
		if pos+8 > len(data) {
			return Element{}, 0, fmt.Errorf("%w: truncated double", ErrMalformed)
		}
		bits := binary.LittleEndian.Uint64(data[pos : pos+8])
		return Element{Key: key, Type: tag, Value: math.Float64frombits(bits)}, pos + 8, nil

	case TypeString, TypeJavaScript:
		s, newPos, err := readString(data, pos)
		if err != nil {
			return Element{}, 0, err
		}
		return Element{Key: key, Type: tag, Value: s}, newPos, nil

	case TypeDocument:
		sub, newPos, err := decodeSubDocument(data, pos)
		if err != nil {
			return Element{}, 0, err
		}
		return Element{Key: key, Type: tag, Value: sub}, newPos, nil

	case TypeArray:
		sub, newPos, err := decodeSubDocument(data, pos)
		if err != nil {
			return Element{}, 0, err
		}
		return Element{Key: key, Type: tag, Value: sub}, newPos, nil

	case TypeBinary:
		if pos+5 > len(data) {
			return Element{}, 0, fmt.Errorf("%w: truncated binary header", ErrMalformed)
		}
		n := int(int32(binary.LittleEndian.Uint32(data[pos : pos+4])))
		subtype := data[pos+4]
		pos += 5
		if n < 0 || pos+n > len(data) {
			return Element{}, 0, fmt.Errorf("%w: binary length %d runs past buffer", ErrMalformed, n)
		}
		buf := make([]byte, n)
		copy(buf, data[pos:pos+n])
		return Element{Key: key, Type: tag, Value: Binary{Subtype: subtype, Data: buf}}, pos + n, nil

	case TypeObjectID:
		if pos+12 > len(data) {
			return Element{}, 0, fmt.Errorf("%w: truncated ObjectId", ErrMalformed)
		}
		var id ObjectID
		copy(id[:], data[pos:pos+12])
		return Element{Key: key, Type: tag, Value: id}, pos + 12, nil

	case TypeBoolean:
		if pos+1 > len(data) {
			return Element{}, 0, fmt.Errorf("%w: truncated boolean", ErrMalformed)
		}
		return Element{Key: key, Type: tag, Value: data[pos] != 0}, pos + 1, nil

	case TypeDateTime:
		if pos+8 > len(data) {
			return Element{}, 0, fmt.Errorf("%w: truncated datetime", ErrMalformed)
		}
		ms := int64(binary.LittleEndian.Uint64(data[pos : pos+8]))
		return Element{Key: key, Type: tag, Value: ms}, pos + 8, nil

	case TypeNull, TypeMinKey, TypeMaxKey:
		return Element{Key: key, Type: tag, Value: nil}, pos, nil

	case TypeRegex:
		pattern, pos1, err := readCString(data, pos)
		if err != nil {
			return Element{}, 0, err
		}
		options, pos2, err := readCString(data, pos1)
		if err != nil {
			return Element{}, 0, err
		}
		return Element{Key: key, Type: tag, Value: Regex{Pattern: pattern, Options: options}}, pos2, nil

	case TypeInt32:
		if pos+4 > len(data) {
			return Element{}, 0, fmt.Errorf("%w: truncated int32", ErrMalformed)
		}
		v := int32(binary.LittleEndian.Uint32(data[pos : pos+4]))
		return Element{Key: key, Type: tag, Value: v}, pos + 4, nil

	case TypeTimestamp:
		if pos+8 > len(data) {
			return Element{}, 0, fmt.Errorf("%w: truncated timestamp", ErrMalformed)
		}
		inc := binary.LittleEndian.Uint32(data[pos : pos+4])
		sec := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		return Element{Key: key, Type: tag, Value: Timestamp{Seconds: sec, Increment: inc}}, pos + 8, nil

	case TypeInt64:
		if pos+8 > len(data) {
			return Element{}, 0, fmt.Errorf("%w: truncated int64", ErrMalformed)
		}
		v := int64(binary.LittleEndian.Uint64(data[pos : pos+8]))
		return Element{Key: key, Type: tag, Value: v}, pos + 8, nil

	case TypeDecimal128:
		if pos+16 > len(data) {
			return Element{}, 0, fmt.Errorf("%w: truncated decimal128", ErrMalformed)
		}
		var d Decimal128
		copy(d[:], data[pos:pos+16])
		return Element{Key: key, Type: tag, Value: d}, pos + 16, nil

	default:
		return Element{}, 0, fmt.Errorf("%w: unrecognized type 0x%02x for field %q", ErrMalformed, byte(tag), key)
	}
}

// decodeSubDocument decodes an embedded document or array, whose own
// 4-byte size prefix starts at pos, and must not run past the parent's
// buffer.
func decodeSubDocument(data []byte, pos int) (Document, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("%w: truncated nested document size", ErrMalformed)
	}
	size := int(int32(binary.LittleEndian.Uint32(data[pos : pos+4])))
	if size < 5 || pos+size > len(data) {
		return nil, 0, fmt.Errorf("%w: nested document size %d runs past parent", ErrMalformed, size)
	}
	if data[pos+size-1] != 0x00 {
		return nil, 0, fmt.Errorf("%w: nested document final byte is not NUL", ErrMalformed)
	}

	sub, endPos, err := decodeElements(data, pos+4)
	if err != nil {
		return nil, 0, err
	}
	if endPos != pos+size-1 {
		return nil, 0, fmt.Errorf("%w: nested document has %d trailing bytes", ErrMalformed, pos+size-1-endPos)
	}
	return sub, pos + size, nil
}
