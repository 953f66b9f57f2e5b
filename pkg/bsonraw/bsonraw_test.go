package bsonraw

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// buildDocument assembles a minimal valid BSON document from already
// type-tagged element bytes, writing the length prefix and terminator.
func buildDocument(elements ...[]byte) []byte {
	body := []byte{}
	for _, el := range elements {
		body = append(body, el...)
	}
	body = append(body, 0x00)
	total := 4 + len(body)
	out := make([]byte, 4, total)
	binary.LittleEndian.PutUint32(out, uint32(total))
	out = append(out, body...)
	return out
}

func cstr(s string) []byte {
	return append([]byte(s), 0x00)
}

func elInt32(key string, v int32) []byte {
	buf := make([]byte, 0, 1+len(key)+1+4)
	buf = append(buf, byte(TypeInt32))
	buf = append(buf, cstr(key)...)
	v32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(v32, uint32(v))
	return append(buf, v32...)
}

func elDouble(key string, v float64) []byte {
	buf := make([]byte, 0, 1+len(key)+1+8)
	buf = append(buf, byte(TypeDouble))
	buf = append(buf, cstr(key)...)
	v64 := make([]byte, 8)
	binary.LittleEndian.PutUint64(v64, math.Float64bits(v))
	return append(buf, v64...)
}

func TestDecodeSimpleInt32(t *testing.T) {
	data := buildDocument(elInt32("x", 5))
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(doc) != 1 {
		t.Fatalf("expected 1 element, got %d", len(doc))
	}
	if doc[0].Key != "x" || doc[0].Type != TypeInt32 || doc[0].Value.(int32) != 5 {
		t.Errorf("unexpected element: %+v", doc[0])
	}
}

func TestDecodeDouble(t *testing.T) {
	data := buildDocument(elDouble("d", 1.5))
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if doc[0].Value.(float64) != 1.5 {
		t.Errorf("expected 1.5, got %v", doc[0].Value)
	}
}

func TestDecodeDuplicateKeysPreserved(t *testing.T) {
	data := buildDocument(elInt32("m", 3), elInt32("m", 4))
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(doc) != 2 {
		t.Fatalf("expected 2 elements (duplicates preserved), got %d", len(doc))
	}
	if doc[0].Value.(int32) != 3 || doc[1].Value.(int32) != 4 {
		t.Errorf("duplicate values not preserved in order: %+v", doc)
	}
}

func TestDecodeOrderPreserved(t *testing.T) {
	data := buildDocument(elInt32("b", 2), elInt32("a", 1), elInt32("c", 3))
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	keys := []string{doc[0].Key, doc[1].Key, doc[2].Key}
	want := []string{"b", "a", "c"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("order mismatch: got %v, want %v", keys, want)
		}
	}
}

func TestDecodeNestedDocument(t *testing.T) {
	inner := buildDocument(elInt32("current", 10))
	// Strip inner's own outer framing semantics: it's already a full
	// document, which is exactly the wire representation of an embedded
	// document value.
	outerElem := append([]byte{byte(TypeDocument)}, cstr("connections")...)
	outerElem = append(outerElem, inner...)
	data := buildDocument(outerElem)

	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if doc[0].Type != TypeDocument {
		t.Fatalf("expected nested document type")
	}
	sub := doc[0].Value.(Document)
	if len(sub) != 1 || sub[0].Key != "current" || sub[0].Value.(int32) != 10 {
		t.Errorf("unexpected nested contents: %+v", sub)
	}
}

func TestDecodeTimestamp(t *testing.T) {
	buf := []byte{byte(TypeTimestamp)}
	buf = append(buf, cstr("op")...)
	incSec := make([]byte, 8)
	binary.LittleEndian.PutUint32(incSec[0:4], 7)  // increment first on the wire
	binary.LittleEndian.PutUint32(incSec[4:8], 42) // then seconds
	buf = append(buf, incSec...)
	data := buildDocument(buf)

	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	ts := doc[0].Value.(Timestamp)
	if ts.Seconds != 42 || ts.Increment != 7 {
		t.Errorf("expected seconds=42 increment=7, got %+v", ts)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	data := buildDocument(elInt32("x", 5))
	// Corrupt the length prefix.
	binary.LittleEndian.PutUint32(data, uint32(len(data)+1))
	_, err := Decode(data)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeMissingTerminator(t *testing.T) {
	data := buildDocument(elInt32("x", 5))
	data[len(data)-1] = 0x01 // corrupt terminator
	_, err := Decode(data)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeUnsupportedType(t *testing.T) {
	buf := []byte{0x06} // UNDEFINED, not implemented
	buf = append(buf, cstr("x")...)
	data := buildDocument(buf)
	_, err := Decode(data)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for unsupported type, got %v", err)
	}
}

func TestDocumentLookupFirstWins(t *testing.T) {
	data := buildDocument(elInt32("type", 1), elInt32("type", 2))
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	el, ok := doc.Lookup("type")
	if !ok {
		t.Fatalf("expected lookup to find key")
	}
	if el.Value.(int32) != 1 {
		t.Errorf("expected first occurrence (1), got %v", el.Value)
	}
}
