package ftdc

import (
	"testing"

	"github.com/vjranagit/ftdc/pkg/bsonraw"
)

func decodeOrFail(t *testing.T, raw []byte) bsonraw.Document {
	t.Helper()
	doc, err := bsonraw.Decode(raw)
	if err != nil {
		t.Fatalf("bsonraw.Decode: %v", err)
	}
	return doc
}

func TestFlattenScalarTypes(t *testing.T) {
	raw := bsonDoc(
		bsonInt32("a", 100),
		bsonDouble("b", 3.5),
	)
	doc := decodeOrFail(t, raw)

	metrics, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("got %d metrics, want 2", len(metrics))
	}
	if metrics[0].Path != "a" || metrics[0].Type != MetricInt32 {
		t.Errorf("metrics[0] = %+v", metrics[0])
	}
	if metrics[1].Path != "b" || metrics[1].Type != MetricDouble {
		t.Errorf("metrics[1] = %+v", metrics[1])
	}
}

func TestFlattenNestedDocument(t *testing.T) {
	nested := bsonDoc(bsonInt32("c", 1))
	outer := append([]byte{0x03}, cstr("a")...)
	outer = append(outer, nested...)
	raw := bsonDoc(outer)

	doc := decodeOrFail(t, raw)
	metrics, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(metrics) != 1 || metrics[0].Path != "a.c" {
		t.Fatalf("metrics = %+v", metrics)
	}
}

func TestFlattenTimestampExpandsToTwoMetrics(t *testing.T) {
	raw := bsonDoc(bsonTimestamp("ts", 42, 7))
	doc := decodeOrFail(t, raw)

	metrics, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("got %d metrics, want 2", len(metrics))
	}
	if metrics[0].Path != "ts" || metrics[0].Type != MetricTimestampSeconds || metrics[0].initial != 42 {
		t.Errorf("metrics[0] = %+v", metrics[0])
	}
	if metrics[1].Path != "ts.inc" || metrics[1].Type != MetricTimestampIncrement || metrics[1].initial != 7 {
		t.Errorf("metrics[1] = %+v", metrics[1])
	}
}

func TestFlattenSkipsNonNumericTypes(t *testing.T) {
	strEl := append([]byte{0x02}, cstr("s")...)
	strVal := []byte{6, 0, 0, 0}
	strVal = append(strVal, []byte("hello")...)
	strVal = append(strVal, 0x00)
	strEl = append(strEl, strVal...)

	raw := bsonDoc(strEl, bsonInt32("n", 5))
	doc := decodeOrFail(t, raw)

	metrics, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(metrics) != 1 || metrics[0].Path != "n" {
		t.Fatalf("metrics = %+v, want only 'n'", metrics)
	}
}

func TestFlattenEmptyDocumentYieldsNoMetrics(t *testing.T) {
	doc := decodeOrFail(t, bsonDoc())
	metrics, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(metrics) != 0 {
		t.Fatalf("got %d metrics, want 0", len(metrics))
	}
}
