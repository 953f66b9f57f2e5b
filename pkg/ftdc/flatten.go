package ftdc

import (
	"math"
	"strings"

	"github.com/vjranagit/ftdc/pkg/bsonraw"
)

// Flatten performs the depth-first traversal that projects a BSON
// document to its ordered list of numeric metrics: MongoDB's own FTDC
// producer walks its reference document the same way, and the delta
// stream it writes is positionally keyed to this exact order and count.
// A missing or extra metric here desynchronizes every remaining metric
// in the chunk.
//
// Non-numeric BSON types (strings, binary, ObjectId, null, regex, ...)
// are skipped entirely: neither emitted as a metric nor recursed into.
// Embedded documents and arrays recurse, extending the path with the
// element's key (for arrays, its decimal index, which bsonraw already
// surfaces as the element Key). Timestamp values expand into two
// metrics: the seconds component under the unchanged path, then the
// increment component with a ".inc" suffix.
func Flatten(doc bsonraw.Document) ([]Metric, error) {
	var metrics []Metric
	flattenInto(doc, nil, &metrics)
	return metrics, nil
}

func flattenInto(doc bsonraw.Document, path []string, out *[]Metric) {
	for _, el := range doc {
		switch el.Type {
		case bsonraw.TypeDocument, bsonraw.TypeArray:
			sub := el.Value.(bsonraw.Document)
			flattenInto(sub, append(path, el.Key), out)

		case bsonraw.TypeDouble:
			v := el.Value.(float64)
			*out = append(*out, Metric{
				Path:    joinPath(path, el.Key),
				Type:    MetricDouble,
				initial: math.Float64bits(v),
			})

		case bsonraw.TypeInt32:
			v := el.Value.(int32)
			*out = append(*out, Metric{
				Path:    joinPath(path, el.Key),
				Type:    MetricInt32,
				initial: uint64(int64(v)),
			})

		case bsonraw.TypeInt64:
			v := el.Value.(int64)
			*out = append(*out, Metric{
				Path:    joinPath(path, el.Key),
				Type:    MetricInt64,
				initial: uint64(v),
			})

		case bsonraw.TypeDateTime:
			v := el.Value.(int64)
			*out = append(*out, Metric{
				Path:    joinPath(path, el.Key),
				Type:    MetricDateMillis,
				initial: uint64(v),
			})

		case bsonraw.TypeBoolean:
			v := el.Value.(bool)
			var bits uint64
			if v {
				bits = 1
			}
			*out = append(*out, Metric{
				Path:    joinPath(path, el.Key),
				Type:    MetricBool,
				initial: bits,
			})

		case bsonraw.TypeTimestamp:
			ts := el.Value.(bsonraw.Timestamp)
			base := joinPath(path, el.Key)
			*out = append(*out, Metric{
				Path:    base,
				Type:    MetricTimestampSeconds,
				initial: uint64(ts.Seconds),
			})
			*out = append(*out, Metric{
				Path:    base + ".inc",
				Type:    MetricTimestampIncrement,
				initial: uint64(ts.Increment),
			})

		default:
			// String, Binary, ObjectId, Null, Regex, JavaScript,
			// Decimal128, MinKey, MaxKey: not numeric, not a metric.
		}
	}
}

func joinPath(path []string, key string) string {
	if len(path) == 0 {
		return key
	}
	var b strings.Builder
	for _, p := range path {
		b.WriteString(p)
		b.WriteByte('.')
	}
	b.WriteString(key)
	return b.String()
}
