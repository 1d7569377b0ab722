// Package flatten collapses nested record structures into single-level
// key/value maps for tabular export.
package flatten

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Record is a flattened record: key paths mapped to scalar values or
// the JSON text of array values.
type Record map[string]any

// Flatten collapses record into a single-level map. Nested maps are
// descended with "{prefix}_{key}" paths, arrays are kept as their
// compact JSON encoding (never expanded into per-element columns), and
// nil values become the empty string.
//
// Keys are visited in sorted order, which fixes the collision policy:
// when {a: {b: 1}, a_b: 2} produces the key "a_b" twice, the literal
// "a_b" entry sorts after the "a" descent and its value wins. The
// merge is right-biased in general: whichever key path is flattened
// later overwrites an earlier one.
func Flatten(record map[string]any, prefix string) Record {
	out := make(Record, len(record))
	walk(out, record, prefix)
	return out
}

func walk(out Record, record map[string]any, prefix string) {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "_" + k
		}
		flattenValue(out, name, record[k])
	}
}

func flattenValue(out Record, name string, v any) {
	switch tv := v.(type) {
	case nil:
		out[name] = ""
	case map[string]any:
		walk(out, tv, name)
	case []any:
		out[name] = encodeArray(tv)
	case string, bool, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		out[name] = tv
	default:
		// Records built in Go rather than decoded from JSON can carry
		// typed maps and slices; fold them into the same union.
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Map:
			if m, ok := stringKeyMap(rv); ok {
				walk(out, m, name)
				return
			}
			out[name] = fmt.Sprint(v)
		case reflect.Slice, reflect.Array:
			out[name] = encodeArray(v)
		case reflect.Ptr, reflect.Interface:
			if rv.IsNil() {
				out[name] = ""
				return
			}
			flattenValue(out, name, rv.Elem().Interface())
		default:
			out[name] = tv
		}
	}
}

func stringKeyMap(rv reflect.Value) (map[string]any, bool) {
	if rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

func encodeArray(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
