// Package csvenc renders sequences of trial records as delimited text.
package csvenc

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/studykit/relay/internal/flatten"
)

// Encode turns a sequence of records into a CSV document. Every record
// is flattened first; the header row is the sorted, de-duplicated
// union of all flattened keys across all records, so heterogeneous
// record shapes line up with empty fields where a key is absent.
// Returns "" for an empty or non-sequence input. Rows are joined with
// newlines, fields with commas; no trailing newline is emitted.
func Encode(records any) string {
	seq, ok := Sequence(records)
	if !ok || len(seq) == 0 {
		return ""
	}

	flattened := make([]flatten.Record, 0, len(seq))
	keySet := make(map[string]struct{})
	for _, r := range seq {
		fr := flatten.Flatten(asRecord(r), "")
		flattened = append(flattened, fr)
		for k := range fr {
			keySet[k] = struct{}{}
		}
	}

	headers := make([]string, 0, len(keySet))
	for k := range keySet {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	rows := make([]string, 0, len(flattened)+1)
	fields := make([]string, len(headers))
	for i, h := range headers {
		fields[i] = escape(h)
	}
	rows = append(rows, strings.Join(fields, ","))

	for _, fr := range flattened {
		for i, h := range headers {
			v, ok := fr[h]
			if !ok {
				fields[i] = ""
				continue
			}
			fields[i] = formatField(v)
		}
		rows = append(rows, strings.Join(fields, ","))
	}

	return strings.Join(rows, "\n")
}

// Sequence reports whether v is a sequence and returns it as []any.
// []byte does not count: it is a string in disguise.
func Sequence(v any) ([]any, bool) {
	switch tv := v.(type) {
	case []any:
		return tv, true
	case []byte, string, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	seq := make([]any, rv.Len())
	for i := range seq {
		seq[i] = rv.Index(i).Interface()
	}
	return seq, true
}

// asRecord coerces a sequence element to a map for flattening. A
// non-map element has no keys and flattens to an empty row.
func asRecord(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return m
	}
	return nil
}

func formatField(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return escape(tv)
	default:
		return fmt.Sprint(tv)
	}
}

// escape quote-wraps a string containing a comma, double quote or
// newline, doubling any inner quotes.
func escape(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
