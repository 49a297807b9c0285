package rest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// pair is one flattened key=value entry
type pair struct {
	key   string
	value string
}

// EncodeQuery serializes params using the bracket convention for nested
// structures, e.g. fields[TITLE]=x&fields[STAGE_ID]=y&select[0]=ID.
// The same bytes are produced for a standalone call body and for the query
// part of a batch sub-command.
func EncodeQuery(params Params) string {
	pairs := flattenParams(params)
	if len(pairs) == 0 {
		return ""
	}

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// BuildCommand renders a batch sub-command: method?query
func BuildCommand(method string, params Params) string {
	query := EncodeQuery(params)
	if query == "" {
		return method
	}
	return method + "?" + query
}

// describeParams renders params as "k=v, k2=v2" without escaping
func describeParams(params Params) string {
	pairs := flattenParams(params)
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.key + "=" + p.value
	}
	return strings.Join(parts, ", ")
}

func flattenParams(params Params) []pair {
	var pairs []pair
	for _, p := range params {
		pairs = appendValue(pairs, p.Key, p.Value)
	}
	return pairs
}

// appendValue flattens value under prefix and appends the resulting pairs
func appendValue(pairs []pair, prefix string, value interface{}) []pair {
	switch v := value.(type) {
	case nil:
		return pairs
	case Params:
		for _, p := range v {
			pairs = appendValue(pairs, prefix+"["+p.Key+"]", p.Value)
		}
		return pairs
	case string:
		return append(pairs, pair{prefix, v})
	case bool:
		if v {
			return append(pairs, pair{prefix, "1"})
		}
		return append(pairs, pair{prefix, "0"})
	case int:
		return append(pairs, pair{prefix, strconv.Itoa(v)})
	case int64:
		return append(pairs, pair{prefix, strconv.FormatInt(v, 10)})
	case float64:
		return append(pairs, pair{prefix, strconv.FormatFloat(v, 'f', -1, 64)})
	case json.Number:
		return append(pairs, pair{prefix, v.String()})
	case time.Time:
		return append(pairs, pair{prefix, v.Format(time.RFC3339)})
	case fmt.Stringer:
		return append(pairs, pair{prefix, v.String()})
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return pairs
		}
		return appendValue(pairs, prefix, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return pairs
		}
		for i := 0; i < rv.Len(); i++ {
			pairs = appendValue(pairs, prefix+"["+strconv.Itoa(i)+"]", rv.Index(i).Interface())
		}
		return pairs
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		index := make(map[string]reflect.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, k)
			index[k] = iter.Value()
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = appendValue(pairs, prefix+"["+k+"]", index[k].Interface())
		}
		return pairs
	case reflect.Bool:
		return appendValue(pairs, prefix, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return append(pairs, pair{prefix, strconv.FormatInt(rv.Int(), 10)})
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return append(pairs, pair{prefix, strconv.FormatUint(rv.Uint(), 10)})
	case reflect.Float32:
		return append(pairs, pair{prefix, strconv.FormatFloat(rv.Float(), 'f', -1, 32)})
	case reflect.String:
		return append(pairs, pair{prefix, rv.String()})
	default:
		return append(pairs, pair{prefix, fmt.Sprint(value)})
	}
}
