package ferret

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Properties is the open key/value map carried by aggregate state, events
// and commands.
//
// Event payloads are kept in normal form (see Normalize), which is also what
// every serializer decodes to, so a reducer that copies a payload value into
// the state builds the same state from new events as from a replay.
type Properties map[string]any

// Clone returns a shallow copy of p. A nil map clones to an empty one.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with every entry of other set on top.
func (p Properties) Merge(other Properties) Properties {
	out := make(Properties, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Normalize returns a copy of p in normal form: integral numbers are int64,
// other numbers float64, maps with string keys map[string]any and slices
// []any, recursively; nil maps and slices become nil. Integral floats within
// ±2^53 become int64, since no codec keeps 5.0 apart from 5. Byte slices and
// structs are left as they are.
func (p Properties) Normalize() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue returns v in the normal form described by Normalize.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int64:
		return v
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return x.String()
	case Properties:
		if x == nil {
			return nil
		}
		return map[string]any(x.Normalize())
	case map[string]any:
		if x == nil {
			return nil
		}
		return map[string]any(Properties(x).Normalize())
	case []byte:
		return v
	case []any:
		if x == nil {
			return nil
		}
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = NormalizeValue(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return normalizeUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = NormalizeValue(iter.Value().Interface())
		}
		return out
	default:
		return v
	}
}

func normalizeUint(n uint64) any {
	if n <= math.MaxInt64 {
		return int64(n)
	}
	return float64(n)
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// Has reports whether key is set.
func (p Properties) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the value of key rendered as a string, or "" if it is unset.
func (p Properties) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return formatValue(v)
}

// Int returns the value of key as an int64, or 0 if it is unset or not numeric.
func (p Properties) Int(key string) int64 {
	n, _ := toInt64(p[key])
	return n
}

// Float returns the value of key as a float64, or 0 if it is unset or not numeric.
func (p Properties) Float(key string) float64 {
	f, _ := toFloat64(p[key])
	return f
}

// Bool returns the value of key as a bool, or false if it is unset.
func (p Properties) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// formatValue renders v the way it appears in a stream ID.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return formatValue(float64(x))
	default:
		return fmt.Sprint(v)
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case float32:
		return int64(x), true
	case float64:
		return int64(x), true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		return int64(f), err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		n, ok := toInt64(v)
		return float64(n), ok
	}
}
