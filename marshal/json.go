package marshal

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/jsonffi/errors"
)

// decodeJSON parses one JSON document and normalizes its numbers.
func decodeJSON(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, errors.InvalidUTF8(data)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Decode(err, data)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Decode(errTrailing, data)
	}
	return normalize(v), nil
}

// decodeJSONInto parses one JSON document into out.
func decodeJSONInto(data []byte, out any) error {
	if !utf8.Valid(data) {
		return errors.InvalidUTF8(data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.Decode(io.ErrUnexpectedEOF, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Decode(err, data)
	}
	return nil
}

type trailingError struct{}

func (trailingError) Error() string { return "trailing data after JSON value" }

var errTrailing error = trailingError{}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case json.Number:
		return number(t)
	default:
		return v
	}
}

func number(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			if i >= math.MinInt && i <= math.MaxInt {
				return int(i)
			}
			return i
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return n
	}
	return f
}

// maxFloatDepth bounds the float rewrite at the decoder's nesting limit.
// Deeper values are encoded as is, which leaves cycle detection to
// encoding/json.
const maxFloatDepth = 10000

var (
	jsonMarshaler = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// jsonFloat encodes like encoding/json but keeps a fractional part on
// integral values, so 2.0 decodes as float64 rather than int.
type jsonFloat struct {
	f    float64
	bits int
}

func (j jsonFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(j.f) || math.IsInf(j.f, 0) {
		return nil, fmt.Errorf("unsupported float value %v", j.f)
	}
	format := byte('f')
	if abs := math.Abs(j.f); abs != 0 {
		if j.bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			j.bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	b := strconv.AppendFloat(nil, j.f, format, -1, j.bits)
	if bytes.IndexAny(b, ".eE") < 0 {
		b = append(b, '.', '0')
	}
	return b, nil
}

// preserveFloats returns v with float values wrapped in jsonFloat. Maps with
// string keys, slices and arrays are copied; other values are returned as is.
func preserveFloats(v any) any {
	return floats(v, 0)
}

func floats(v any, depth int) any {
	if depth > maxFloatDepth {
		return v
	}
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return jsonFloat{f: t, bits: 64}
	case float32:
		return jsonFloat{f: float64(t), bits: 32}
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = floats(e, depth+1)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = floats(e, depth+1)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()
	if rt.Implements(jsonMarshaler) || rt.Implements(textMarshaler) {
		return v
	}
	switch rv.Kind() {
	case reflect.Float32:
		return jsonFloat{f: rv.Float(), bits: 32}
	case reflect.Float64:
		return jsonFloat{f: rv.Float(), bits: 64}
	case reflect.Map:
		if rt.Key().Kind() != reflect.String || rv.IsNil() {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = floats(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rt.Elem().Kind() == reflect.Uint8 || rv.Kind() == reflect.Slice && rv.IsNil() {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = floats(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return v
		}
		switch rt.Elem().Kind() {
		case reflect.Float32, reflect.Float64, reflect.Map, reflect.Slice, reflect.Array:
			return floats(rv.Elem().Interface(), depth+1)
		}
	}
	return v
}
