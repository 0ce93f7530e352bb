package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/wanglam/pbcore/schema"
)

// checkField verifies that v has the canonical Go type for f.
func checkField(f *schema.Field, v interface{}) error {
	switch {
	case f.IsMap():
		mp, ok := v.(*Map)
		if !ok {
			return fmt.Errorf("expected *message.Map, got %T", v)
		}
		if mp.keyType != f.Type.MapKey.PrimitiveType {
			return fmt.Errorf("map key type %s does not match %s", mp.keyType, f.Type.MapKey.PrimitiveType)
		}
		if !sameValueType(mp.valueType, f.Type.MapValue) {
			return fmt.Errorf("map value type %s does not match %s", valueTypeName(mp.valueType), valueTypeName(f.Type.MapValue))
		}
		return nil
	case f.IsRepeated():
		list, ok := v.([]interface{})
		if !ok {
			return fmt.Errorf("expected []interface{}, got %T", v)
		}
		for i, elem := range list {
			if err := checkValue(&f.Type, elem); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	}
	return checkValue(&f.Type, v)
}

func sameValueType(a, b *schema.FieldType) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Kind == b.Kind && a.PrimitiveType == b.PrimitiveType &&
		a.Message == b.Message && a.Enum == b.Enum
}

func valueTypeName(t *schema.FieldType) string {
	switch {
	case t == nil:
		return "<nil>"
	case t.Message != nil:
		return t.Message.FullName
	case t.Enum != nil:
		return t.Enum.FullName
	}
	return string(t.PrimitiveType)
}

// checkValue verifies that v has the canonical Go type for one value of ft.
func checkValue(ft *schema.FieldType, v interface{}) error {
	switch ft.Kind {
	case schema.KindMessage, schema.KindGroup:
		sub, ok := v.(*Message)
		if !ok {
			return fmt.Errorf("expected *message.Message, got %T", v)
		}
		if sub.desc != ft.Message {
			return fmt.Errorf("expected message %s, got %s", ft.Message.FullName, sub.desc.FullName)
		}
		return nil
	case schema.KindEnum:
		if _, ok := v.(int32); !ok {
			return fmt.Errorf("expected int32 enum number, got %T", v)
		}
		return nil
	case schema.KindPrimitive:
		return checkPrimitive(ft.PrimitiveType, v)
	}
	return fmt.Errorf("unsupported field kind %s", ft.Kind)
}

func checkPrimitive(t schema.PrimitiveType, v interface{}) error {
	var ok bool
	switch t {
	case schema.TypeInt32, schema.TypeSint32, schema.TypeSfixed32:
		_, ok = v.(int32)
	case schema.TypeUint32, schema.TypeFixed32:
		_, ok = v.(uint32)
	case schema.TypeInt64, schema.TypeSint64, schema.TypeSfixed64:
		_, ok = v.(int64)
	case schema.TypeUint64, schema.TypeFixed64:
		_, ok = v.(uint64)
	case schema.TypeFloat:
		_, ok = v.(float32)
	case schema.TypeDouble:
		_, ok = v.(float64)
	case schema.TypeBool:
		_, ok = v.(bool)
	case schema.TypeString:
		_, ok = v.(string)
	case schema.TypeBytes:
		_, ok = v.([]byte)
	default:
		return fmt.Errorf("unknown primitive type %q", t)
	}
	if !ok {
		return fmt.Errorf("expected %s, got %T", canonicalTypeName(t), v)
	}
	return nil
}

func canonicalTypeName(t schema.PrimitiveType) string {
	switch t {
	case schema.TypeInt32, schema.TypeSint32, schema.TypeSfixed32:
		return "int32"
	case schema.TypeUint32, schema.TypeFixed32:
		return "uint32"
	case schema.TypeInt64, schema.TypeSint64, schema.TypeSfixed64:
		return "int64"
	case schema.TypeUint64, schema.TypeFixed64:
		return "uint64"
	case schema.TypeFloat:
		return "float32"
	case schema.TypeDouble:
		return "float64"
	case schema.TypeBytes:
		return "[]byte"
	}
	return string(t)
}

// isDefault reports whether v equals the field's default value.
func isDefault(f *schema.Field, v interface{}) bool {
	d := f.Default()
	if b, ok := v.([]byte); ok {
		db, _ := d.([]byte)
		return bytes.Equal(b, db)
	}
	// -0 compares equal to 0 but is a distinct value on the wire.
	switch n := v.(type) {
	case float32:
		dn, _ := d.(float32)
		return n == dn && math.Signbit(float64(n)) == math.Signbit(float64(dn))
	case float64:
		dn, _ := d.(float64)
		return n == dn && math.Signbit(n) == math.Signbit(dn)
	}
	return v == d
}

// Helpers to coerce loosely typed inputs to integers (accept exponent/float
// forms if integral)
func coerceToInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d overflows int64", t)
		}
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d overflows int64", t)
		}
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case json.Number:
		// Try integer first
		if iv, err := t.Int64(); err == nil {
			return iv, nil
		}
		return integralFloat(t.String())
	case float64:
		return integralFromFloat(t)
	case float32:
		return integralFromFloat(float64(t))
	case string:
		// allow explicit integer strings
		if strings.ContainsAny(t, ".eE") {
			return integralFloat(t)
		}
		return strconv.ParseInt(strings.TrimSpace(t), 0, 64)
	case map[string]interface{}:
		bits, err := longBits(t)
		return int64(bits), err
	default:
		return 0, fmt.Errorf("expected integer-like, got %T", v)
	}
}

func coerceToUint64(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case uint64:
		return t, nil
	case uint32:
		return uint64(t), nil
	case uint:
		return uint64(t), nil
	case uint16:
		return uint64(t), nil
	case uint8:
		return uint64(t), nil
	case json.Number:
		if uv, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return uv, nil
		}
		iv, err := integralFloat(t.String())
		if err != nil || iv < 0 {
			return 0, fmt.Errorf("non-integer numeric for unsigned field")
		}
		return uint64(iv), nil
	case string:
		s := strings.TrimSpace(t)
		if !strings.ContainsAny(s, ".eE") {
			return strconv.ParseUint(s, 0, 64)
		}
		iv, err := integralFloat(s)
		if err != nil || iv < 0 {
			return 0, fmt.Errorf("non-integer numeric for unsigned field")
		}
		return uint64(iv), nil
	case map[string]interface{}:
		return longBits(t)
	default:
		iv, err := coerceToInt64(v)
		if err != nil {
			return 0, fmt.Errorf("expected unsigned-integer-like, got %T", v)
		}
		if iv < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned field", iv)
		}
		return uint64(iv), nil
	}
}

func integralFloat(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return integralFromFloat(f)
}

func integralFromFloat(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("non-integer numeric for integer field")
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("numeric %g overflows int64", f)
	}
	return int64(f), nil
}

// longBits reads the {low, high} object form of a 64-bit integer: two 32-bit
// halves, low first.
func longBits(obj map[string]interface{}) (uint64, error) {
	low, okLow := obj["low"]
	high, okHigh := obj["high"]
	if !okLow || !okHigh {
		return 0, fmt.Errorf("long object needs low and high")
	}
	lo, err := coerceToInt64(low)
	if err != nil {
		return 0, err
	}
	hi, err := coerceToInt64(high)
	if err != nil {
		return 0, err
	}
	return uint64(uint32(lo)) | uint64(uint32(hi))<<32, nil
}

func coerceToFloat64(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case json.Number:
		return strconv.ParseFloat(t.String(), 64)
	case string:
		switch strings.TrimSpace(t) {
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	}
	if iv, err := coerceToInt64(v); err == nil {
		return float64(iv), nil
	}
	if uv, err := coerceToUint64(v); err == nil {
		return float64(uv), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

// isInteger reports whether v is a Go integer or an integral number.
func isInteger(v interface{}) bool {
	switch t := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return t == math.Trunc(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t) == math.Trunc(float64(t)) && !math.IsInf(float64(t), 0)
	case json.Number:
		_, err := coerceToInt64(t)
		if err == nil {
			return true
		}
		_, err = coerceToUint64(t)
		return err == nil
	}
	return false
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

// asSlice returns the elements of any Go slice or array.
func asSlice(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []byte, string:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asObject returns the entries of a plain object: a Go map whose keys print
// as strings.
func asObject(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
	}
	return out, true
}
