package message

import (
	"bytes"
	"math"

	"github.com/wanglam/pbcore/schema"
)

// Clone returns a deep copy of m.
func Clone(m *Message) *Message {
	if m == nil {
		return nil
	}
	out := New(m.desc)
	for n, v := range m.fields {
		out.fields[n] = cloneValue(v)
	}
	if len(m.oneofs) > 0 {
		out.oneofs = make(map[*schema.Oneof]oneofValue, len(m.oneofs))
		for o, slot := range m.oneofs {
			out.oneofs[o] = oneofValue{field: slot.field, value: cloneValue(slot.value)}
		}
	}
	if len(m.ext) > 0 {
		out.ext = make(map[int32]interface{}, len(m.ext))
		for n, v := range m.ext {
			out.ext[n] = cloneValue(v)
		}
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case *Message:
		return Clone(t)
	case []byte:
		return append([]byte{}, t...)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, elem := range t {
			out[i] = cloneValue(elem)
		}
		return out
	case *Map:
		out := &Map{keyType: t.keyType, valueType: t.valueType, entries: make(map[string]*MapEntry, len(t.entries))}
		for k, e := range t.entries {
			out.entries[k] = &MapEntry{Key: e.Key, Value: cloneValue(e.Value)}
		}
		return out
	}
	return v
}

// Equal reports whether a and b are of the same type and hold the same
// field values. Unset fields and fields set to their default are not the
// same; NaN equals NaN.
func Equal(a, b *Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.desc != b.desc {
		return false
	}
	return equalFields(a, b) && equalFields(b, a)
}

func equalFields(a, b *Message) bool {
	equal := true
	a.Range(func(f *schema.Field, v interface{}) bool {
		other, ok := b.get(f)
		if !ok || !equalValue(v, other) {
			equal = false
		}
		return equal
	})
	return equal
}

func equalValue(a, b interface{}) bool {
	switch x := a.(type) {
	case *Message:
		y, ok := b.(*Message)
		return ok && Equal(x, y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case float32:
		y, ok := b.(float32)
		return ok && (x == y || math.IsNaN(float64(x)) && math.IsNaN(float64(y)))
	case float64:
		y, ok := b.(float64)
		return ok && (x == y || math.IsNaN(x) && math.IsNaN(y))
	case []interface{}:
		y, ok := b.([]interface{})
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equalValue(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Map:
		y, ok := b.(*Map)
		if !ok || len(x.entries) != len(y.entries) {
			return false
		}
		for k, e := range x.entries {
			other, ok := y.entries[k]
			if !ok || !equalValue(e.Value, other.Value) {
				return false
			}
		}
		return true
	}
	return a == b
}
