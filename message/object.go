package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/wanglam/pbcore/schema"
)

// LongFormat selects how ToObject renders 64-bit integers.
type LongFormat int

const (
	LongsNative LongFormat = iota // int64 / uint64
	LongsString                   // decimal string
	LongsNumber                   // float64, lossy above 2^53
)

// EnumFormat selects how ToObject renders enum values.
type EnumFormat int

const (
	EnumsNumber EnumFormat = iota // int32
	EnumsString                   // value name, the number when unnamed
)

// BytesFormat selects how ToObject renders bytes fields.
type BytesFormat int

const (
	BytesNative BytesFormat = iota // []byte
	BytesBase64                    // standard base64 string
	BytesArray                     // []interface{} of ints
)

// ObjectOptions controls ToObject. The zero value emits only set fields
// with native Go values.
type ObjectOptions struct {
	Defaults  bool // emit unset scalar fields with their default
	Arrays    bool // emit unset repeated fields as empty lists
	Objects   bool // emit unset map fields as empty objects
	Oneofs    bool // emit the name of the active member under each oneof name
	Longs     LongFormat
	Enums     EnumFormat
	Bytes     BytesFormat
	CamelCase bool // key regular fields by JSON name instead of declared name
}

// FromObject builds a message of type desc from a plain object. Keys may be
// declared names, JSON names or extension full names; unknown keys are
// ignored and nil values count as absent. Values are coerced loosely:
// numeric strings and integral floats for integers, enum names or numbers,
// base64 strings or byte lists for bytes, {low, high} objects for 64-bit
// integers.
func FromObject(desc *schema.Message, obj map[string]interface{}) (*Message, error) {
	return fromObject(desc, obj, "")
}

func fromObject(desc *schema.Message, obj map[string]interface{}, path string) (*Message, error) {
	m := New(desc)

	// sorted keys keep error reporting deterministic
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := obj[key]
		if v == nil {
			continue
		}
		f := desc.FieldByName(key)
		if f == nil {
			f = desc.ExtensionByName(key)
		}
		if f == nil {
			continue
		}
		fieldPath := joinPath(path, f.Key())

		if o := f.OneofGroup(); o != nil {
			if active, ok := m.oneofs[o]; ok && active.field != f {
				return nil, invalid(joinPath(path, o.Name), "multiple values")
			}
		}

		value, err := fromField(f, v, fieldPath)
		if err != nil {
			return nil, err
		}
		m.set(f, value)
	}
	return m, nil
}

func fromField(f *schema.Field, v interface{}, path string) (interface{}, error) {
	switch {
	case f.IsMap():
		return fromMap(f, v, path)
	case f.IsRepeated():
		list, ok := asSlice(v)
		if !ok {
			return nil, invalid(path, "array expected")
		}
		out := make([]interface{}, 0, len(list))
		for _, elem := range list {
			value, err := fromValue(&f.Type, elem, path)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	}
	return fromValue(&f.Type, v, path)
}

func fromMap(f *schema.Field, v interface{}, path string) (interface{}, error) {
	mp := NewMap(f)
	if src, ok := v.(*Map); ok {
		for _, e := range src.entries {
			value, err := fromValue(mp.valueType, e.Value, path)
			if err != nil {
				return nil, err
			}
			mp.put(e.Key, value)
		}
		return mp, nil
	}

	obj, ok := asObject(v)
	if !ok {
		return nil, invalid(path, "object expected")
	}
	for key, raw := range obj {
		k, err := ParseKey(mp.keyType, key)
		if err != nil {
			return nil, invalid(path, err.Error())
		}
		if raw == nil && mp.valueType.Kind != schema.KindMessage {
			raw = schema.ZeroValue(mp.valueType)
		}
		var value interface{}
		if raw == nil {
			value = New(mp.valueType.Message)
		} else if value, err = fromValue(mp.valueType, raw, path); err != nil {
			return nil, err
		}
		mp.put(k, value)
	}
	return mp, nil
}

// fromValue coerces one loosely typed value to the canonical type of ft.
func fromValue(ft *schema.FieldType, v interface{}, path string) (interface{}, error) {
	switch ft.Kind {
	case schema.KindEnum:
		return fromEnum(ft.Enum, v, path)
	case schema.KindMessage, schema.KindGroup:
		if m, ok := v.(*Message); ok {
			if m.desc != ft.Message {
				return nil, invalid(path, "object expected")
			}
			return Clone(m), nil
		}
		obj, ok := asObject(v)
		if !ok {
			return nil, invalid(path, "object expected")
		}
		return fromObject(ft.Message, obj, path)
	}

	switch ft.PrimitiveType {
	case schema.TypeInt32, schema.TypeSint32, schema.TypeSfixed32:
		n, err := coerceToInt64(v)
		if err != nil || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, invalid(path, "integer expected")
		}
		return int32(n), nil
	case schema.TypeUint32, schema.TypeFixed32:
		n, err := coerceToUint64(v)
		if err != nil || n > math.MaxUint32 {
			return nil, invalid(path, "integer expected")
		}
		return uint32(n), nil
	case schema.TypeInt64, schema.TypeSint64, schema.TypeSfixed64:
		n, err := coerceToInt64(v)
		if err != nil {
			if s, ok := v.(string); ok {
				if u, uerr := strconv.ParseUint(s, 10, 64); uerr == nil {
					return int64(u), nil
				}
			}
			return nil, invalid(path, "integer|Long expected")
		}
		return n, nil
	case schema.TypeUint64, schema.TypeFixed64:
		n, err := coerceToUint64(v)
		if err != nil {
			// negative values wrap, as two's complement on the wire
			i, ierr := coerceToInt64(v)
			if ierr != nil {
				return nil, invalid(path, "integer|Long expected")
			}
			return uint64(i), nil
		}
		return n, nil
	case schema.TypeFloat:
		f, err := coerceToFloat64(v)
		if err != nil {
			return nil, invalid(path, "number expected")
		}
		return float32(f), nil
	case schema.TypeDouble:
		f, err := coerceToFloat64(v)
		if err != nil {
			return nil, invalid(path, "number expected")
		}
		return f, nil
	case schema.TypeBool:
		return fromBool(v, path)
	case schema.TypeString:
		switch t := v.(type) {
		case string:
			return t, nil
		case []byte:
			return string(t), nil
		case json.Number:
			return t.String(), nil
		}
		return nil, invalid(path, "string expected")
	case schema.TypeBytes:
		return fromBytes(v, path)
	}
	return nil, invalid(path, fmt.Sprintf("unsupported type %s", ft.PrimitiveType))
}

func fromEnum(enum *schema.Enum, v interface{}, path string) (interface{}, error) {
	if name, ok := v.(string); ok {
		if ev, found := enum.ValueByName(name); found {
			return ev.Number, nil
		}
	}
	n, err := coerceToInt64(v)
	if err != nil || n < math.MinInt32 || n > math.MaxInt32 {
		return nil, invalid(path, "enum value expected")
	}
	return int32(n), nil
}

func fromBool(v interface{}, path string) (interface{}, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return nil, invalid(path, "boolean expected")
		}
		return b, nil
	}
	if n, err := coerceToInt64(v); err == nil {
		return n != 0, nil
	}
	return nil, invalid(path, "boolean expected")
}

func fromBytes(v interface{}, path string) (interface{}, error) {
	switch t := v.(type) {
	case []byte:
		return append([]byte{}, t...), nil
	case string:
		b, err := decodeBase64(t)
		if err != nil {
			return nil, invalid(path, "buffer expected")
		}
		return b, nil
	}
	list, ok := asSlice(v)
	if !ok {
		return nil, invalid(path, "buffer expected")
	}
	out := make([]byte, len(list))
	for i, elem := range list {
		n, err := coerceToInt64(elem)
		if err != nil || n < 0 || n > 255 {
			return nil, invalid(path, "buffer expected")
		}
		out[i] = byte(n)
	}
	return out, nil
}

// ToObject converts m to a plain object.
func ToObject(m *Message, opts ObjectOptions) map[string]interface{} {
	obj := make(map[string]interface{})
	desc := m.desc

	for _, f := range desc.Fields {
		key := f.Name
		if opts.CamelCase {
			key = f.JSONName()
		}
		v, ok := m.get(f)
		if !ok {
			switch {
			case f.IsMap():
				if opts.Objects || opts.Defaults {
					obj[key] = map[string]interface{}{}
				}
			case f.IsRepeated():
				if opts.Arrays || opts.Defaults {
					obj[key] = []interface{}{}
				}
			case opts.Defaults && !f.IsMessage() && f.OneofGroup() == nil:
				obj[key] = toValue(&f.Type, f.Default(), opts)
			}
			continue
		}
		obj[key] = toField(f, v, opts)
	}

	for _, f := range desc.ExtensionFields() {
		if v, ok := m.ext[f.Number]; ok {
			obj[f.FullName] = toField(f, v, opts)
		}
	}

	if opts.Oneofs {
		for o, slot := range m.oneofs {
			name := slot.field.Name
			if opts.CamelCase {
				name = slot.field.JSONName()
			}
			obj[o.Name] = name
		}
	}
	return obj
}

func toField(f *schema.Field, v interface{}, opts ObjectOptions) interface{} {
	switch {
	case f.IsMap():
		mp := v.(*Map)
		out := make(map[string]interface{}, len(mp.entries))
		for ck, e := range mp.entries {
			out[ck] = toValue(mp.valueType, e.Value, opts)
		}
		return out
	case f.IsRepeated():
		list := v.([]interface{})
		out := make([]interface{}, len(list))
		for i, elem := range list {
			out[i] = toValue(&f.Type, elem, opts)
		}
		return out
	}
	return toValue(&f.Type, v, opts)
}

func toValue(ft *schema.FieldType, v interface{}, opts ObjectOptions) interface{} {
	switch ft.Kind {
	case schema.KindMessage, schema.KindGroup:
		return ToObject(v.(*Message), opts)
	case schema.KindEnum:
		n := v.(int32)
		if opts.Enums == EnumsString {
			if ev, ok := ft.Enum.ValueByNumber(n); ok {
				return ev.Name
			}
		}
		return n
	}

	switch t := v.(type) {
	case int64:
		switch opts.Longs {
		case LongsString:
			return strconv.FormatInt(t, 10)
		case LongsNumber:
			return float64(t)
		}
	case uint64:
		switch opts.Longs {
		case LongsString:
			return strconv.FormatUint(t, 10)
		case LongsNumber:
			return float64(t)
		}
	case []byte:
		switch opts.Bytes {
		case BytesBase64:
			return base64.StdEncoding.EncodeToString(t)
		case BytesArray:
			out := make([]interface{}, len(t))
			for i, b := range t {
				out[i] = int(b)
			}
			return out
		}
		return append([]byte{}, t...)
	}
	return v
}
