package message

import (
	"github.com/wanglam/pbcore/schema"
	"github.com/wanglam/pbcore/wire"
)

// Encode appends the wire form of m to w and returns w. A nil w allocates a
// new writer. Encoding never fails: values are type-checked when set.
func Encode(m *Message, w *wire.Writer) *wire.Writer {
	if w == nil {
		w = wire.NewWriter()
	}
	encodeMessage(m, w)
	return w
}

// Marshal returns the wire form of m.
func Marshal(m *Message) []byte {
	return Encode(m, nil).Finish()
}

// EncodeDelimited appends m prefixed with its varint length.
func EncodeDelimited(m *Message, w *wire.Writer) *wire.Writer {
	if w == nil {
		w = wire.NewWriter()
	}
	w.Fork()
	encodeMessage(m, w)
	return w.Ldelim()
}

// MarshalDelimited returns m prefixed with its varint length.
func MarshalDelimited(m *Message) []byte {
	return EncodeDelimited(m, nil).Finish()
}

func encodeMessage(m *Message, w *wire.Writer) {
	for _, f := range m.desc.Fields {
		v, ok := m.get(f)
		encodeField(f, v, ok, w)
	}
	if len(m.ext) == 0 {
		return
	}
	for _, f := range m.desc.ExtensionFields() {
		v, ok := m.ext[f.Number]
		encodeField(f, v, ok, w)
	}
}

func encodeField(f *schema.Field, v interface{}, set bool, w *wire.Writer) {
	num := wire.FieldNumber(f.Number)

	switch {
	case f.IsMap():
		if set {
			encodeMap(num, v.(*Map), w)
		}
		return
	case f.IsRepeated():
		if !set {
			return
		}
		list := v.([]interface{})
		if len(list) == 0 {
			return
		}
		if f.IsPacked() {
			w.Tag(num, wire.WireBytes).Fork()
			for _, elem := range list {
				writeScalar(&f.Type, elem, w)
			}
			w.Ldelim()
			return
		}
		for _, elem := range list {
			encodeValue(num, &f.Type, elem, w)
		}
		return
	}

	if !set {
		if !f.IsRequired() {
			return
		}
		if f.IsMessage() {
			v = New(f.Type.Message)
		} else {
			v = f.Default()
		}
	} else if !f.IsMessage() && f.OneofGroup() == nil && !f.IsRequired() && isDefault(f, v) {
		return
	}
	encodeValue(num, &f.Type, v, w)
}

// encodeValue writes one tagged value.
func encodeValue(num wire.FieldNumber, ft *schema.FieldType, v interface{}, w *wire.Writer) {
	switch ft.Kind {
	case schema.KindMessage:
		w.Tag(num, wire.WireBytes).Fork()
		encodeMessage(v.(*Message), w)
		w.Ldelim()
	case schema.KindGroup:
		w.Tag(num, wire.WireStartGroup)
		encodeMessage(v.(*Message), w)
		w.Tag(num, wire.WireEndGroup)
	default:
		w.Tag(num, wireTypeOf(ft))
		writeScalar(ft, v, w)
	}
}

func encodeMap(num wire.FieldNumber, mp *Map, w *wire.Writer) {
	keyType := &schema.FieldType{Kind: schema.KindPrimitive, PrimitiveType: mp.keyType}
	for _, e := range mp.sorted() {
		w.Tag(num, wire.WireBytes).Fork()
		encodeValue(1, keyType, e.Key, w)
		value := e.Value
		if value == nil && mp.valueType.Kind == schema.KindMessage {
			value = New(mp.valueType.Message)
		}
		encodeValue(2, mp.valueType, value, w)
		w.Ldelim()
	}
}

// writeScalar writes an untagged scalar or enum value.
func writeScalar(ft *schema.FieldType, v interface{}, w *wire.Writer) {
	if ft.Kind == schema.KindEnum {
		w.Int32(v.(int32))
		return
	}
	switch ft.PrimitiveType {
	case schema.TypeInt32:
		w.Int32(v.(int32))
	case schema.TypeSint32:
		w.Sint32(v.(int32))
	case schema.TypeSfixed32:
		w.Sfixed32(v.(int32))
	case schema.TypeUint32:
		w.Uint32(v.(uint32))
	case schema.TypeFixed32:
		w.Fixed32(v.(uint32))
	case schema.TypeInt64:
		w.Int64(v.(int64))
	case schema.TypeSint64:
		w.Sint64(v.(int64))
	case schema.TypeSfixed64:
		w.Sfixed64(v.(int64))
	case schema.TypeUint64:
		w.Uint64(v.(uint64))
	case schema.TypeFixed64:
		w.Fixed64(v.(uint64))
	case schema.TypeFloat:
		w.Float(v.(float32))
	case schema.TypeDouble:
		w.Double(v.(float64))
	case schema.TypeBool:
		w.Bool(v.(bool))
	case schema.TypeString:
		w.String(v.(string))
	case schema.TypeBytes:
		w.Bytes(v.([]byte))
	}
}

// wireTypeOf returns the wire type of a single unpacked value.
func wireTypeOf(ft *schema.FieldType) wire.WireType {
	switch ft.Kind {
	case schema.KindEnum:
		return wire.WireVarint
	case schema.KindMessage, schema.KindMap:
		return wire.WireBytes
	case schema.KindGroup:
		return wire.WireStartGroup
	}
	switch ft.PrimitiveType {
	case schema.TypeFixed32, schema.TypeSfixed32, schema.TypeFloat:
		return wire.WireFixed32
	case schema.TypeFixed64, schema.TypeSfixed64, schema.TypeDouble:
		return wire.WireFixed64
	case schema.TypeString, schema.TypeBytes:
		return wire.WireBytes
	}
	return wire.WireVarint
}
