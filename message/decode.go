package message

import (
	"github.com/wanglam/pbcore/schema"
	"github.com/wanglam/pbcore/wire"
)

// DecodeOptions tunes decoding. The zero value uses wire.DefaultMaxDepth.
type DecodeOptions struct {
	// MaxDepth bounds how deeply messages and groups may nest.
	MaxDepth int
}

// Decode reads a message of type desc from r. A negative length reads until
// the end of the reader; otherwise exactly length bytes are consumed.
func Decode(r *wire.Reader, desc *schema.Message, length int) (*Message, error) {
	return DecodeOptions{}.Decode(r, desc, length)
}

// Unmarshal decodes data as a message of type desc.
func Unmarshal(data []byte, desc *schema.Message) (*Message, error) {
	return DecodeOptions{}.Unmarshal(data, desc)
}

// DecodeDelimited reads a varint length prefix and then that many bytes as a
// message of type desc.
func DecodeDelimited(r *wire.Reader, desc *schema.Message) (*Message, error) {
	return DecodeOptions{}.DecodeDelimited(r, desc)
}

// UnmarshalDelimited decodes a length-prefixed message.
func UnmarshalDelimited(data []byte, desc *schema.Message) (*Message, error) {
	return DecodeOptions{}.DecodeDelimited(wire.NewReader(data), desc)
}

// Merge decodes data into dst: scalars are overwritten, repeated fields
// appended, maps upserted and submessages merged field by field. dst is left
// untouched when data is malformed.
func Merge(dst *Message, data []byte) error {
	return DecodeOptions{}.Merge(dst, data)
}

// Decode is the package-level Decode with these options.
func (o DecodeOptions) Decode(r *wire.Reader, desc *schema.Message, length int) (*Message, error) {
	m := New(desc)
	d := o.decoder(r)
	if err := d.decodeMessage(m, length, 0, 0); err != nil {
		return nil, err
	}
	return m, nil
}

// Unmarshal is the package-level Unmarshal with these options.
func (o DecodeOptions) Unmarshal(data []byte, desc *schema.Message) (*Message, error) {
	return o.Decode(wire.NewReader(data), desc, -1)
}

// DecodeDelimited is the package-level DecodeDelimited with these options.
func (o DecodeOptions) DecodeDelimited(r *wire.Reader, desc *schema.Message) (*Message, error) {
	n, err := r.Length()
	if err != nil {
		return nil, err
	}
	return o.Decode(r, desc, n)
}

// Merge is the package-level Merge with these options.
func (o DecodeOptions) Merge(dst *Message, data []byte) error {
	// decode into a scratch copy so a failure leaves dst as it was
	scratch := Clone(dst)
	d := o.decoder(wire.NewReader(data))
	if err := d.decodeMessage(scratch, -1, 0, 0); err != nil {
		return err
	}
	*dst = *scratch
	return nil
}

func (o DecodeOptions) decoder(r *wire.Reader) *decoder {
	depth := o.MaxDepth
	if depth <= 0 {
		depth = wire.DefaultMaxDepth
	}
	return &decoder{r: r, maxDepth: depth}
}

type decoder struct {
	r        *wire.Reader
	maxDepth int
}

// decodeMessage merges fields into m. With length >= 0 it reads exactly
// length bytes; with endGroup != 0 it reads up to the matching end group tag;
// otherwise it reads to the end of the current window.
func (d *decoder) decodeMessage(m *Message, length int, endGroup wire.FieldNumber, depth int) error {
	if depth > d.maxDepth {
		return &wire.WireFormatError{Op: "decode message", Pos: d.r.Pos(), Err: wire.ErrDepthExceeded}
	}
	if length >= 0 {
		prev, err := d.r.Limit(length)
		if err != nil {
			return err
		}
		defer d.r.Restore(prev)
	}

	closed := false
	for d.r.Remaining() > 0 {
		start := d.r.Pos()
		num, wt, err := d.r.Tag()
		if err != nil {
			return err
		}
		if wt == wire.WireEndGroup {
			if endGroup == 0 || num != endGroup {
				return &wire.WireFormatError{Op: "decode message", Pos: start, Err: wire.ErrEndGroup}
			}
			closed = true
			break
		}

		f := m.desc.FieldByNumber(int32(num))
		if f == nil {
			f = m.desc.ExtensionByNumber(int32(num))
		}
		if f == nil {
			// Unknown field - skip it
			if err := d.r.SkipField(num, wt); err != nil {
				return err
			}
			continue
		}
		if err := d.decodeField(m, f, num, wt, depth); err != nil {
			return wire.WrapWithField(err, f.Key())
		}
	}
	if endGroup != 0 && !closed {
		return &wire.WireFormatError{Op: "decode group", Pos: d.r.Pos(), Err: wire.ErrUnexpectedEOF}
	}
	return checkRequired(m)
}

func (d *decoder) decodeField(m *Message, f *schema.Field, num wire.FieldNumber, wt wire.WireType, depth int) error {
	switch {
	case f.IsMap():
		if wt != wire.WireBytes {
			return d.r.SkipField(num, wt)
		}
		return d.decodeMapEntry(m.mutableMap(f), depth)

	case f.IsRepeated():
		if wt == wire.WireBytes && f.Packable() {
			return d.decodePacked(m, f)
		}
		if wt != wireTypeOf(&f.Type) {
			return d.r.SkipField(num, wt)
		}
		var v interface{}
		var err error
		if f.IsMessage() {
			sub := New(f.Type.Message)
			err = d.decodeSubmessage(sub, f, num, depth)
			v = sub
		} else {
			v, err = readScalar(d.r, &f.Type)
		}
		if err != nil {
			return err
		}
		m.appendValue(f, v)
		return nil

	case f.IsMessage():
		if wt != wireTypeOf(&f.Type) {
			return d.r.SkipField(num, wt)
		}
		return d.decodeSubmessage(m.mutableMessage(f), f, num, depth)
	}

	if wt != wireTypeOf(&f.Type) {
		return d.r.SkipField(num, wt)
	}
	v, err := readScalar(d.r, &f.Type)
	if err != nil {
		return err
	}
	m.set(f, v)
	return nil
}

func (d *decoder) decodeSubmessage(sub *Message, f *schema.Field, num wire.FieldNumber, depth int) error {
	if f.IsGroup() {
		return d.decodeMessage(sub, -1, num, depth+1)
	}
	n, err := d.r.Length()
	if err != nil {
		return err
	}
	return d.decodeMessage(sub, n, 0, depth+1)
}

func (d *decoder) decodePacked(m *Message, f *schema.Field) error {
	n, err := d.r.Length()
	if err != nil {
		return err
	}
	prev, err := d.r.Limit(n)
	if err != nil {
		return err
	}
	defer d.r.Restore(prev)

	list, _ := m.get(f)
	values, _ := list.([]interface{})
	for d.r.Remaining() > 0 {
		v, err := readScalar(d.r, &f.Type)
		if err != nil {
			return err
		}
		values = append(values, v)
	}
	m.set(f, values)
	return nil
}

// decodeMapEntry reads one Entry{1: key, 2: value} and upserts it. Missing
// keys and values take their defaults.
func (d *decoder) decodeMapEntry(mp *Map, depth int) error {
	n, err := d.r.Length()
	if err != nil {
		return err
	}
	prev, err := d.r.Limit(n)
	if err != nil {
		return err
	}
	defer d.r.Restore(prev)

	keyType := &schema.FieldType{Kind: schema.KindPrimitive, PrimitiveType: mp.keyType}
	key := schema.ZeroValue(keyType)
	var value interface{}

	for d.r.Remaining() > 0 {
		num, wt, err := d.r.Tag()
		if err != nil {
			return err
		}
		switch {
		case num == 1 && wt == wireTypeOf(keyType):
			if key, err = readScalar(d.r, keyType); err != nil {
				return err
			}
		case num == 2 && wt == wireTypeOf(mp.valueType):
			if mp.valueType.Kind == schema.KindMessage {
				sub, ok := value.(*Message)
				if !ok {
					sub = New(mp.valueType.Message)
				}
				n, err := d.r.Length()
				if err != nil {
					return err
				}
				if err := d.decodeMessage(sub, n, 0, depth+1); err != nil {
					return err
				}
				value = sub
			} else if value, err = readScalar(d.r, mp.valueType); err != nil {
				return err
			}
		default:
			if err := d.r.SkipField(num, wt); err != nil {
				return err
			}
		}
	}

	if value == nil {
		if mp.valueType.Kind == schema.KindMessage {
			value = New(mp.valueType.Message)
		} else {
			value = schema.ZeroValue(mp.valueType)
		}
	}
	mp.put(key, value)
	return nil
}

// readScalar reads one untagged scalar or enum value.
func readScalar(r *wire.Reader, ft *schema.FieldType) (interface{}, error) {
	if ft.Kind == schema.KindEnum {
		return r.Int32()
	}
	switch ft.PrimitiveType {
	case schema.TypeInt32:
		return r.Int32()
	case schema.TypeSint32:
		return r.Sint32()
	case schema.TypeSfixed32:
		return r.Sfixed32()
	case schema.TypeUint32:
		return r.Uint32()
	case schema.TypeFixed32:
		return r.Fixed32()
	case schema.TypeInt64:
		return r.Int64()
	case schema.TypeSint64:
		return r.Sint64()
	case schema.TypeSfixed64:
		return r.Sfixed64()
	case schema.TypeUint64:
		return r.Uint64()
	case schema.TypeFixed64:
		return r.Fixed64()
	case schema.TypeFloat:
		return r.Float()
	case schema.TypeDouble:
		return r.Double()
	case schema.TypeBool:
		return r.Bool()
	case schema.TypeString:
		return r.String()
	case schema.TypeBytes:
		return r.Bytes()
	}
	return nil, &wire.WireFormatError{Op: "read " + string(ft.PrimitiveType), Pos: r.Pos(), Err: wire.ErrInvalidWireType}
}

func checkRequired(m *Message) error {
	for _, f := range m.desc.Fields {
		if !f.IsRequired() {
			continue
		}
		if _, ok := m.get(f); !ok {
			return &RequiredFieldError{Message: m.desc.FullName, Field: f.Name}
		}
	}
	return nil
}
