package schema

import (
	"fmt"
	"sort"
	"strings"
)

const maxFieldNumber = 1<<29 - 1

type fieldIndex struct {
	byNumber    map[int32]*Field
	byName      map[string]*Field
	oneofs      map[string]*Oneof
	extByNumber map[int32]*Field
	extByName   map[string]*Field
	extensions  []*Field // ascending field number
}

type fieldState struct {
	packed       bool
	oneof        *Oneof
	defaultValue interface{}
	jsonName     string
}

// Finalize validates the message's own fields and builds its lookup index.
// Every message/enum reference must already be bound. It is called by the
// registry's resolve pass; extensions are attached afterwards with
// AddExtension.
func (m *Message) Finalize() error {
	proto3 := m.Syntax == "proto3"
	idx := &fieldIndex{
		byNumber:    make(map[int32]*Field, len(m.Fields)),
		byName:      make(map[string]*Field, len(m.Fields)*2),
		oneofs:      make(map[string]*Oneof),
		extByNumber: make(map[int32]*Field),
		extByName:   make(map[string]*Field),
	}

	for _, o := range m.OneofGroups {
		o.Fields = o.Fields[:0]
		idx.oneofs[o.Name] = o
	}

	for _, f := range m.Fields {
		if err := f.Finalize(proto3); err != nil {
			return fmt.Errorf("%s: %w", m.FullName, err)
		}
		if prev, ok := idx.byNumber[f.Number]; ok {
			return fmt.Errorf("%s: field number %d used by both %q and %q", m.FullName, f.Number, prev.Name, f.Name)
		}
		if _, ok := idx.byName[f.Name]; ok {
			return fmt.Errorf("%s: duplicate field name %q", m.FullName, f.Name)
		}
		idx.byNumber[f.Number] = f
		idx.byName[f.Name] = f

		if f.Oneof != "" {
			if f.IsRepeated() || f.IsMap() {
				return fmt.Errorf("%s: oneof member %q cannot be repeated", m.FullName, f.Name)
			}
			o, ok := idx.oneofs[f.Oneof]
			if !ok {
				o = &Oneof{Name: f.Oneof}
				m.OneofGroups = append(m.OneofGroups, o)
				idx.oneofs[o.Name] = o
			}
			o.Fields = append(o.Fields, f)
			f.resolved.oneof = o
		}
	}

	// JSON names only fill gaps left by declared names.
	for _, f := range m.Fields {
		if _, ok := idx.byName[f.resolved.jsonName]; !ok {
			idx.byName[f.resolved.jsonName] = f
		}
	}

	m.index = idx
	return nil
}

// Finalized reports whether Finalize has run.
func (m *Message) Finalized() bool {
	return m.index != nil
}

// AddExtension attaches a finalized extension field to the extended message.
func (m *Message) AddExtension(f *Field) error {
	if m.index == nil {
		return fmt.Errorf("%s: message is not finalized", m.FullName)
	}
	if f.resolved == nil {
		return fmt.Errorf("extension %s is not finalized", f.FullName)
	}
	if prev, ok := m.index.byNumber[f.Number]; ok {
		return fmt.Errorf("%s: extension %s uses field number %d of field %q", m.FullName, f.FullName, f.Number, prev.Name)
	}
	if prev, ok := m.index.extByNumber[f.Number]; ok {
		return fmt.Errorf("%s: extensions %s and %s share field number %d", m.FullName, prev.FullName, f.FullName, f.Number)
	}
	if len(m.ExtensionRanges) > 0 && !m.inExtensionRange(f.Number) {
		return fmt.Errorf("%s: extension %s number %d is outside the declared extension ranges", m.FullName, f.FullName, f.Number)
	}

	m.index.extByNumber[f.Number] = f
	m.index.extByName[f.FullName] = f
	pos := sort.Search(len(m.index.extensions), func(i int) bool {
		return m.index.extensions[i].Number > f.Number
	})
	m.index.extensions = append(m.index.extensions, nil)
	copy(m.index.extensions[pos+1:], m.index.extensions[pos:])
	m.index.extensions[pos] = f
	return nil
}

func (m *Message) inExtensionRange(n int32) bool {
	for _, r := range m.ExtensionRanges {
		if n >= r.Start && n <= r.End {
			return true
		}
	}
	return false
}

// Finalize validates a single field and computes its packed flag, default
// value and JSON name. Type references must already be bound.
func (f *Field) Finalize(proto3 bool) error {
	if f.Number < 1 || f.Number > maxFieldNumber {
		return fmt.Errorf("field %q: number %d out of range", f.Name, f.Number)
	}

	st := &fieldState{jsonName: f.JsonName}
	if st.jsonName == "" {
		st.jsonName = ToLowerCamel(f.Name)
	}

	switch f.Type.Kind {
	case KindPrimitive:
		if _, ok := ParsePrimitiveType(string(f.Type.PrimitiveType)); !ok {
			return fmt.Errorf("field %q: unknown primitive type %q", f.Name, f.Type.PrimitiveType)
		}
	case KindMessage, KindGroup:
		if f.Type.Message == nil {
			return fmt.Errorf("field %q: message type %q is not bound", f.Name, f.Type.TypeName)
		}
	case KindEnum:
		if f.Type.Enum == nil {
			return fmt.Errorf("field %q: enum type %q is not bound", f.Name, f.Type.TypeName)
		}
	case KindMap:
		if f.Type.MapKey == nil || f.Type.MapValue == nil {
			return fmt.Errorf("field %q: map without key or value type", f.Name)
		}
		if f.Type.MapKey.Kind != KindPrimitive || !f.Type.MapKey.PrimitiveType.IsValidMapKey() {
			return fmt.Errorf("field %q: invalid map key type %q", f.Name, f.Type.MapKey.PrimitiveType)
		}
		switch f.Type.MapValue.Kind {
		case KindPrimitive:
		case KindMessage:
			if f.Type.MapValue.Message == nil {
				return fmt.Errorf("field %q: map value type %q is not bound", f.Name, f.Type.MapValue.TypeName)
			}
		case KindEnum:
			if f.Type.MapValue.Enum == nil {
				return fmt.Errorf("field %q: map value type %q is not bound", f.Name, f.Type.MapValue.TypeName)
			}
		default:
			return fmt.Errorf("field %q: invalid map value kind %q", f.Name, f.Type.MapValue.Kind)
		}
	case KindNamed:
		return fmt.Errorf("field %q: type %q is not resolved", f.Name, f.Type.TypeName)
	default:
		return fmt.Errorf("field %q: unknown type kind %q", f.Name, f.Type.Kind)
	}

	if f.Label == LabelRepeated && f.Type.Kind != KindMap && f.Packable() {
		if f.Packed != nil {
			st.packed = *f.Packed
		} else {
			st.packed = proto3
		}
	}

	if f.DefaultValue != "" {
		if f.Label == LabelRepeated || f.Type.Kind == KindMap || f.Type.Kind == KindMessage || f.Type.Kind == KindGroup {
			return fmt.Errorf("field %q: default value not allowed", f.Name)
		}
		v, err := ParseDefault(&f.Type, f.DefaultValue)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		st.defaultValue = v
	} else {
		st.defaultValue = ZeroValue(&f.Type)
	}

	f.resolved = st
	return nil
}

// FieldByNumber returns the regular field with number n.
func (m *Message) FieldByNumber(n int32) *Field {
	if m.index != nil {
		return m.index.byNumber[n]
	}
	for _, f := range m.Fields {
		if f.Number == n {
			return f
		}
	}
	return nil
}

// FieldByName returns the regular field with the given declared or JSON name.
func (m *Message) FieldByName(name string) *Field {
	if m.index != nil {
		return m.index.byName[name]
	}
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ExtensionByNumber returns the extension attached under number n.
func (m *Message) ExtensionByNumber(n int32) *Field {
	if m.index == nil {
		return nil
	}
	return m.index.extByNumber[n]
}

// ExtensionByName returns an attached extension by fully-qualified name. A
// leading dot and surrounding parentheses are accepted.
func (m *Message) ExtensionByName(name string) *Field {
	if m.index == nil {
		return nil
	}
	name = strings.TrimSuffix(strings.TrimPrefix(name, "("), ")")
	return m.index.extByName[strings.TrimPrefix(name, ".")]
}

// ExtensionFields returns attached extensions in ascending number order.
func (m *Message) ExtensionFields() []*Field {
	if m.index == nil {
		return nil
	}
	return m.index.extensions
}

// Oneof returns the oneof group with the given name.
func (m *Message) Oneof(name string) *Oneof {
	if m.index == nil {
		return nil
	}
	return m.index.oneofs[name]
}

// IsRepeated reports whether the field is a list. Map fields are not lists.
func (f *Field) IsRepeated() bool {
	return f.Label == LabelRepeated && f.Type.Kind != KindMap
}

// IsRequired reports whether the field is proto2 required.
func (f *Field) IsRequired() bool {
	return f.Label == LabelRequired
}

// IsMap reports whether the field is a map.
func (f *Field) IsMap() bool {
	return f.Type.Kind == KindMap
}

// IsMessage reports whether values of the field are messages (groups included).
func (f *Field) IsMessage() bool {
	return f.Type.Kind == KindMessage || f.Type.Kind == KindGroup
}

// IsGroup reports whether the field uses the legacy group encoding.
func (f *Field) IsGroup() bool {
	return f.Type.Kind == KindGroup
}

// IsExtension reports whether the field extends another message.
func (f *Field) IsExtension() bool {
	return f.Extendee != ""
}

// Packable reports whether the element type may use packed encoding.
func (f *Field) Packable() bool {
	switch f.Type.Kind {
	case KindEnum:
		return true
	case KindPrimitive:
		return IsPackedType(f.Type.PrimitiveType)
	}
	return false
}

// IsPacked reports whether the field is written packed.
func (f *Field) IsPacked() bool {
	return f.resolved != nil && f.resolved.packed
}

// OneofGroup returns the oneof the field belongs to, or nil.
func (f *Field) OneofGroup() *Oneof {
	if f.resolved == nil {
		return nil
	}
	return f.resolved.oneof
}

// Default returns the field's declared default, or the zero value of its
// type. It is nil for messages, lists and maps.
func (f *Field) Default() interface{} {
	if f.resolved == nil {
		return ZeroValue(&f.Type)
	}
	return f.resolved.defaultValue
}

// JSONName returns the declared JSON name or the lowerCamel form of Name.
func (f *Field) JSONName() string {
	if f.resolved == nil {
		if f.JsonName != "" {
			return f.JsonName
		}
		return ToLowerCamel(f.Name)
	}
	return f.resolved.jsonName
}

// Key returns the name a field is stored under in plain objects: the
// declared name, or the fully-qualified name for extensions.
func (f *Field) Key() string {
	if f.IsExtension() {
		return f.FullName
	}
	return f.Name
}
