// Package message encodes, decodes, verifies and converts protobuf messages
// described by resolved schema descriptors.
package message

import (
	"fmt"

	"github.com/wanglam/pbcore/schema"
)

// Message is a dynamic instance of a resolved message type. Each regular
// field has at most one stored value, each oneof group holds at most one
// member, and extension values live in a side table keyed by number. A field
// without a stored value reads as its default.
//
// Values use one canonical Go type per protobuf type: int32 for
// int32/sint32/sfixed32/enum, uint32 for uint32/fixed32, int64 for
// int64/sint64/sfixed64, uint64 for uint64/fixed64, float32, float64, bool,
// string, []byte, *Message for messages and groups, []interface{} for
// repeated fields and *Map for maps.
type Message struct {
	desc   *schema.Message
	fields map[int32]interface{}
	oneofs map[*schema.Oneof]oneofValue
	ext    map[int32]interface{}
}

type oneofValue struct {
	field *schema.Field
	value interface{}
}

// New creates an empty message of the given type.
func New(desc *schema.Message) *Message {
	return &Message{
		desc:   desc,
		fields: make(map[int32]interface{}),
	}
}

// Descriptor returns the message type.
func (m *Message) Descriptor() *schema.Message {
	return m.desc
}

// lookupField resolves a declared name, JSON name or extension name.
func (m *Message) lookupField(name string) (*schema.Field, error) {
	if f := m.desc.FieldByName(name); f != nil {
		return f, nil
	}
	if f := m.desc.ExtensionByName(name); f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("%s has no field %q", m.desc.FullName, name)
}

// Get returns the value of a field, or its default when unset. Unset
// messages, lists and maps read as nil. Unknown names read as nil.
func (m *Message) Get(name string) interface{} {
	f, err := m.lookupField(name)
	if err != nil {
		return nil
	}
	if v, ok := m.get(f); ok {
		return v
	}
	if f.IsRepeated() || f.IsMap() {
		return nil
	}
	return f.Default()
}

// Has reports whether a field holds a value.
func (m *Message) Has(name string) bool {
	f, err := m.lookupField(name)
	if err != nil {
		return false
	}
	_, ok := m.get(f)
	return ok
}

// Set stores a value of the field's canonical type. Setting a oneof member
// clears its siblings; a nil value clears the field.
func (m *Message) Set(name string, v interface{}) error {
	f, err := m.lookupField(name)
	if err != nil {
		return err
	}
	if v == nil {
		m.clear(f)
		return nil
	}
	if err := checkField(f, v); err != nil {
		return fmt.Errorf("%s.%s: %w", m.desc.FullName, f.Key(), err)
	}
	m.set(f, v)
	return nil
}

// Clear removes the value of a field.
func (m *Message) Clear(name string) {
	if f, err := m.lookupField(name); err == nil {
		m.clear(f)
	}
}

// WhichOneof returns the name of the member currently set in a oneof group,
// or "" when none is.
func (m *Message) WhichOneof(group string) string {
	o := m.desc.Oneof(group)
	if o == nil {
		return ""
	}
	if slot, ok := m.oneofs[o]; ok {
		return slot.field.Name
	}
	return ""
}

// Range calls fn for every set field in encode order: regular fields in
// declaration order, then extensions by ascending number. Iteration stops
// when fn returns false.
func (m *Message) Range(fn func(f *schema.Field, v interface{}) bool) {
	for _, f := range m.desc.Fields {
		v, ok := m.get(f)
		if !ok {
			continue
		}
		if !fn(f, v) {
			return
		}
	}
	if len(m.ext) == 0 {
		return
	}
	for _, f := range m.desc.ExtensionFields() {
		v, ok := m.ext[f.Number]
		if !ok {
			continue
		}
		if !fn(f, v) {
			return
		}
	}
}

func (m *Message) get(f *schema.Field) (interface{}, bool) {
	if f.IsExtension() {
		v, ok := m.ext[f.Number]
		return v, ok
	}
	if o := f.OneofGroup(); o != nil {
		slot, ok := m.oneofs[o]
		if !ok || slot.field != f {
			return nil, false
		}
		return slot.value, true
	}
	v, ok := m.fields[f.Number]
	return v, ok
}

func (m *Message) set(f *schema.Field, v interface{}) {
	if f.IsExtension() {
		if m.ext == nil {
			m.ext = make(map[int32]interface{})
		}
		m.ext[f.Number] = v
		return
	}
	if o := f.OneofGroup(); o != nil {
		if m.oneofs == nil {
			m.oneofs = make(map[*schema.Oneof]oneofValue)
		}
		m.oneofs[o] = oneofValue{field: f, value: v}
		return
	}
	m.fields[f.Number] = v
}

func (m *Message) clear(f *schema.Field) {
	if f.IsExtension() {
		delete(m.ext, f.Number)
		return
	}
	if o := f.OneofGroup(); o != nil {
		if slot, ok := m.oneofs[o]; ok && slot.field == f {
			delete(m.oneofs, o)
		}
		return
	}
	delete(m.fields, f.Number)
}

// appendValue adds one element to a repeated field.
func (m *Message) appendValue(f *schema.Field, v interface{}) {
	list, _ := m.get(f)
	values, _ := list.([]interface{})
	m.set(f, append(values, v))
}

// mutableMap returns the map stored in f, creating it if needed.
func (m *Message) mutableMap(f *schema.Field) *Map {
	if v, ok := m.get(f); ok {
		return v.(*Map)
	}
	mp := NewMap(f)
	m.set(f, mp)
	return mp
}

// mutableMessage returns the submessage stored in f, creating it if needed.
func (m *Message) mutableMessage(f *schema.Field) *Message {
	if v, ok := m.get(f); ok {
		return v.(*Message)
	}
	sub := New(f.Type.Message)
	m.set(f, sub)
	return sub
}
