package schema

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func primitive(t PrimitiveType) FieldType {
	return FieldType{Kind: KindPrimitive, PrimitiveType: t}
}

var colorEnum = &Enum{
	Name:     "Color",
	FullName: "pkg.Color",
	Values: []*EnumValue{
		{Name: "RED", Number: 4},
		{Name: "GREEN", Number: 5},
		{Name: "CRIMSON", Number: 4},
	},
	AllowAlias: true,
}

func TestToLowerCamel(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"name":         "name",
		"user_name":    "userName",
		"Name":         "name",
		"created_at_2": "createdAt2",
		"__private":    "private",
		"trailing_":    "trailing",
		"a_b_c":        "aBC",
		"HTTPServer":   "hTTPServer",
	}
	for in, want := range tests {
		assert.Equal(t, want, ToLowerCamel(in), in)
	}
}

func TestParsePrimitiveType(t *testing.T) {
	for _, name := range []string{"double", "float", "int32", "int64", "uint32", "uint64", "sint32", "sint64",
		"fixed32", "fixed64", "sfixed32", "sfixed64", "bool", "string", "bytes"} {
		pt, ok := ParsePrimitiveType(name)
		assert.True(t, ok, name)
		assert.Equal(t, PrimitiveType(name), pt)
	}
	_, ok := ParsePrimitiveType("Timestamp")
	assert.False(t, ok)

	assert.False(t, IsPackedType(TypeString))
	assert.False(t, IsPackedType(TypeBytes))
	assert.True(t, IsPackedType(TypeBool))
	assert.True(t, TypeSfixed64.IsLong())
	assert.False(t, TypeInt32.IsLong())
	assert.True(t, TypeString.IsValidMapKey())
	assert.False(t, TypeFloat.IsValidMapKey())
	assert.False(t, TypeBytes.IsValidMapKey())
}

func TestEnumLookups(t *testing.T) {
	v, ok := colorEnum.ValueByName("GREEN")
	require.True(t, ok)
	assert.Equal(t, int32(5), v.Number)

	v, ok = colorEnum.ValueByNumber(4)
	require.True(t, ok)
	assert.Equal(t, "RED", v.Name, "aliases resolve to the first declared name")

	_, ok = colorEnum.ValueByNumber(9)
	assert.False(t, ok)
	assert.Equal(t, int32(4), colorEnum.Default())
	assert.Equal(t, int32(0), (&Enum{}).Default())
}

func TestZeroValue(t *testing.T) {
	tests := []struct {
		ft   FieldType
		want interface{}
	}{
		{primitive(TypeInt32), int32(0)},
		{primitive(TypeSfixed32), int32(0)},
		{primitive(TypeFixed32), uint32(0)},
		{primitive(TypeSint64), int64(0)},
		{primitive(TypeUint64), uint64(0)},
		{primitive(TypeFloat), float32(0)},
		{primitive(TypeDouble), float64(0)},
		{primitive(TypeBool), false},
		{primitive(TypeString), ""},
		{primitive(TypeBytes), []byte{}},
		{FieldType{Kind: KindEnum, Enum: colorEnum}, int32(4)},
		{FieldType{Kind: KindEnum}, int32(0)},
		{FieldType{Kind: KindMessage}, nil},
		{FieldType{Kind: KindMap}, nil},
	}
	for _, tt := range tests {
		ft := tt.ft
		assert.Equal(t, tt.want, ZeroValue(&ft), "%s %s", ft.Kind, ft.PrimitiveType)
	}
}

func TestParseDefault(t *testing.T) {
	tests := []struct {
		ft      FieldType
		literal string
		want    interface{}
	}{
		{primitive(TypeInt32), "-42", int32(-42)},
		{primitive(TypeInt32), "0x10", int32(16)},
		{primitive(TypeUint32), "4294967295", uint32(math.MaxUint32)},
		{primitive(TypeInt64), "-9223372036854775808", int64(math.MinInt64)},
		{primitive(TypeFixed64), "18446744073709551615", uint64(math.MaxUint64)},
		{primitive(TypeFloat), "1.5", float32(1.5)},
		{primitive(TypeDouble), "-1e10", -1e10},
		{primitive(TypeDouble), "inf", math.Inf(1)},
		{primitive(TypeFloat), "-inf", float32(math.Inf(-1))},
		{primitive(TypeBool), "true", true},
		{primitive(TypeString), "hello world", "hello world"},
		{primitive(TypeBytes), `a\001\nb`, []byte("a\x01\nb")},
		{primitive(TypeBytes), `\xff\000`, []byte{0xFF, 0x00}},
		{FieldType{Kind: KindEnum, Enum: colorEnum}, "GREEN", int32(5)},
	}
	for _, tt := range tests {
		ft := tt.ft
		got, err := ParseDefault(&ft, tt.literal)
		require.NoError(t, err, tt.literal)
		assert.Equal(t, tt.want, got, tt.literal)
	}

	nan, err := ParseDefault(&FieldType{Kind: KindPrimitive, PrimitiveType: TypeDouble}, "nan")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(nan.(float64)))
}

func TestParseDefault_Errors(t *testing.T) {
	tests := []struct {
		ft      FieldType
		literal string
		wantErr string
	}{
		{primitive(TypeInt32), "2147483648", `invalid int32 default "2147483648"`},
		{primitive(TypeUint32), "-1", `invalid uint32 default "-1"`},
		{primitive(TypeBool), "yes", `invalid bool default "yes"`},
		{primitive(TypeDouble), "fast", `invalid float default "fast"`},
		{FieldType{Kind: KindEnum, Enum: colorEnum}, "BLUE", `default "BLUE" is not a value of enum pkg.Color`},
		{FieldType{Kind: KindEnum}, "RED", `enum default "RED" before enum is bound`},
		{FieldType{Kind: KindMessage}, "x", "no default allowed for message fields"},
	}
	for _, tt := range tests {
		ft := tt.ft
		_, err := ParseDefault(&ft, tt.literal)
		require.Error(t, err, tt.literal)
		assert.Contains(t, err.Error(), tt.wantErr)
	}
}

func newItem() *Message {
	packed := false
	return &Message{
		Name:     "Item",
		FullName: "pkg.Item",
		Syntax:   "proto3",
		Fields: []*Field{
			{Name: "item_id", Number: 1, Label: LabelOptional, Type: primitive(TypeInt64)},
			{Name: "codes", Number: 2, Label: LabelRepeated, Type: primitive(TypeInt32)},
			{Name: "raw_codes", Number: 3, Label: LabelRepeated, Type: primitive(TypeInt32), Packed: &packed},
			{Name: "names", Number: 4, Label: LabelRepeated, Type: primitive(TypeString)},
			{Name: "color", Number: 5, Label: LabelOptional, Type: FieldType{Kind: KindEnum, TypeName: "Color", Enum: colorEnum}},
			{Name: "sku", Number: 6, Label: LabelOptional, Type: primitive(TypeString), Oneof: "ref"},
			{Name: "ean", Number: 7, Label: LabelOptional, Type: primitive(TypeUint64), Oneof: "ref"},
			{Name: "display", Number: 8, Label: LabelOptional, Type: primitive(TypeString), JsonName: "label"},
			{Name: "attrs", Number: 9, Label: LabelRepeated, Type: FieldType{
				Kind:     KindMap,
				MapKey:   &FieldType{Kind: KindPrimitive, PrimitiveType: TypeString},
				MapValue: &FieldType{Kind: KindPrimitive, PrimitiveType: TypeString},
			}},
		},
		OneofGroups:     []*Oneof{{Name: "ref"}},
		ExtensionRanges: []*ExtensionRange{{Start: 100, End: 199}},
	}
}

func TestMessage_Finalize(t *testing.T) {
	m := newItem()
	assert.False(t, m.Finalized())
	assert.Equal(t, "item_id", m.FieldByNumber(1).Name, "lookups work before Finalize")
	assert.Nil(t, m.FieldByName("itemId"))

	require.NoError(t, m.Finalize())
	assert.True(t, m.Finalized())

	id := m.FieldByName("item_id")
	require.NotNil(t, id)
	assert.Same(t, id, m.FieldByName("itemId"))
	assert.Same(t, id, m.FieldByNumber(1))
	assert.Equal(t, "itemId", id.JSONName())
	assert.Equal(t, int64(0), id.Default())
	assert.Equal(t, "item_id", id.Key())

	assert.Same(t, m.FieldByNumber(8), m.FieldByName("label"))
	assert.Nil(t, m.FieldByName("display_name"))

	assert.True(t, m.FieldByName("codes").IsPacked(), "proto3 packs scalars by default")
	assert.False(t, m.FieldByName("raw_codes").IsPacked())
	assert.False(t, m.FieldByName("names").IsPacked())
	assert.False(t, m.FieldByName("attrs").IsPacked())
	assert.True(t, m.FieldByName("attrs").IsMap())
	assert.False(t, m.FieldByName("attrs").IsRepeated())
	assert.True(t, m.FieldByName("codes").IsRepeated())

	assert.Equal(t, int32(4), m.FieldByName("color").Default())

	ref := m.Oneof("ref")
	require.NotNil(t, ref)
	require.Len(t, ref.Fields, 2)
	assert.Equal(t, "sku", ref.Fields[0].Name)
	assert.Same(t, ref, m.FieldByName("ean").OneofGroup())
	assert.Nil(t, id.OneofGroup())

	// finalizing again rebuilds the oneof member lists instead of doubling them
	require.NoError(t, m.Finalize())
	assert.Len(t, m.Oneof("ref").Fields, 2)
}

func TestMessage_FinalizeProto2(t *testing.T) {
	m := &Message{
		Name:     "Legacy",
		FullName: "pkg.Legacy",
		Syntax:   "proto2",
		Fields: []*Field{
			{Name: "id", Number: 1, Label: LabelRequired, Type: primitive(TypeString)},
			{Name: "retries", Number: 2, Label: LabelOptional, Type: primitive(TypeInt32), DefaultValue: "3"},
			{Name: "samples", Number: 3, Label: LabelRepeated, Type: primitive(TypeInt32)},
			{Name: "color", Number: 4, Label: LabelOptional, Type: FieldType{Kind: KindEnum, Enum: colorEnum}, DefaultValue: "GREEN"},
		},
	}
	require.NoError(t, m.Finalize())

	assert.True(t, m.FieldByName("id").IsRequired())
	assert.Equal(t, "", m.FieldByName("id").Default())
	assert.Equal(t, int32(3), m.FieldByName("retries").Default())
	assert.False(t, m.FieldByName("samples").IsPacked(), "proto2 does not pack unless asked")
	assert.Equal(t, int32(5), m.FieldByName("color").Default())
}

func TestMessage_FinalizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Message)
		wantErr string
	}{
		{"duplicate number", func(m *Message) {
			m.Fields = append(m.Fields, &Field{Name: "dup", Number: 1, Type: primitive(TypeInt32)})
		}, `field number 1 used by both "item_id" and "dup"`},
		{"duplicate name", func(m *Message) {
			m.Fields = append(m.Fields, &Field{Name: "codes", Number: 50, Type: primitive(TypeInt32)})
		}, `duplicate field name "codes"`},
		{"number zero", func(m *Message) {
			m.Fields[0].Number = 0
		}, `field "item_id": number 0 out of range`},
		{"number too large", func(m *Message) {
			m.Fields[0].Number = 1 << 29
		}, "out of range"},
		{"unresolved", func(m *Message) {
			m.Fields[0].Type = FieldType{Kind: KindNamed, TypeName: "Missing"}
		}, `type "Missing" is not resolved`},
		{"unbound message", func(m *Message) {
			m.Fields[0].Type = FieldType{Kind: KindMessage, TypeName: "Other"}
		}, `message type "Other" is not bound`},
		{"unknown primitive", func(m *Message) {
			m.Fields[0].Type = primitive("int128")
		}, `unknown primitive type "int128"`},
		{"float map key", func(m *Message) {
			m.Fields[8].Type.MapKey = &FieldType{Kind: KindPrimitive, PrimitiveType: TypeFloat}
		}, `invalid map key type "float"`},
		{"repeated oneof", func(m *Message) {
			m.Fields[5].Label = LabelRepeated
		}, `oneof member "sku" cannot be repeated`},
		{"default on message", func(m *Message) {
			m.Fields = append(m.Fields, &Field{Name: "sub", Number: 60, Type: FieldType{Kind: KindMessage, Message: &Message{Name: "Sub"}}, DefaultValue: "x"})
		}, `field "sub": default value not allowed`},
		{"bad default", func(m *Message) {
			m.Fields[0].DefaultValue = "ten"
		}, `invalid int64 default "ten"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newItem()
			tt.mutate(m)
			err := m.Finalize()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "pkg.Item")
		})
	}
}

func TestMessage_AddExtension(t *testing.T) {
	m := newItem()

	ext := func(name string, number int32) *Field {
		f := &Field{Name: name, Number: number, Label: LabelOptional, Type: primitive(TypeString), Extendee: "pkg.Item", FullName: "ext." + name}
		require.NoError(t, f.Finalize(false))
		return f
	}

	err := m.AddExtension(ext("early", 100))
	assert.ErrorContains(t, err, "not finalized")
	require.NoError(t, m.Finalize())

	notFinalized := &Field{Name: "raw", Number: 150, Extendee: "pkg.Item", FullName: "ext.raw"}
	assert.ErrorContains(t, m.AddExtension(notFinalized), "extension ext.raw is not finalized")

	require.NoError(t, m.AddExtension(ext("second", 120)))
	require.NoError(t, m.AddExtension(ext("first", 110)))
	require.NoError(t, m.AddExtension(ext("third", 199)))

	names := []string{}
	for _, f := range m.ExtensionFields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"first", "second", "third"}, names)

	f := m.ExtensionByNumber(110)
	require.NotNil(t, f)
	assert.Same(t, f, m.ExtensionByName("ext.first"))
	assert.Same(t, f, m.ExtensionByName(".ext.first"))
	assert.Same(t, f, m.ExtensionByName("(ext.first)"))
	assert.Same(t, f, m.ExtensionByName("(.ext.first)"))
	assert.Nil(t, m.ExtensionByName("first"))
	assert.Nil(t, m.FieldByNumber(110), "extensions stay out of the regular field index")
	assert.True(t, f.IsExtension())
	assert.Equal(t, "ext.first", f.Key())

	assert.ErrorContains(t, m.AddExtension(ext("clash", 1)), `uses field number 1 of field "item_id"`)
	assert.ErrorContains(t, m.AddExtension(ext("again", 110)), "share field number 110")
	assert.ErrorContains(t, m.AddExtension(ext("outside", 200)), "outside the declared extension ranges")
}

func TestField_BeforeFinalize(t *testing.T) {
	f := &Field{Name: "user_name", Number: 1, Type: primitive(TypeBytes)}
	assert.Equal(t, "userName", f.JSONName())
	assert.Equal(t, []byte{}, f.Default())
	assert.False(t, f.IsPacked())
	assert.Nil(t, f.OneofGroup())

	f.JsonName = "user"
	assert.Equal(t, "user", f.JSONName())

	group := &Field{Name: "Result", Number: 2, Label: LabelRepeated, Type: FieldType{Kind: KindGroup}}
	assert.True(t, group.IsGroup())
	assert.True(t, group.IsMessage())
	assert.False(t, group.Packable())

	enum := &Field{Name: "colors", Number: 3, Label: LabelRepeated, Type: FieldType{Kind: KindEnum}}
	assert.True(t, enum.Packable())
}
