package message

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanglam/pbcore/wire"
)

func TestMarshal_FieldOrderAndRepeated(t *testing.T) {
	order := messageType(t, "shop.Order")
	m := New(order)
	require.NoError(t, m.Set("priority", int32(1)))
	require.NoError(t, m.Set("tags", []interface{}{"p", "q"}))
	require.NoError(t, m.Set("id", "x"))

	assert.Equal(t, []byte{0x0A, 0x01, 0x78, 0x12, 0x01, 0x70, 0x12, 0x01, 0x71, 0x18, 0x01}, Marshal(m))
}

func TestMarshal_Scalars(t *testing.T) {
	scalars := messageType(t, "shop.Scalars")

	tests := []struct {
		name  string
		field string
		value interface{}
		want  []byte
	}{
		{"negative int32 sign-extended", "i32", int32(-1), []byte{0x08, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}},
		{"int64", "i64", int64(300), []byte{0x10, 0xAC, 0x02}},
		{"uint32", "u32", uint32(1), []byte{0x18, 0x01}},
		{"uint64", "u64", uint64(1 << 63), []byte{0x20, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}},
		{"sint32", "s32", int32(-1), []byte{0x28, 0x01}},
		{"sint64", "s64", int64(-2), []byte{0x30, 0x03}},
		{"fixed32", "f32", uint32(1), []byte{0x3D, 0x01, 0x00, 0x00, 0x00}},
		{"fixed64", "f64", uint64(1), []byte{0x41, 0x01, 0, 0, 0, 0, 0, 0, 0}},
		{"sfixed32", "sf32", int32(-1), []byte{0x4D, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"sfixed64", "sf64", int64(-1), []byte{0x51, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"float", "fl", float32(1), []byte{0x5D, 0x00, 0x00, 0x80, 0x3F}},
		{"double", "db", float64(1), []byte{0x61, 0, 0, 0, 0, 0, 0, 0xF0, 0x3F}},
		{"bool", "flag", true, []byte{0x68, 0x01}},
		{"string", "text", "hi", []byte{0x72, 0x02, 'h', 'i'}},
		{"bytes", "data", []byte{0xDE, 0xAD}, []byte{0x7A, 0x02, 0xDE, 0xAD}},
		{"enum", "color", int32(2), []byte{0x80, 0x01, 0x02}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(scalars)
			require.NoError(t, m.Set(tt.field, tt.value))
			assert.Equal(t, tt.want, Marshal(m))
		})
	}
}

func TestMarshal_DefaultsOmitted(t *testing.T) {
	scalars := messageType(t, "shop.Scalars")
	m := New(scalars)
	require.NoError(t, m.Set("i32", int32(0)))
	require.NoError(t, m.Set("text", ""))
	require.NoError(t, m.Set("data", []byte{}))
	require.NoError(t, m.Set("flag", false))
	require.NoError(t, m.Set("color", int32(0)))
	assert.Empty(t, Marshal(m))

	envelope := messageType(t, "legacy.Envelope")
	e := New(envelope)
	require.NoError(t, e.Set("id", "a"))
	require.NoError(t, e.Set("retries", int32(3)))
	assert.Equal(t, []byte{0x0A, 0x01, 'a'}, Marshal(e), "proto2 declared default is omitted")

	require.NoError(t, e.Set("retries", int32(0)))
	assert.Equal(t, []byte{0x0A, 0x01, 'a', 0x10, 0x00}, Marshal(e))
}

func TestMarshal_NegativeZeroWritten(t *testing.T) {
	scalars := messageType(t, "shop.Scalars")
	m := New(scalars)
	require.NoError(t, m.Set("fl", float32(math.Copysign(0, -1))))
	assert.Equal(t, []byte{0x5D, 0x00, 0x00, 0x00, 0x80}, Marshal(m))

	m = New(scalars)
	require.NoError(t, m.Set("db", math.Copysign(0, -1)))
	assert.Equal(t, []byte{0x61, 0, 0, 0, 0, 0, 0, 0, 0x80}, Marshal(m))

	require.NoError(t, m.Set("db", float64(0)))
	assert.Empty(t, Marshal(m))
}

func TestMarshal_RequiredAlwaysWritten(t *testing.T) {
	envelope := messageType(t, "legacy.Envelope")
	assert.Equal(t, []byte{0x0A, 0x00}, Marshal(New(envelope)))
}

func TestMarshal_PackedAndUnpacked(t *testing.T) {
	order := messageType(t, "shop.Order")
	m := New(order)
	require.NoError(t, m.Set("counts", []interface{}{int32(1), int32(2), int32(300)}))
	require.NoError(t, m.Set("loose", []interface{}{int32(1), int32(2)}))
	require.NoError(t, m.Set("palette", []interface{}{}))

	assert.Equal(t, []byte{
		0x22, 0x04, 0x01, 0x02, 0xAC, 0x02, // counts, packed
		0x78, 0x01, 0x78, 0x02, // loose, one tag per element
	}, Marshal(m))
}

func TestMarshal_OneofWritesDefault(t *testing.T) {
	order := messageType(t, "shop.Order")
	m := New(order)
	require.NoError(t, m.Set("account", int64(0)))
	assert.Equal(t, []byte{0x60, 0x00}, Marshal(m))
}

func TestMarshal_MapSortedByKey(t *testing.T) {
	order := messageType(t, "shop.Order")
	totals := NewMap(order.FieldByName("totals"))
	require.NoError(t, totals.Set("b", int32(2)))
	require.NoError(t, totals.Set("a", int32(1)))

	m := New(order)
	require.NoError(t, m.Set("totals", totals))
	assert.Equal(t, []byte{
		0x3A, 0x05, 0x0A, 0x01, 'a', 0x10, 0x01,
		0x3A, 0x05, 0x0A, 0x01, 'b', 0x10, 0x02,
	}, Marshal(m))
}

func TestMarshal_Groups(t *testing.T) {
	reg := loadTestSchema(t)
	envelope, err := reg.GetMessage("legacy.Envelope")
	require.NoError(t, err)
	outerDesc, err := reg.GetMessage("legacy.Envelope.Outer")
	require.NoError(t, err)
	innerDesc, err := reg.GetMessage("legacy.Envelope.Outer.Inner")
	require.NoError(t, err)

	inner := New(innerDesc)
	require.NoError(t, inner.Set("b", "z"))
	outer := New(outerDesc)
	require.NoError(t, outer.Set("a", int32(1)))
	require.NoError(t, outer.Set("inner", inner))

	m := New(envelope)
	require.NoError(t, m.Set("outer", outer))

	want := []byte{
		0x0A, 0x00,      // required id
		0x1B,            // start group 3
		0x20, 0x01,      // a = 1
		0x2B,            // start group 5
		0x32, 0x01, 'z', // b = "z"
		0x2C,            // end group 5
		0x1C,            // end group 3
	}
	data := Marshal(m)
	assert.Equal(t, want, data)

	decoded, err := Unmarshal(data, envelope)
	require.NoError(t, err)
	assert.Equal(t, data, Marshal(decoded))
	assert.Equal(t, "z", decoded.Get("outer").(*Message).Get("inner").(*Message).Get("b"))
}

func TestMarshal_ExtensionsAfterFields(t *testing.T) {
	envelope := messageType(t, "legacy.Envelope")
	m := New(envelope)
	require.NoError(t, m.Set("legacy.marks", []interface{}{int32(1), int32(2)}))
	require.NoError(t, m.Set("legacy.trace", "t"))
	require.NoError(t, m.Set("id", "a"))

	assert.Equal(t, []byte{
		0x0A, 0x01, 'a',
		0xA2, 0x06, 0x01, 't', // trace, field 100
		0xA8, 0x06, 0x01, 0xA8, 0x06, 0x02, // marks, field 101, unpacked in proto2
	}, Marshal(m))
}

func TestEncode_AppendsToWriter(t *testing.T) {
	item := messageType(t, "shop.Item")
	m := New(item)
	require.NoError(t, m.Set("qty", int32(5)))

	w := wire.NewWriter()
	w.Tag(1, wire.WireVarint).Uint32(9)
	Encode(m, w)
	assert.Equal(t, []byte{0x08, 0x09, 0x10, 0x05}, w.Finish())

	assert.Equal(t, []byte{0x02, 0x10, 0x05}, MarshalDelimited(m))

	w = wire.NewWriter()
	EncodeDelimited(m, w)
	EncodeDelimited(m, w)
	assert.Equal(t, []byte{0x02, 0x10, 0x05, 0x02, 0x10, 0x05}, w.Finish())
}
