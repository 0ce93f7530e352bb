package message

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanglam/pbcore/wire"
)

func TestUnmarshal_Order(t *testing.T) {
	order := messageType(t, "shop.Order")

	m, err := Unmarshal([]byte{0x0A, 0x01, 0x78, 0x12, 0x01, 0x70, 0x12, 0x01, 0x71, 0x18, 0x01}, order)
	require.NoError(t, err)
	assert.Equal(t, "x", m.Get("id"))
	assert.Equal(t, []interface{}{"p", "q"}, m.Get("tags"))
	assert.Equal(t, int32(1), m.Get("priority"))

	m, err = Unmarshal([]byte{0x0A, 0x01, 0x78}, order)
	require.NoError(t, err)
	assert.Equal(t, "x", m.Get("id"))
	assert.Nil(t, m.Get("tags"))
	assert.Equal(t, int32(0), m.Get("priority"))
	assert.False(t, m.Has("priority"))
}

func TestUnmarshal_PackedAndUnpackedMixed(t *testing.T) {
	order := messageType(t, "shop.Order")

	m, err := Unmarshal([]byte{0x22, 0x02, 0x01, 0x02, 0x20, 0x03}, order)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(1), int32(2), int32(3)}, m.Get("counts"))

	// a field declared unpacked still accepts the packed form
	m, err = Unmarshal([]byte{0x7A, 0x02, 0x04, 0x05, 0x78, 0x06}, order)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(4), int32(5), int32(6)}, m.Get("loose"))
}

func TestUnmarshal_OneofLastWins(t *testing.T) {
	order := messageType(t, "shop.Order")

	m, err := Unmarshal([]byte{0x5A, 0x01, 0x61, 0x60, 0x05}, order)
	require.NoError(t, err)
	assert.Equal(t, "account", m.WhichOneof("payment"))
	assert.Equal(t, int64(5), m.Get("account"))
	assert.False(t, m.Has("card"))
}

func TestUnmarshal_SubmessagesMerge(t *testing.T) {
	order := messageType(t, "shop.Order")

	data := []byte{
		0x32, 0x02, 0x0A, 0x01, 'a', // primary { name: "a" }
		0x32, 0x02, 0x10, 0x05, // primary { qty: 5 }
		0x2A, 0x02, 0x10, 0x01, // items { qty: 1 }
		0x2A, 0x02, 0x10, 0x02, // items { qty: 2 }
	}
	m, err := Unmarshal(data, order)
	require.NoError(t, err)

	primary := m.Get("primary").(*Message)
	assert.Equal(t, "a", primary.Get("name"))
	assert.Equal(t, int32(5), primary.Get("qty"))

	items := m.Get("items").([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, int32(2), items[1].(*Message).Get("qty"))
}

func TestUnmarshal_SkipsUnknownAndMismatched(t *testing.T) {
	order := messageType(t, "shop.Order")

	data := []byte{
		0xA0, 0x01, 0x01, // field 20, varint
		0xAB, 0x01, 0x08, 0x01, 0xAC, 0x01, // field 21, group with one varint inside
		0xB5, 0x01, 0x00, 0x00, 0x00, 0x00, // field 22, fixed32
		0x1A, 0x01, 0x00, // priority sent as bytes
		0x0A, 0x01, 0x78,
	}
	m, err := Unmarshal(data, order)
	require.NoError(t, err)
	assert.Equal(t, "x", m.Get("id"))
	assert.False(t, m.Has("priority"))
}

func TestUnmarshal_UnknownEnumValueKept(t *testing.T) {
	scalars := messageType(t, "shop.Scalars")

	m, err := Unmarshal([]byte{0x80, 0x01, 0x09}, scalars)
	require.NoError(t, err)
	assert.Equal(t, int32(9), m.Get("color"))
	assert.Equal(t, []byte{0x80, 0x01, 0x09}, Marshal(m))
}

func TestUnmarshal_Malformed(t *testing.T) {
	order := messageType(t, "shop.Order")
	envelope := messageType(t, "legacy.Envelope")

	tooLong := append([]byte{0x18}, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"truncated length", []byte{0x0A, 0x05, 0x61}, wire.ErrLengthOutOfRange},
		{"varint too long", tooLong, wire.ErrVarintTooLong},
		{"stray end group", []byte{0x0C}, wire.ErrEndGroup},
		{"truncated tag", []byte{0x80}, wire.ErrUnexpectedEOF},
		{"truncated fixed32", []byte{0xB5, 0x01, 0x00}, wire.ErrUnexpectedEOF},
		{"field number zero", []byte{0x00, 0x01}, wire.ErrFieldNumber},
		{"invalid wire type", []byte{0x0E}, wire.ErrInvalidWireType},
		{"submessage overruns parent", []byte{0x32, 0x05, 0x0A, 0x01}, wire.ErrLengthOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Unmarshal(tt.data, order)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var wfe *wire.WireFormatError
			assert.True(t, errors.As(err, &wfe))
		})
	}

	t.Run("group closed by wrong number", func(t *testing.T) {
		_, err := Unmarshal([]byte{0x0A, 0x00, 0x1B, 0x24}, envelope)
		assert.True(t, errors.Is(err, wire.ErrEndGroup), "got %v", err)
	})

	t.Run("group never closed", func(t *testing.T) {
		_, err := Unmarshal([]byte{0x0A, 0x00, 0x1B, 0x20, 0x01}, envelope)
		assert.True(t, errors.Is(err, wire.ErrUnexpectedEOF), "got %v", err)
	})
}

func TestUnmarshal_FieldPathInErrors(t *testing.T) {
	order := messageType(t, "shop.Order")

	_, err := Unmarshal([]byte{0x32, 0x03, 0x0A, 0x05, 0x61}, order)
	require.Error(t, err)

	var fe *wire.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, []string{"primary", "name"}, fe.FieldPath)
	assert.True(t, errors.Is(err, wire.ErrLengthOutOfRange))
}

func TestUnmarshal_RequiredFields(t *testing.T) {
	envelope := messageType(t, "legacy.Envelope")

	_, err := Unmarshal(nil, envelope)
	var rfe *RequiredFieldError
	require.True(t, errors.As(err, &rfe), "got %v", err)
	assert.Equal(t, "legacy.Envelope", rfe.Message)
	assert.Equal(t, "id", rfe.Field)
	assert.Equal(t, "missing required field legacy.Envelope.id", err.Error())

	_, err = Unmarshal([]byte{0x0A, 0x00, 0x42, 0x00}, envelope)
	require.True(t, errors.As(err, &rfe), "got %v", err)
	assert.Equal(t, "legacy.Header", rfe.Message)
	assert.Equal(t, "error at proto path header: missing required field legacy.Header.name", err.Error())

	m, err := Unmarshal([]byte{0x0A, 0x00}, envelope)
	require.NoError(t, err)
	assert.True(t, m.Has("id"))
	assert.Equal(t, int32(3), m.Get("retries"))
}

func TestUnmarshal_DepthLimit(t *testing.T) {
	node := messageType(t, "shop.Node")

	var data []byte
	for i := 0; i < 5; i++ {
		data = append([]byte{0x0A, byte(len(data))}, data...)
	}

	_, err := DecodeOptions{MaxDepth: 3}.Unmarshal(data, node)
	assert.True(t, errors.Is(err, wire.ErrDepthExceeded), "got %v", err)

	m, err := DecodeOptions{MaxDepth: 5}.Unmarshal(data, node)
	require.NoError(t, err)
	depth := 0
	for m.Has("child") {
		m = m.Get("child").(*Message)
		depth++
	}
	assert.Equal(t, 5, depth)

	_, err = Unmarshal(data, node)
	assert.NoError(t, err)
}

func TestUnmarshal_Maps(t *testing.T) {
	order := messageType(t, "shop.Order")

	data := []byte{
		0x3A, 0x02, 0x10, 0x07, // totals entry without key
		0x3A, 0x05, 0x0A, 0x01, 'a', 0x10, 0x01,
		0x3A, 0x05, 0x0A, 0x01, 'a', 0x10, 0x02, // later entry replaces
		0x42, 0x02, 0x08, 0x05, // by_index entry without value
		0x4A, 0x02, 0x08, 0x00, // by_long with an explicit zero key
	}
	m, err := Unmarshal(data, order)
	require.NoError(t, err)

	totals := m.Get("totals").(*Map)
	assert.Equal(t, 2, totals.Len())
	v, ok := totals.Get("")
	require.True(t, ok)
	assert.Equal(t, int32(7), v)
	v, _ = totals.Get("a")
	assert.Equal(t, int32(2), v)

	byIndex := m.Get("by_index").(*Map)
	v, ok = byIndex.Get(int32(5))
	require.True(t, ok)
	assert.Equal(t, order.FieldByName("primary").Type.Message, v.(*Message).Descriptor())

	byLong := m.Get("by_long").(*Map)
	v, ok = byLong.Get(int64(0))
	require.True(t, ok)
	assert.Equal(t, "", v)
}

func TestUnmarshal_LongMapKeyRoundTrip(t *testing.T) {
	order := messageType(t, "shop.Order")

	byLong := NewMap(order.FieldByName("by_long"))
	require.NoError(t, byLong.Set(int64(math.MaxInt64), "max"))
	require.NoError(t, byLong.Set(int64(math.MinInt64), "min"))
	m := New(order)
	require.NoError(t, m.Set("by_long", byLong))

	decoded, err := Unmarshal(Marshal(m), order)
	require.NoError(t, err)
	got := decoded.Get("by_long").(*Map)

	v, ok := got.Get("9223372036854775807")
	require.True(t, ok)
	assert.Equal(t, "max", v)
	v, ok = got.Get(wire.LongToHash(uint64(1) << 63))
	require.True(t, ok)
	assert.Equal(t, "min", v)
	assert.True(t, Equal(m, decoded))
}

func TestMerge(t *testing.T) {
	order := messageType(t, "shop.Order")

	dst := New(order)
	require.NoError(t, dst.Set("tags", []interface{}{"a"}))
	require.NoError(t, dst.Set("priority", int32(1)))

	require.NoError(t, Merge(dst, []byte{0x12, 0x01, 'b', 0x18, 0x02}))
	assert.Equal(t, []interface{}{"a", "b"}, dst.Get("tags"))
	assert.Equal(t, int32(2), dst.Get("priority"))

	err := Merge(dst, []byte{0x12, 0x01, 'c', 0x12, 0x05})
	require.Error(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, dst.Get("tags"))
}

func TestDecodeDelimited(t *testing.T) {
	item := messageType(t, "shop.Item")

	r := wire.NewReader([]byte{0x02, 0x10, 0x05, 0x03, 0x0A, 0x01, 'z', 0x00})
	first, err := DecodeDelimited(r, item)
	require.NoError(t, err)
	assert.Equal(t, int32(5), first.Get("qty"))

	second, err := DecodeDelimited(r, item)
	require.NoError(t, err)
	assert.Equal(t, "z", second.Get("name"))

	third, err := DecodeDelimited(r, item)
	require.NoError(t, err)
	assert.True(t, Equal(New(item), third))
	assert.Equal(t, 0, r.Remaining())

	_, err = UnmarshalDelimited([]byte{0x05, 0x10}, item)
	assert.True(t, errors.Is(err, wire.ErrLengthOutOfRange), "got %v", err)

	m, err := UnmarshalDelimited(MarshalDelimited(first), item)
	require.NoError(t, err)
	assert.True(t, Equal(first, m))
}

func TestDecode_ExactLength(t *testing.T) {
	item := messageType(t, "shop.Item")

	r := wire.NewReader([]byte{0x10, 0x05, 0x10, 0x06})
	m, err := Decode(r, item, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(5), m.Get("qty"))
	assert.Equal(t, 2, r.Pos())
	assert.Equal(t, 2, r.Remaining())
}
