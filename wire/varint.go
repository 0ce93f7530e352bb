package wire

// maxVarintLen is the longest legal varint (64 bits / 7 bits per byte).
const maxVarintLen = 10

// WRITER METHODS

// Varint encodes a uint64 as varint
func (w *Writer) Varint(v uint64) *Writer {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
	return w
}

// Uint32 encodes a uint32 as varint
func (w *Writer) Uint32(v uint32) *Writer {
	return w.Varint(uint64(v))
}

// Int32 encodes an int32 as varint. Negative values are sign extended and
// always take ten bytes.
func (w *Writer) Int32(v int32) *Writer {
	return w.Varint(uint64(int64(v)))
}

// Sint32 encodes a signed int32 with zigzag encoding
func (w *Writer) Sint32(v int32) *Writer {
	return w.Varint(EncodeZigZag32(v))
}

// Uint64 encodes a uint64 as varint
func (w *Writer) Uint64(v uint64) *Writer {
	return w.Varint(v)
}

// Int64 encodes an int64 as varint
func (w *Writer) Int64(v int64) *Writer {
	return w.Varint(uint64(v))
}

// Sint64 encodes a signed int64 with zigzag encoding
func (w *Writer) Sint64(v int64) *Writer {
	return w.Varint(EncodeZigZag64(v))
}

// Bool encodes a bool as varint
func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.Varint(1)
	}
	return w.Varint(0)
}

// READER METHODS

// Varint decodes a varint from the current position
func (r *Reader) Varint() (uint64, error) {
	start := r.pos
	var result uint64
	var shift uint

	for i := 0; i < maxVarintLen; i++ {
		if r.pos >= r.end {
			return 0, newWireError("varint", start, ErrUnexpectedEOF)
		}

		b := r.buf[r.pos]
		r.pos++

		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}

	return 0, newWireError("varint", start, ErrVarintTooLong)
}

// Uint32 decodes a varint as uint32, discarding bits above 32.
func (r *Reader) Uint32() (uint32, error) {
	v, err := r.Varint()
	return uint32(v), err
}

// Int32 decodes a varint as int32
func (r *Reader) Int32() (int32, error) {
	v, err := r.Varint()
	return int32(v), err
}

// Sint32 decodes a zigzag-encoded signed varint as int32
func (r *Reader) Sint32() (int32, error) {
	v, err := r.Varint()
	return DecodeZigZag32(v), err
}

// Uint64 decodes a varint as uint64
func (r *Reader) Uint64() (uint64, error) {
	return r.Varint()
}

// Int64 decodes a varint as int64
func (r *Reader) Int64() (int64, error) {
	v, err := r.Varint()
	return int64(v), err
}

// Sint64 decodes a zigzag-encoded signed varint as int64
func (r *Reader) Sint64() (int64, error) {
	v, err := r.Varint()
	return DecodeZigZag64(v), err
}

// Bool decodes a varint as bool
func (r *Reader) Bool() (bool, error) {
	v, err := r.Varint()
	return v != 0, err
}

// skipVarint skips over a varint without decoding it
func (r *Reader) skipVarint() error {
	start := r.pos
	for i := 0; i < maxVarintLen; i++ {
		if r.pos >= r.end {
			return newWireError("skip varint", start, ErrUnexpectedEOF)
		}
		b := r.buf[r.pos]
		r.pos++
		if b&0x80 == 0 {
			return nil
		}
	}
	return newWireError("skip varint", start, ErrVarintTooLong)
}

// UTILITY FUNCTIONS

// DecodeZigZag32 decodes a zigzag-encoded 32-bit integer
func DecodeZigZag32(encoded uint64) int32 {
	return int32((uint32(encoded) >> 1) ^ uint32(-int32(encoded&1)))
}

// DecodeZigZag64 decodes a zigzag-encoded 64-bit integer
func DecodeZigZag64(encoded uint64) int64 {
	return int64((encoded >> 1) ^ uint64(-int64(encoded&1)))
}

// EncodeZigZag32 encodes a signed 32-bit integer using zigzag encoding
func EncodeZigZag32(v int32) uint64 {
	return uint64((uint32(v) << 1) ^ uint32(v>>31))
}

// EncodeZigZag64 encodes a signed 64-bit integer using zigzag encoding
func EncodeZigZag64(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// VarintSize returns the number of bytes needed to encode the given varint
func VarintSize(v uint64) int {
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	case v < 1<<28:
		return 4
	case v < 1<<35:
		return 5
	case v < 1<<42:
		return 6
	case v < 1<<49:
		return 7
	case v < 1<<56:
		return 8
	case v < 1<<63:
		return 9
	default:
		return 10
	}
}
