package wire

import (
	"encoding/binary"
	"math"
)

// WRITER METHODS

// Fixed32 encodes a 32-bit fixed-width value
func (w *Writer) Fixed32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

// Sfixed32 encodes a signed 32-bit fixed-width value
func (w *Writer) Sfixed32(v int32) *Writer {
	return w.Fixed32(uint32(v))
}

// Float encodes a 32-bit float as fixed32
func (w *Writer) Float(v float32) *Writer {
	return w.Fixed32(math.Float32bits(v))
}

// Fixed64 encodes a 64-bit fixed-width value
func (w *Writer) Fixed64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

// Sfixed64 encodes a signed 64-bit fixed-width value
func (w *Writer) Sfixed64(v int64) *Writer {
	return w.Fixed64(uint64(v))
}

// Double encodes a 64-bit float as fixed64
func (w *Writer) Double(v float64) *Writer {
	return w.Fixed64(math.Float64bits(v))
}

// READER METHODS

// Fixed32 decodes a 32-bit fixed-width value
func (r *Reader) Fixed32() (uint32, error) {
	if r.end-r.pos < 4 {
		return 0, newWireError("fixed32", r.pos, ErrUnexpectedEOF)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// Sfixed32 decodes a signed 32-bit fixed-width value
func (r *Reader) Sfixed32() (int32, error) {
	v, err := r.Fixed32()
	return int32(v), err
}

// Float decodes a 32-bit float from fixed32 data
func (r *Reader) Float() (float32, error) {
	v, err := r.Fixed32()
	return math.Float32frombits(v), err
}

// Fixed64 decodes a 64-bit fixed-width value
func (r *Reader) Fixed64() (uint64, error) {
	if r.end-r.pos < 8 {
		return 0, newWireError("fixed64", r.pos, ErrUnexpectedEOF)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// Sfixed64 decodes a signed 64-bit fixed-width value
func (r *Reader) Sfixed64() (int64, error) {
	v, err := r.Fixed64()
	return int64(v), err
}

// Double decodes a 64-bit float from fixed64 data
func (r *Reader) Double() (float64, error) {
	v, err := r.Fixed64()
	return math.Float64frombits(v), err
}
