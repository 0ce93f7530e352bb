package wire

// WRITER METHODS

// Bytes encodes a byte array as length-delimited
func (w *Writer) Bytes(data []byte) *Writer {
	w.Varint(uint64(len(data)))
	w.buf = append(w.buf, data...)
	return w
}

// String encodes a string as length-delimited UTF-8 bytes
func (w *Writer) String(s string) *Writer {
	w.Varint(uint64(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// READER METHODS

// Length reads a varint length prefix and checks it against the remaining
// buffer before anything is allocated for it.
func (r *Reader) Length() (int, error) {
	start := r.pos
	n, err := r.Varint()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.end-r.pos) {
		return 0, newWireError("length", start, ErrLengthOutOfRange)
	}
	return int(n), nil
}

// Bytes decodes a length-delimited byte array. The result is a copy.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Length()
	if err != nil {
		return nil, err
	}
	data := make([]byte, n)
	copy(data, r.buf[r.pos:r.pos+n])
	r.pos += n
	return data, nil
}

// RawBytes decodes a length-delimited byte array without copying.
func (r *Reader) RawBytes() ([]byte, error) {
	n, err := r.Length()
	if err != nil {
		return nil, err
	}
	data := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return data, nil
}

// String decodes a length-delimited string
func (r *Reader) String() (string, error) {
	n, err := r.Length()
	if err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}

// UTILITY FUNCTIONS

// BytesSize returns the size needed to encode the given bytes
func BytesSize(data []byte) int {
	return VarintSize(uint64(len(data))) + len(data)
}
