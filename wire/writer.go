package wire

// Writer handles low-level protobuf wire format encoding.
//
// Length-delimited spans whose size is not known up front are opened with
// Fork and closed with Ldelim, which back-fills the varint length in front
// of the span. Forks nest.
type Writer struct {
	buf   []byte
	forks []int // start offsets of open spans
}

// NewWriter creates a new wire format writer
func NewWriter() *Writer {
	return &Writer{
		buf: make([]byte, 0, 64),
	}
}

// Len returns the number of bytes written so far, including open spans.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset clears the writer buffer and drops any open spans.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.forks = w.forks[:0]
}

// Finish returns the encoded bytes and leaves the writer empty.
// It panics if a Fork was not closed.
func (w *Writer) Finish() []byte {
	if len(w.forks) != 0 {
		panic("wire: Finish called with unclosed Fork")
	}
	out := w.buf
	w.buf = nil
	return out
}

// Fork opens a length-delimited span.
func (w *Writer) Fork() *Writer {
	w.forks = append(w.forks, len(w.buf))
	return w
}

// Ldelim closes the innermost span opened by Fork and prefixes it with its
// varint length.
func (w *Writer) Ldelim() *Writer {
	if len(w.forks) == 0 {
		panic("wire: Ldelim without matching Fork")
	}
	start := w.forks[len(w.forks)-1]
	w.forks = w.forks[:len(w.forks)-1]

	n := len(w.buf) - start
	size := VarintSize(uint64(n))
	for i := 0; i < size; i++ {
		w.buf = append(w.buf, 0)
	}
	copy(w.buf[start+size:], w.buf[start:start+n])
	putVarint(w.buf[start:start+size], uint64(n))
	return w
}

// Tag writes the field tag for fieldNumber / wireType.
func (w *Writer) Tag(fieldNumber FieldNumber, wireType WireType) *Writer {
	return w.Varint(uint64(MakeTag(fieldNumber, wireType)))
}

// Raw appends already encoded bytes verbatim.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// putVarint writes v into dst, which must be exactly VarintSize(v) long.
func putVarint(dst []byte, v uint64) {
	i := 0
	for v >= 0x80 {
		dst[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	dst[i] = byte(v)
}
